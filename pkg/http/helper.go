package http

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"loanbook/pkg/config"
	apperrors "loanbook/pkg/errors"

	"github.com/julienschmidt/httprouter"
)

// UserIDHeader carries the authenticated caller, set by the upstream gateway.
const UserIDHeader = "X-User-ID"

func ExtractLimitOffset(r *http.Request) (int, int64, error) {
	query := r.URL.Query()

	limit := 0
	if s := query.Get("limit"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil {
			return 0, 0, apperrors.InvalidInput("invalid limit parameter: " + s)
		}
		limit = v
	}

	var offset int64 = 0
	if s := query.Get("offset"); s != "" {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, 0, apperrors.InvalidInput("invalid offset parameter: " + s)
		}
		offset = v
	}

	limit = config.NormalizePaginationLimit(limit)
	offset = config.NormalizeOffset(offset)

	return limit, offset, nil
}

// ExtractID parses a positive integer path parameter.
func ExtractID(ps httprouter.Params, name string) (int64, error) {
	raw := ps.ByName(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.InvalidInput("invalid " + name + " parameter: " + raw)
	}
	return id, nil
}

// ExtractIDList parses a comma separated list of positive integers.
func ExtractIDList(r *http.Request, key string) ([]int64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return nil, apperrors.InvalidInput(key + " parameter is required")
	}

	parts := strings.Split(raw, ",")
	ids := make([]int64, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id <= 0 {
			return nil, apperrors.InvalidInput("invalid " + key + " value: " + part)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, apperrors.InvalidInput(key + " parameter is required")
	}
	return ids, nil
}

// ExtractTime parses an RFC 3339 query parameter. A missing optional value
// yields the zero time.
func ExtractTime(r *http.Request, key string, required bool) (time.Time, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		if required {
			return time.Time{}, apperrors.InvalidInput(key + " parameter is required")
		}
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, apperrors.InvalidInput("invalid " + key + " format, must be RFC3339")
	}
	return t.UTC(), nil
}

func ExtractUserID(r *http.Request) (string, error) {
	userID := strings.TrimSpace(r.Header.Get(UserIDHeader))
	if userID == "" {
		return "", apperrors.Unauthorized("missing " + UserIDHeader + " header")
	}
	return userID, nil
}
