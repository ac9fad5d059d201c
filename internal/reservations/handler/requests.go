package handler

import (
	"net/http"
	"time"

	httputil "loanbook/pkg/http"
	"loanbook/pkg/model"

	"github.com/julienschmidt/httprouter"
)

type createRequestRequest struct {
	StartDate      time.Time          `json:"start_date"`
	PlannedEndDate time.Time          `json:"planned_end_date"`
	Note           string             `json:"note,omitempty"`
	DeviceCount    int                `json:"device_count,omitempty"`
	SubRequests    []model.SubRequest `json:"sub_requests,omitempty"`
	Priority       int                `json:"priority,omitempty"`
}

func (h *Handler) CreateRequest(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	userID, err := httputil.ExtractUserID(r)
	if err != nil {
		h.writeError(w, "CreateRequest", err)
		return
	}

	var body createRequestRequest
	if err := h.decode(r, &body); err != nil {
		h.writeError(w, "CreateRequest", err)
		return
	}

	request, err := h.requests.Create(r.Context(), &model.Request{
		StartDate:      body.StartDate.UTC(),
		PlannedEndDate: body.PlannedEndDate.UTC(),
		Note:           body.Note,
		DeviceCount:    body.DeviceCount,
		SubRequests:    body.SubRequests,
		Priority:       body.Priority,
	}, userID)
	if err != nil {
		h.writeError(w, "CreateRequest", err)
		return
	}
	h.writeCreated(w, "CreateRequest", request)
}

func (h *Handler) GetPendingRequests(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		h.writeError(w, "GetPendingRequests", err)
		return
	}

	requests, total, err := h.requests.GetPending(r.Context(), limit, offset)
	if err != nil {
		h.writeError(w, "GetPendingRequests", err)
		return
	}
	h.writePaginated(w, "GetPendingRequests", requests, total, limit, offset)
}

func (h *Handler) GetRequest(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := httputil.ExtractID(ps, "id")
	if err != nil {
		h.writeError(w, "GetRequest", err)
		return
	}

	request, err := h.requests.GetByID(r.Context(), id)
	if err != nil {
		h.writeError(w, "GetRequest", err)
		return
	}
	h.writeSuccess(w, "GetRequest", request)
}

func (h *Handler) SuggestForRequest(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := httputil.ExtractID(ps, "id")
	if err != nil {
		h.writeError(w, "SuggestForRequest", err)
		return
	}

	suggestion, err := h.requests.Suggest(r.Context(), id)
	if err != nil {
		h.writeError(w, "SuggestForRequest", err)
		return
	}
	h.writeSuccess(w, "SuggestForRequest", suggestion)
}

func (h *Handler) AcceptRequest(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	userID, err := httputil.ExtractUserID(r)
	if err != nil {
		h.writeError(w, "AcceptRequest", err)
		return
	}
	id, err := httputil.ExtractID(ps, "id")
	if err != nil {
		h.writeError(w, "AcceptRequest", err)
		return
	}

	reservation, err := h.requests.Accept(r.Context(), id, userID)
	if err != nil {
		h.writeError(w, "AcceptRequest", err)
		return
	}
	h.writeCreated(w, "AcceptRequest", reservation)
}

func (h *Handler) CancelRequest(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := httputil.ExtractID(ps, "id")
	if err != nil {
		h.writeError(w, "CancelRequest", err)
		return
	}

	if err := h.requests.Cancel(r.Context(), id); err != nil {
		h.writeError(w, "CancelRequest", err)
		return
	}
	httputil.WriteNoContent(w)
}
