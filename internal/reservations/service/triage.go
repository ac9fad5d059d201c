package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"loanbook/internal/reservations/availability"
	"loanbook/internal/reservations/repository"
	"loanbook/internal/reservations/validator"
	"loanbook/pkg/config"
	mongotx "loanbook/pkg/db/mongo"
	apperrors "loanbook/pkg/errors"
	"loanbook/pkg/model"
)

// Shortfall describes a part of a request that cannot be covered. ModelRef
// is nil for plain device-count requests.
type Shortfall struct {
	ModelRef  *int64 `json:"model_ref,omitempty"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

// Suggestion is the outcome of triaging a request: either a candidate
// reservation covering exactly the requested quantity, or the shortfalls.
type Suggestion struct {
	RequestID  int64              `json:"request_id"`
	AsOf       time.Time          `json:"as_of"`
	Candidate  *model.Reservation `json:"candidate,omitempty"`
	Shortfalls []Shortfall        `json:"shortfalls,omitempty"`
}

func (s *Suggestion) Satisfied() bool {
	return s.Candidate != nil
}

type RequestTriage interface {
	Suggest(ctx context.Context, request *model.Request, asOf time.Time) (*Suggestion, error)
}

type requestTriage struct {
	stores    repository.Stores
	validator *validator.Validator
	cfg       *config.Config
}

func NewRequestTriage(stores repository.Stores, validator *validator.Validator, cfg *config.Config) RequestTriage {
	return &requestTriage{
		stores:    stores,
		validator: validator,
		cfg:       cfg,
	}
}

func (t *requestTriage) Suggest(ctx context.Context, request *model.Request, asOf time.Time) (*Suggestion, error) {
	if request == nil {
		return nil, apperrors.InvalidInput("Request is required")
	}
	if err := t.validator.ValidateRequest(request); err != nil {
		t.cfg.Log.Warn("Request validation failed", "request_id", request.ID, "error", err)
		return nil, validationError("Request validation failed", err)
	}
	if err := checkModelRefs(ctx, t.stores.DeviceModels, subRequestModels(request)); err != nil {
		return nil, err
	}

	free, err := freeItemsInWindow(ctx, t.stores, request.StartDate, request.PlannedEndDate)
	if err != nil {
		t.cfg.Log.Error("Failed to compute free items", "request_id", request.ID, "error", err)
		return nil, err
	}

	suggestion := &Suggestion{RequestID: request.ID, AsOf: asOf}
	picked, shortfalls := pickItems(request, free)
	if len(shortfalls) > 0 {
		suggestion.Shortfalls = shortfalls
		t.cfg.Log.Debug("Request cannot be satisfied", "request_id", request.ID, "shortfalls", shortfalls)
		return suggestion, nil
	}

	requestID := request.ID
	suggestion.Candidate = &model.Reservation{
		Name:           fmt.Sprintf("Request #%d", request.ID),
		Description:    request.Note,
		Responsible:    request.UserCreated,
		ItemIDs:        picked,
		StartDate:      request.StartDate,
		PlannedEndDate: request.PlannedEndDate,
		RequestID:      &requestID,
	}
	t.cfg.Log.Debug("Request suggestion computed", "request_id", request.ID, "item_ids", picked)
	return suggestion, nil
}

// pickItems takes the lowest-id free items for each part of the request and
// never hands the same item out twice.
func pickItems(request *model.Request, free []*model.Item) ([]int64, []Shortfall) {
	var picked []int64
	var shortfalls []Shortfall

	if len(request.SubRequests) == 0 {
		for i := 0; i < len(free) && len(picked) < request.DeviceCount; i++ {
			picked = append(picked, free[i].ID)
		}
		if len(picked) < request.DeviceCount {
			shortfalls = append(shortfalls, Shortfall{Requested: request.DeviceCount, Available: len(free)})
		}
		return picked, shortfalls
	}

	used := make(map[int64]struct{})
	for _, sub := range request.SubRequests {
		var matches []int64
		for _, item := range free {
			if item.ModelRef == nil || *item.ModelRef != sub.ModelRef {
				continue
			}
			if _, taken := used[item.ID]; taken {
				continue
			}
			matches = append(matches, item.ID)
		}
		if len(matches) < sub.Count {
			ref := sub.ModelRef
			shortfalls = append(shortfalls, Shortfall{ModelRef: &ref, Requested: sub.Count, Available: len(matches)})
			continue
		}
		for _, id := range matches[:sub.Count] {
			used[id] = struct{}{}
			picked = append(picked, id)
		}
	}
	sort.Slice(picked, func(i, j int) bool { return picked[i] < picked[j] })
	return picked, shortfalls
}

// freeItemsInWindow loads every item and reservation and returns the items
// no reservation intersecting [start, end] covers.
func freeItemsInWindow(ctx context.Context, stores repository.Stores, start, end time.Time) ([]*model.Item, error) {
	var items []*model.Item
	var reservations []*model.Reservation
	var errItems, errReservations error
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		items, errItems = stores.Items.FindAll(ctx)
	}()

	go func() {
		defer wg.Done()
		reservations, errReservations = stores.Reservations.FindAll(ctx)
	}()

	wg.Wait()
	if errItems != nil {
		return nil, mongotx.ClassifyError(errItems)
	}
	if errReservations != nil {
		return nil, mongotx.ClassifyError(errReservations)
	}

	return availability.ItemsAvailableInTimespan(items, reservations, start, end), nil
}

func subRequestModels(request *model.Request) []int64 {
	refs := make([]int64, 0, len(request.SubRequests))
	for _, sub := range request.SubRequests {
		refs = append(refs, sub.ModelRef)
	}
	return refs
}

// checkModelRefs rejects references to device models that do not exist.
func checkModelRefs(ctx context.Context, models repository.DeviceModelRepository, refs []int64) error {
	if len(refs) == 0 {
		return nil
	}
	found, err := models.FindByIDs(ctx, refs)
	if err != nil {
		return mongotx.ClassifyError(err)
	}
	known := make(map[int64]struct{}, len(found))
	for _, m := range found {
		known[m.ID] = struct{}{}
	}
	unknown := []int64{}
	for _, ref := range refs {
		if _, ok := known[ref]; !ok {
			unknown = append(unknown, ref)
		}
	}
	if len(unknown) > 0 {
		return apperrors.Validation("Unknown device model reference", map[string]any{
			"unknown_model_refs": unknown,
		})
	}
	return nil
}
