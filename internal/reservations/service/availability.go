package service

import (
	"context"
	"time"

	"loanbook/internal/reservations/availability"
	"loanbook/internal/reservations/repository"
	"loanbook/pkg/clock"
	"loanbook/pkg/config"
	mongotx "loanbook/pkg/db/mongo"
	apperrors "loanbook/pkg/errors"
	"loanbook/pkg/model"
)

// AvailabilityService answers read-only availability questions against the
// stores.
type AvailabilityService interface {
	// ItemAvailability reports, per item, whether every reservation the item
	// references is inactive as of asOf. A zero asOf means now.
	ItemAvailability(ctx context.Context, itemIDs []int64, asOf time.Time) (map[int64]bool, error)
	ItemsAvailableInTimespan(ctx context.Context, start, end time.Time) ([]*model.Item, error)
}

type availabilityService struct {
	stores repository.Stores
	clock  clock.Clock
	cfg    *config.Config
}

func NewAvailabilityService(stores repository.Stores, clk clock.Clock, cfg *config.Config) AvailabilityService {
	return &availabilityService{
		stores: stores,
		clock:  clk,
		cfg:    cfg,
	}
}

func (s *availabilityService) ItemAvailability(ctx context.Context, itemIDs []int64, asOf time.Time) (map[int64]bool, error) {
	if len(itemIDs) == 0 {
		return nil, apperrors.Validation("At least one item id is required", nil)
	}
	for _, id := range itemIDs {
		if id <= 0 {
			return nil, apperrors.InvalidInput("Item IDs must be positive")
		}
	}
	if asOf.IsZero() {
		asOf = s.clock.Now()
	}

	ids := sortedIDs(itemIDs)
	items, err := s.stores.Items.FindByIDs(ctx, ids)
	if err != nil {
		s.cfg.Log.Error("Failed to load items", "item_ids", ids, "error", err)
		return nil, mongotx.ClassifyError(err)
	}
	if missing := missingItemIDs(ids, items); len(missing) > 0 {
		return nil, apperrors.NotFound("Item").WithDetails(map[string]any{
			"resource": "Item",
			"ids":      missing,
		})
	}

	reservations, err := s.stores.Reservations.FindByIDs(ctx, availability.ReferencedReservationIDs(items))
	if err != nil {
		s.cfg.Log.Error("Failed to load referenced reservations", "item_ids", ids, "error", err)
		return nil, mongotx.ClassifyError(err)
	}

	result := availability.ItemAvailability(items, reservations, asOf)
	s.cfg.Log.Debug("Item availability computed", "item_ids", ids, "as_of", asOf)
	return result, nil
}

func (s *availabilityService) ItemsAvailableInTimespan(ctx context.Context, start, end time.Time) ([]*model.Item, error) {
	if start.IsZero() || end.IsZero() {
		return nil, apperrors.Validation("Both start and end are required", nil)
	}
	if !end.After(start) {
		return nil, apperrors.Validation("End must be after start", map[string]any{
			"start": start,
			"end":   end,
		})
	}

	free, err := freeItemsInWindow(ctx, s.stores, start, end)
	if err != nil {
		s.cfg.Log.Error("Failed to compute items available in timespan", "error", err)
		return nil, err
	}
	for _, item := range free {
		item.Available = true
	}
	s.cfg.Log.Debug("Items available in timespan computed", "start", start, "end", end, "count", len(free))
	return free, nil
}
