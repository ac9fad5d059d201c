package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"loanbook/internal/reservations/availability"
	reservationserrors "loanbook/internal/reservations/errors"
	"loanbook/internal/reservations/repository"
	"loanbook/internal/reservations/validator"
	"loanbook/pkg/clock"
	"loanbook/pkg/config"
	mongotx "loanbook/pkg/db/mongo"
	apperrors "loanbook/pkg/errors"
	"loanbook/pkg/model"
	"loanbook/pkg/sanitizer"

	"github.com/google/uuid"
)

type ItemService interface {
	Register(ctx context.Context, item *model.Item) (*model.Item, error)
	GetByID(ctx context.Context, id int64) (*model.Item, error)
	GetByLookupToken(ctx context.Context, token string) (*model.Item, error)
	Delete(ctx context.Context, id int64) error
}

type itemService struct {
	stores    repository.Stores
	validator *validator.Validator
	clock     clock.Clock
	cfg       *config.Config
}

func NewItemService(stores repository.Stores, validator *validator.Validator, clk clock.Clock, cfg *config.Config) ItemService {
	return &itemService{
		stores:    stores,
		validator: validator,
		clock:     clk,
		cfg:       cfg,
	}
}

func (s *itemService) Register(ctx context.Context, item *model.Item) (*model.Item, error) {
	if item == nil {
		return nil, apperrors.InvalidInput("Item payload is required")
	}
	item.Name = sanitizer.SanitizeName(item.Name)
	item.SerialNumber = sanitizer.SanitizeSerial(item.SerialNumber)
	item.Notes = sanitizer.SanitizeText(item.Notes)

	if err := s.validator.ValidateItem(item); err != nil {
		s.cfg.Log.Warn("Item validation failed", "error", err)
		return nil, validationError("Item validation failed", err)
	}
	if item.ModelRef != nil {
		if err := checkModelRefs(ctx, s.stores.DeviceModels, []int64{*item.ModelRef}); err != nil {
			return nil, err
		}
	}

	id, err := s.stores.Sequences.Next(ctx, repository.SequenceItems)
	if err != nil {
		s.cfg.Log.Error("Failed to allocate item id", "error", err)
		return nil, mongotx.ClassifyError(err)
	}
	item.ID = id
	item.LookupToken = newLookupToken(id)
	item.ReservationIDs = []int64{}
	item.CreatedAt = s.clock.Now().Truncate(time.Millisecond)

	if err := s.stores.Items.Create(ctx, item); err != nil {
		s.cfg.Log.Error("Failed to register item", "item_id", id, "error", err)
		return nil, mongotx.ClassifyError(err)
	}

	item.Available = true
	s.cfg.Log.Info("Item registered successfully", "item_id", id, "name", item.Name)
	return item, nil
}

func (s *itemService) GetByID(ctx context.Context, id int64) (*model.Item, error) {
	if id <= 0 {
		return nil, apperrors.InvalidInput("Item ID must be positive")
	}
	item, err := s.stores.Items.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, reservationserrors.ErrItemNotFound) {
			return nil, apperrors.NotFoundWithID("Item", id)
		}
		return nil, mongotx.ClassifyError(err)
	}
	return s.annotate(ctx, item)
}

func (s *itemService) GetByLookupToken(ctx context.Context, token string) (*model.Item, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, apperrors.InvalidInput("Lookup token cannot be empty")
	}
	item, err := s.stores.Items.FindByLookupToken(ctx, token)
	if err != nil {
		if errors.Is(err, reservationserrors.ErrItemNotFound) {
			return nil, apperrors.NotFound("Item")
		}
		return nil, mongotx.ClassifyError(err)
	}
	return s.annotate(ctx, item)
}

// Delete refuses while any open reservation references the item. The item
// lock keeps a concurrent reservation from slipping in between the check and
// the delete.
func (s *itemService) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return apperrors.InvalidInput("Item ID must be positive")
	}

	owner := uuid.NewString()
	if err := s.stores.Locker.Lock(ctx, id, owner, s.cfg.LockTTL); err != nil {
		if errors.Is(err, reservationserrors.ErrLockBusy) {
			return apperrors.Concurrency("Item is being reserved by another request. Please try again.", err)
		}
		return mongotx.ClassifyError(err)
	}
	defer func() {
		if err := s.stores.Locker.Unlock(context.WithoutCancel(ctx), id, owner); err != nil {
			s.cfg.Log.Warn("Failed to release item lock", "item_id", id, "error", err)
		}
	}()

	err := s.stores.Tx.ExecuteTransaction(ctx, func(txCtx context.Context) error {
		open, err := s.stores.Reservations.FindOpenByItem(txCtx, id)
		if err != nil {
			return mongotx.ClassifyError(err)
		}
		if len(open) > 0 {
			ids := make([]int64, 0, len(open))
			for _, r := range open {
				ids = append(ids, r.ID)
			}
			return apperrors.Conflict("Item is referenced by open reservations").WithDetails(map[string]any{
				"item_id":         id,
				"reservation_ids": ids,
			})
		}
		if err := s.stores.Items.Delete(txCtx, id); err != nil {
			if errors.Is(err, reservationserrors.ErrItemNotFound) {
				return apperrors.NotFoundWithID("Item", id)
			}
			return mongotx.ClassifyError(err)
		}
		if err := s.stores.Reservations.DetachItem(txCtx, id); err != nil {
			return mongotx.ClassifyError(err)
		}
		return nil
	})
	if err != nil {
		s.cfg.Log.Warn("Failed to delete item", "item_id", id, "error", err)
		return err
	}

	s.cfg.Log.Info("Item deleted successfully", "item_id", id)
	return nil
}

func (s *itemService) annotate(ctx context.Context, item *model.Item) (*model.Item, error) {
	reservations, err := s.stores.Reservations.FindByIDs(ctx, item.ReservationIDs)
	if err != nil {
		s.cfg.Log.Error("Failed to load item reservations", "item_id", item.ID, "error", err)
		return nil, mongotx.ClassifyError(err)
	}
	availability.Annotate([]*model.Item{item}, reservations, s.clock.Now())
	return item, nil
}

func newLookupToken(id int64) string {
	return fmt.Sprintf("%d-%s", id, strings.ReplaceAll(uuid.NewString(), "-", ""))
}
