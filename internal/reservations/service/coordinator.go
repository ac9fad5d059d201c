package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"loanbook/internal/reservations/availability"
	reservationserrors "loanbook/internal/reservations/errors"
	"loanbook/internal/reservations/events"
	"loanbook/internal/reservations/metrics"
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

type ReservationCoordinator interface {
	Create(ctx context.Context, candidate *model.Reservation, itemIDs []int64, userID string) (*model.Reservation, error)
	Finish(ctx context.Context, id int64) (*model.Reservation, error)
	Cancel(ctx context.Context, id int64) error
	GetByID(ctx context.Context, id int64) (*model.Reservation, error)
	GetAll(ctx context.Context, limit int, offset int64) ([]*model.Reservation, int64, error)
}

type reservationCoordinator struct {
	stores    repository.Stores
	validator *validator.Validator
	publisher events.Publisher
	clock     clock.Clock
	cfg       *config.Config
}

func NewReservationCoordinator(
	stores repository.Stores,
	validator *validator.Validator,
	publisher events.Publisher,
	clk clock.Clock,
	cfg *config.Config,
) ReservationCoordinator {
	return &reservationCoordinator{
		stores:    stores,
		validator: validator,
		publisher: publisher,
		clock:     clk,
		cfg:       cfg,
	}
}

// CollidingReservation is reported in conflict details.
type CollidingReservation struct {
	ID             int64     `json:"id"`
	ItemIDs        []int64   `json:"item_ids"`
	StartDate      time.Time `json:"start_date"`
	PlannedEndDate time.Time `json:"planned_end_date"`
}

func (s *reservationCoordinator) Create(ctx context.Context, candidate *model.Reservation, itemIDs []int64, userID string) (reservation *model.Reservation, err error) {
	started := time.Now()
	defer func() { metrics.Observe(metrics.OpCreate, metrics.OutcomeOf(err), started) }()

	if candidate == nil {
		return nil, apperrors.InvalidInput("Reservation payload is required")
	}
	if itemIDs != nil {
		candidate.ItemIDs = itemIDs
	}
	candidate.Responsible = userID
	candidate.Completed = false
	// Collisions are checked at the precision the store keeps.
	candidate.StartDate = candidate.StartDate.Truncate(time.Millisecond)
	candidate.PlannedEndDate = candidate.PlannedEndDate.Truncate(time.Millisecond)
	s.sanitize(candidate)
	if err := s.validate(candidate); err != nil {
		return nil, err
	}

	sorted := sortedIDs(candidate.ItemIDs)
	owner := uuid.NewString()
	if err := s.acquireItemLocks(ctx, sorted, owner); err != nil {
		return nil, err
	}
	defer s.releaseItemLocks(ctx, sorted, owner)

	var (
		id        int64
		createdAt time.Time
	)
	err = s.stores.Tx.ExecuteTransaction(ctx, func(txCtx context.Context) error {
		items, err := s.stores.Items.FindByIDs(txCtx, sorted)
		if err != nil {
			return mongotx.ClassifyError(err)
		}
		if missing := missingItemIDs(sorted, items); len(missing) > 0 {
			return apperrors.NotFound("Item").WithDetails(map[string]any{
				"resource": "Item",
				"ids":      missing,
			})
		}

		existing, err := s.stores.Reservations.FindByIDs(txCtx, availability.ReferencedReservationIDs(items))
		if err != nil {
			return mongotx.ClassifyError(err)
		}
		if offenders := availability.Collisions(openReservations(existing), candidate); len(offenders) > 0 {
			return collisionError(offenders)
		}

		id, err = s.stores.Sequences.Next(txCtx, repository.SequenceReservations)
		if err != nil {
			return mongotx.ClassifyError(err)
		}
		createdAt = s.clock.Now().Truncate(time.Millisecond)
		record := *candidate
		record.ID = id
		record.CreatedAt = createdAt

		if err := s.stores.Reservations.Create(txCtx, &record); err != nil {
			return mongotx.ClassifyError(err)
		}
		matched, err := s.stores.Items.AttachReservation(txCtx, id, sorted)
		if err != nil {
			return mongotx.ClassifyError(err)
		}
		if matched != int64(len(sorted)) {
			return apperrors.Concurrency("Items changed while the reservation was being committed", nil)
		}
		return nil
	})
	if err != nil {
		s.logRejection("Failed to create reservation", err, "item_ids", sorted, "responsible", userID)
		return nil, err
	}

	candidate.ID = id
	candidate.CreatedAt = createdAt
	candidate.Active = availability.Classify(candidate, s.clock.Now()) == availability.Active
	s.cfg.Log.Info("Reservation created successfully",
		"reservation_id", candidate.ID,
		"item_ids", candidate.ItemIDs,
		"start_date", candidate.StartDate,
		"planned_end_date", candidate.PlannedEndDate,
		"responsible", candidate.Responsible,
	)
	s.publish(ctx, events.ReservationCreated, candidate)
	return candidate, nil
}

func (s *reservationCoordinator) Finish(ctx context.Context, id int64) (reservation *model.Reservation, err error) {
	started := time.Now()
	defer func() { metrics.Observe(metrics.OpFinish, metrics.OutcomeOf(err), started) }()

	if id <= 0 {
		return nil, apperrors.InvalidInput("Reservation ID must be positive")
	}

	reservation, err = s.findReservation(ctx, id)
	if err != nil {
		return nil, err
	}
	if reservation.Completed {
		s.cfg.Log.Debug("Reservation already completed", "reservation_id", id)
		return reservation, nil
	}

	// A reservation finished before it began ends at its start.
	endedAt := s.clock.Now().Truncate(time.Millisecond)
	if endedAt.Before(reservation.StartDate) {
		endedAt = reservation.StartDate
	}

	transitioned, err := s.stores.Reservations.MarkCompleted(ctx, id, endedAt)
	if err != nil {
		err = mongotx.ClassifyError(err)
		s.cfg.Log.Error("Failed to finish reservation", "reservation_id", id, "error", err)
		return nil, err
	}
	if !transitioned {
		// Lost the race to a concurrent finish or cancel.
		return s.findReservation(ctx, id)
	}

	reservation.Completed = true
	reservation.PlannedEndDate = endedAt
	reservation.Active = false
	s.cfg.Log.Info("Reservation finished successfully", "reservation_id", id, "ended_at", endedAt)
	s.publish(ctx, events.ReservationFinished, reservation)
	return reservation, nil
}

func (s *reservationCoordinator) Cancel(ctx context.Context, id int64) (err error) {
	started := time.Now()
	defer func() { metrics.Observe(metrics.OpCancel, metrics.OutcomeOf(err), started) }()

	if id <= 0 {
		return apperrors.InvalidInput("Reservation ID must be positive")
	}

	var cancelled *model.Reservation
	err = s.stores.Tx.ExecuteTransaction(ctx, func(txCtx context.Context) error {
		reservation, err := s.findReservation(txCtx, id)
		if err != nil {
			return err
		}
		if err := s.stores.Reservations.Delete(txCtx, id); err != nil {
			if errors.Is(err, reservationserrors.ErrReservationNotFound) {
				return apperrors.NotFoundWithID("Reservation", id)
			}
			return mongotx.ClassifyError(err)
		}
		if err := s.stores.Items.DetachReservation(txCtx, id); err != nil {
			return mongotx.ClassifyError(err)
		}
		cancelled = reservation
		return nil
	})
	if err != nil {
		s.logRejection("Failed to cancel reservation", err, "reservation_id", id)
		return err
	}

	s.cfg.Log.Info("Reservation cancelled successfully", "reservation_id", id, "item_ids", cancelled.ItemIDs)
	s.publish(ctx, events.ReservationCancelled, cancelled)
	return nil
}

func (s *reservationCoordinator) GetByID(ctx context.Context, id int64) (*model.Reservation, error) {
	if id <= 0 {
		return nil, apperrors.InvalidInput("Reservation ID must be positive")
	}
	reservation, err := s.findReservation(ctx, id)
	if err != nil {
		return nil, err
	}
	reservation.Active = availability.Classify(reservation, s.clock.Now()) == availability.Active
	return reservation, nil
}

func (s *reservationCoordinator) GetAll(ctx context.Context, limit int, offset int64) ([]*model.Reservation, int64, error) {
	limit = config.NormalizePaginationLimit(limit)
	offset = config.NormalizeOffset(offset)

	var count int64
	var reservations []*model.Reservation
	var errCount, errFind error
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		count, errCount = s.stores.Reservations.Count(ctx)
		if errCount != nil {
			s.cfg.Log.Error("Failed to count reservations", "error", errCount)
			errCount = mongotx.ClassifyError(errCount)
		}
	}()

	go func() {
		defer wg.Done()
		reservations, errFind = s.stores.Reservations.FindPage(ctx, limit, offset)
		if errFind != nil {
			s.cfg.Log.Error("Failed to list reservations", "error", errFind)
			errFind = mongotx.ClassifyError(errFind)
		}
	}()

	wg.Wait()
	if errCount != nil {
		return nil, 0, errCount
	}
	if errFind != nil {
		return nil, 0, errFind
	}

	now := s.clock.Now()
	for _, r := range reservations {
		r.Active = availability.Classify(r, now) == availability.Active
	}
	return reservations, count, nil
}

// --- Helpers ---

func (s *reservationCoordinator) sanitize(r *model.Reservation) {
	r.Name = sanitizer.SanitizeName(r.Name)
	r.Description = sanitizer.SanitizeText(r.Description)
}

func (s *reservationCoordinator) validate(r *model.Reservation) error {
	if err := s.validator.ValidateReservation(r); err != nil {
		s.cfg.Log.Warn("Reservation validation failed", "error", err)
		return validationError("Reservation validation failed", err)
	}
	return nil
}

func (s *reservationCoordinator) findReservation(ctx context.Context, id int64) (*model.Reservation, error) {
	reservation, err := s.stores.Reservations.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, reservationserrors.ErrReservationNotFound) {
			return nil, apperrors.NotFoundWithID("Reservation", id)
		}
		return nil, mongotx.ClassifyError(err)
	}
	return reservation, nil
}

// acquireItemLocks takes the per-item locks in ascending id order and
// releases whatever it took when one is busy.
func (s *reservationCoordinator) acquireItemLocks(ctx context.Context, ids []int64, owner string) error {
	for i, id := range ids {
		err := s.stores.Locker.Lock(ctx, id, owner, s.cfg.LockTTL)
		if err == nil {
			continue
		}
		s.releaseItemLocks(ctx, ids[:i], owner)
		if errors.Is(err, reservationserrors.ErrLockBusy) {
			metrics.LockWaits.Inc()
			return apperrors.Concurrency(
				fmt.Sprintf("Item %d is being reserved by another request. Please try again.", id), err,
			).WithDetails(map[string]any{"item_id": id})
		}
		return mongotx.ClassifyError(err)
	}
	return nil
}

func (s *reservationCoordinator) releaseItemLocks(ctx context.Context, ids []int64, owner string) {
	ctx = context.WithoutCancel(ctx)
	for _, id := range ids {
		if err := s.stores.Locker.Unlock(ctx, id, owner); err != nil {
			s.cfg.Log.Warn("Failed to release item lock", "item_id", id, "error", err)
		}
	}
}

func (s *reservationCoordinator) publish(ctx context.Context, eventType events.EventType, r *model.Reservation) {
	if err := s.publisher.Publish(ctx, eventType, r, s.clock.Now()); err != nil {
		metrics.EventPublishFailures.WithLabelValues(string(eventType)).Inc()
		s.cfg.Log.Error("Failed to publish reservation event",
			"event_type", eventType,
			"reservation_id", r.ID,
			"error", err,
		)
	}
}

func (s *reservationCoordinator) logRejection(msg string, err error, attrs ...any) {
	attrs = append(attrs, "error", err)
	switch apperrors.AsAppError(err).Code {
	case apperrors.CodeUnavailable, apperrors.CodeInternal:
		s.cfg.Log.Error(msg, attrs...)
	default:
		s.cfg.Log.Warn(msg, attrs...)
	}
}

func collisionError(offenders []*model.Reservation) *apperrors.AppError {
	colliding := make([]CollidingReservation, 0, len(offenders))
	ids := make([]int64, 0, len(offenders))
	for _, r := range offenders {
		ids = append(ids, r.ID)
		colliding = append(colliding, CollidingReservation{
			ID:             r.ID,
			ItemIDs:        r.ItemIDs,
			StartDate:      r.StartDate,
			PlannedEndDate: r.PlannedEndDate,
		})
	}
	return apperrors.Conflict("Reservation collides with existing reservations").WithDetails(map[string]any{
		"reservation_ids": ids,
		"collisions":      colliding,
	})
}

func openReservations(reservations []*model.Reservation) []*model.Reservation {
	open := make([]*model.Reservation, 0, len(reservations))
	for _, r := range reservations {
		if !r.Completed {
			open = append(open, r)
		}
	}
	return open
}

func missingItemIDs(requested []int64, found []*model.Item) []int64 {
	present := make(map[int64]struct{}, len(found))
	for _, item := range found {
		present[item.ID] = struct{}{}
	}
	missing := []int64{}
	for _, id := range requested {
		if _, ok := present[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}

func sortedIDs(ids []int64) []int64 {
	sorted := make([]int64, len(ids))
	copy(sorted, ids)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return sorted
}

func validationError(message string, err error) *apperrors.AppError {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return apperrors.Validation(message, verrs.Fields())
	}
	return apperrors.Validation(message, map[string]any{"error": err.Error()})
}
