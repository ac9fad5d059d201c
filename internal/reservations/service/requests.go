package service

import (
	"context"
	"errors"
	"sync"
	"time"

	reservationserrors "loanbook/internal/reservations/errors"
	"loanbook/internal/reservations/metrics"
	"loanbook/internal/reservations/repository"
	"loanbook/internal/reservations/validator"
	"loanbook/pkg/clock"
	"loanbook/pkg/config"
	mongotx "loanbook/pkg/db/mongo"
	apperrors "loanbook/pkg/errors"
	"loanbook/pkg/model"
	"loanbook/pkg/sanitizer"
)

type RequestService interface {
	Create(ctx context.Context, request *model.Request, userID string) (*model.Request, error)
	GetByID(ctx context.Context, id int64) (*model.Request, error)
	GetPending(ctx context.Context, limit int, offset int64) ([]*model.Request, int64, error)
	Suggest(ctx context.Context, id int64) (*Suggestion, error)
	Accept(ctx context.Context, id int64, userID string) (*model.Reservation, error)
	Cancel(ctx context.Context, id int64) error
}

type requestService struct {
	stores      repository.Stores
	triage      RequestTriage
	coordinator ReservationCoordinator
	validator   *validator.Validator
	clock       clock.Clock
	cfg         *config.Config
}

func NewRequestService(
	stores repository.Stores,
	triage RequestTriage,
	coordinator ReservationCoordinator,
	validator *validator.Validator,
	clk clock.Clock,
	cfg *config.Config,
) RequestService {
	return &requestService{
		stores:      stores,
		triage:      triage,
		coordinator: coordinator,
		validator:   validator,
		clock:       clk,
		cfg:         cfg,
	}
}

func (s *requestService) Create(ctx context.Context, request *model.Request, userID string) (*model.Request, error) {
	if request == nil {
		return nil, apperrors.InvalidInput("Request payload is required")
	}
	request.Note = sanitizer.SanitizeText(request.Note)
	request.StartDate = request.StartDate.Truncate(time.Millisecond)
	request.PlannedEndDate = request.PlannedEndDate.Truncate(time.Millisecond)
	request.UserCreated = userID
	request.RequestAccepted = false
	request.ReservationID = nil

	if err := s.validator.ValidateRequest(request); err != nil {
		s.cfg.Log.Warn("Request validation failed", "error", err)
		return nil, validationError("Request validation failed", err)
	}
	if err := checkModelRefs(ctx, s.stores.DeviceModels, subRequestModels(request)); err != nil {
		return nil, err
	}

	id, err := s.stores.Sequences.Next(ctx, repository.SequenceRequests)
	if err != nil {
		s.cfg.Log.Error("Failed to allocate request id", "error", err)
		return nil, mongotx.ClassifyError(err)
	}
	now := s.clock.Now().Truncate(time.Millisecond)
	request.ID = id
	request.CreatedAt = now
	request.ModifiedAt = now

	if err := s.stores.Requests.Create(ctx, request); err != nil {
		s.cfg.Log.Error("Failed to create request", "request_id", id, "error", err)
		return nil, mongotx.ClassifyError(err)
	}

	s.cfg.Log.Info("Request created successfully",
		"request_id", id,
		"user_created", userID,
		"requested_total", request.RequestedTotal(),
	)
	return request, nil
}

func (s *requestService) GetByID(ctx context.Context, id int64) (*model.Request, error) {
	if id <= 0 {
		return nil, apperrors.InvalidInput("Request ID must be positive")
	}
	request, err := s.stores.Requests.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, reservationserrors.ErrRequestNotFound) {
			return nil, apperrors.NotFoundWithID("Request", id)
		}
		return nil, mongotx.ClassifyError(err)
	}
	return request, nil
}

func (s *requestService) GetPending(ctx context.Context, limit int, offset int64) ([]*model.Request, int64, error) {
	limit = config.NormalizePaginationLimit(limit)
	offset = config.NormalizeOffset(offset)

	var count int64
	var requests []*model.Request
	var errCount, errFind error
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		count, errCount = s.stores.Requests.CountPending(ctx)
	}()

	go func() {
		defer wg.Done()
		requests, errFind = s.stores.Requests.FindPending(ctx, limit, offset)
	}()

	wg.Wait()
	if errCount != nil {
		s.cfg.Log.Error("Failed to count pending requests", "error", errCount)
		return nil, 0, mongotx.ClassifyError(errCount)
	}
	if errFind != nil {
		s.cfg.Log.Error("Failed to list pending requests", "error", errFind)
		return nil, 0, mongotx.ClassifyError(errFind)
	}
	return requests, count, nil
}

func (s *requestService) Suggest(ctx context.Context, id int64) (*Suggestion, error) {
	request, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.triage.Suggest(ctx, request, s.clock.Now())
}

// Accept promotes a pending request into a reservation. If the request cannot
// be marked accepted afterwards the reservation is cancelled again.
func (s *requestService) Accept(ctx context.Context, id int64, userID string) (reservation *model.Reservation, err error) {
	started := time.Now()
	defer func() { metrics.Observe(metrics.OpAccept, metrics.OutcomeOf(err), started) }()

	request, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if request.RequestAccepted {
		return nil, apperrors.Conflict("Request has already been accepted").WithDetails(map[string]any{
			"request_id":     id,
			"reservation_id": request.ReservationID,
		})
	}

	suggestion, err := s.triage.Suggest(ctx, request, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if !suggestion.Satisfied() {
		s.cfg.Log.Warn("Request cannot be satisfied", "request_id", id, "shortfalls", suggestion.Shortfalls)
		return nil, apperrors.Conflict("Not enough items are available for the request").WithDetails(map[string]any{
			"request_id": id,
			"shortfalls": suggestion.Shortfalls,
		})
	}

	candidate := suggestion.Candidate
	reservation, err = s.coordinator.Create(ctx, candidate, candidate.ItemIDs, request.UserCreated)
	if err != nil {
		return nil, err
	}

	if err := s.stores.Requests.MarkAccepted(ctx, id, reservation.ID, s.clock.Now().Truncate(time.Millisecond)); err != nil {
		s.compensate(ctx, id, reservation.ID, err)
		if errors.Is(err, reservationserrors.ErrRequestNotFound) {
			return nil, apperrors.Conflict("Request was accepted or cancelled concurrently")
		}
		return nil, mongotx.ClassifyError(err)
	}

	s.cfg.Log.Info("Request accepted successfully",
		"request_id", id,
		"reservation_id", reservation.ID,
		"accepted_by", userID,
	)
	return reservation, nil
}

func (s *requestService) compensate(ctx context.Context, requestID, reservationID int64, cause error) {
	s.cfg.Log.Warn("Failed to mark request accepted, cancelling reservation",
		"request_id", requestID,
		"reservation_id", reservationID,
		"error", cause,
	)
	if err := s.coordinator.Cancel(context.WithoutCancel(ctx), reservationID); err != nil {
		s.cfg.Log.Error("Compensating cancel failed, reservation is orphaned",
			"request_id", requestID,
			"reservation_id", reservationID,
			"error", err,
		)
	}
}

func (s *requestService) Cancel(ctx context.Context, id int64) error {
	if id <= 0 {
		return apperrors.InvalidInput("Request ID must be positive")
	}
	if err := s.stores.Requests.DeletePending(ctx, id); err != nil {
		if errors.Is(err, reservationserrors.ErrRequestNotFound) {
			return apperrors.NotFoundWithID("Request", id)
		}
		s.cfg.Log.Error("Failed to cancel request", "request_id", id, "error", err)
		return mongotx.ClassifyError(err)
	}
	s.cfg.Log.Info("Request cancelled successfully", "request_id", id)
	return nil
}
