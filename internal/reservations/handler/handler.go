package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"loanbook/internal/reservations/service"
	apperrors "loanbook/pkg/errors"
	httputil "loanbook/pkg/http"
	"loanbook/pkg/logger"

	"github.com/julienschmidt/httprouter"
)

// Handler is the JSON adapter over the reservation services.
type Handler struct {
	coordinator  service.ReservationCoordinator
	requests     service.RequestService
	items        service.ItemService
	availability service.AvailabilityService
	log          *logger.Logger
}

func NewHandler(
	coordinator service.ReservationCoordinator,
	requests service.RequestService,
	items service.ItemService,
	availability service.AvailabilityService,
	log *logger.Logger,
) *Handler {
	return &Handler{
		coordinator:  coordinator,
		requests:     requests,
		items:        items,
		availability: availability,
		log:          log,
	}
}

func (h *Handler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/reservations", h.CreateReservation)
	router.GET("/api/v1/reservations", h.GetReservations)
	router.GET("/api/v1/reservations/id/:id", h.GetReservation)
	router.POST("/api/v1/reservations/id/:id/finish", h.FinishReservation)
	router.DELETE("/api/v1/reservations/id/:id", h.CancelReservation)

	router.POST("/api/v1/items", h.RegisterItem)
	router.GET("/api/v1/items/id/:id", h.GetItem)
	router.DELETE("/api/v1/items/id/:id", h.DeleteItem)
	router.GET("/api/v1/items/token/:token", h.GetItemByToken)
	router.GET("/api/v1/items/availability", h.ItemAvailability)
	router.GET("/api/v1/items/available", h.ItemsAvailableInTimespan)

	router.POST("/api/v1/requests", h.CreateRequest)
	router.GET("/api/v1/requests", h.GetPendingRequests)
	router.GET("/api/v1/requests/id/:id", h.GetRequest)
	router.GET("/api/v1/requests/id/:id/suggestion", h.SuggestForRequest)
	router.POST("/api/v1/requests/id/:id/accept", h.AcceptRequest)
	router.DELETE("/api/v1/requests/id/:id", h.CancelRequest)
}

func (h *Handler) decode(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		var maxBytesErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxBytesErr):
			return apperrors.InvalidInput("Request body too large")
		case errors.Is(err, io.EOF):
			return apperrors.InvalidInput("Request body is required")
		default:
			return apperrors.InvalidInput("Invalid request body")
		}
	}
	return nil
}

func (h *Handler) writeError(w http.ResponseWriter, handler string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handler, "operation", "WriteError", "error", writeErr)
	}
}

func (h *Handler) writeSuccess(w http.ResponseWriter, handler string, data any) {
	if err := httputil.WriteSuccess(w, data); err != nil {
		h.log.Error("failed to write success response", "handler", handler, "operation", "WriteSuccess", "error", err)
	}
}

func (h *Handler) writeCreated(w http.ResponseWriter, handler string, data any) {
	if err := httputil.WriteCreated(w, data); err != nil {
		h.log.Error("failed to write created response", "handler", handler, "operation", "WriteCreated", "error", err)
	}
}

func (h *Handler) writePaginated(w http.ResponseWriter, handler string, data any, total int64, limit int, offset int64) {
	if err := httputil.WritePaginated(w, data, total, limit, offset); err != nil {
		h.log.Error("failed to write paginated response", "handler", handler, "operation", "WritePaginated", "error", err)
	}
}
