package handler

import (
	"net/http"
	"time"

	httputil "loanbook/pkg/http"
	"loanbook/pkg/model"

	"github.com/julienschmidt/httprouter"
)

type createReservationRequest struct {
	Name           string    `json:"name"`
	Description    string    `json:"description,omitempty"`
	ItemIDs        []int64   `json:"item_ids"`
	StartDate      time.Time `json:"start_date"`
	PlannedEndDate time.Time `json:"planned_end_date"`
}

func (h *Handler) CreateReservation(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	userID, err := httputil.ExtractUserID(r)
	if err != nil {
		h.writeError(w, "CreateReservation", err)
		return
	}

	var body createReservationRequest
	if err := h.decode(r, &body); err != nil {
		h.writeError(w, "CreateReservation", err)
		return
	}

	candidate := &model.Reservation{
		Name:           body.Name,
		Description:    body.Description,
		StartDate:      body.StartDate.UTC(),
		PlannedEndDate: body.PlannedEndDate.UTC(),
	}
	itemIDs := body.ItemIDs
	if itemIDs == nil {
		itemIDs = []int64{}
	}

	reservation, err := h.coordinator.Create(r.Context(), candidate, itemIDs, userID)
	if err != nil {
		h.writeError(w, "CreateReservation", err)
		return
	}
	h.writeCreated(w, "CreateReservation", reservation)
}

func (h *Handler) GetReservations(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		h.writeError(w, "GetReservations", err)
		return
	}

	reservations, total, err := h.coordinator.GetAll(r.Context(), limit, offset)
	if err != nil {
		h.writeError(w, "GetReservations", err)
		return
	}
	h.writePaginated(w, "GetReservations", reservations, total, limit, offset)
}

func (h *Handler) GetReservation(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := httputil.ExtractID(ps, "id")
	if err != nil {
		h.writeError(w, "GetReservation", err)
		return
	}

	reservation, err := h.coordinator.GetByID(r.Context(), id)
	if err != nil {
		h.writeError(w, "GetReservation", err)
		return
	}
	h.writeSuccess(w, "GetReservation", reservation)
}

func (h *Handler) FinishReservation(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := httputil.ExtractID(ps, "id")
	if err != nil {
		h.writeError(w, "FinishReservation", err)
		return
	}

	reservation, err := h.coordinator.Finish(r.Context(), id)
	if err != nil {
		h.writeError(w, "FinishReservation", err)
		return
	}
	h.writeSuccess(w, "FinishReservation", reservation)
}

func (h *Handler) CancelReservation(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := httputil.ExtractID(ps, "id")
	if err != nil {
		h.writeError(w, "CancelReservation", err)
		return
	}

	if err := h.coordinator.Cancel(r.Context(), id); err != nil {
		h.writeError(w, "CancelReservation", err)
		return
	}
	httputil.WriteNoContent(w)
}
