package handler

import (
	"net/http"
	"time"

	httputil "loanbook/pkg/http"
	"loanbook/pkg/model"

	"github.com/julienschmidt/httprouter"
)

type registerItemRequest struct {
	Name         string `json:"name"`
	SerialNumber string `json:"serial_number,omitempty"`
	Notes        string `json:"notes,omitempty"`
	ModelRef     *int64 `json:"model_ref,omitempty"`
}

type availabilityResponse struct {
	AsOf      time.Time      `json:"as_of,omitzero"`
	Available map[int64]bool `json:"available"`
}

func (h *Handler) RegisterItem(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var body registerItemRequest
	if err := h.decode(r, &body); err != nil {
		h.writeError(w, "RegisterItem", err)
		return
	}

	item, err := h.items.Register(r.Context(), &model.Item{
		Name:         body.Name,
		SerialNumber: body.SerialNumber,
		Notes:        body.Notes,
		ModelRef:     body.ModelRef,
	})
	if err != nil {
		h.writeError(w, "RegisterItem", err)
		return
	}
	h.writeCreated(w, "RegisterItem", item)
}

func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := httputil.ExtractID(ps, "id")
	if err != nil {
		h.writeError(w, "GetItem", err)
		return
	}

	item, err := h.items.GetByID(r.Context(), id)
	if err != nil {
		h.writeError(w, "GetItem", err)
		return
	}
	h.writeSuccess(w, "GetItem", item)
}

func (h *Handler) GetItemByToken(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	item, err := h.items.GetByLookupToken(r.Context(), ps.ByName("token"))
	if err != nil {
		h.writeError(w, "GetItemByToken", err)
		return
	}
	h.writeSuccess(w, "GetItemByToken", item)
}

func (h *Handler) DeleteItem(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := httputil.ExtractID(ps, "id")
	if err != nil {
		h.writeError(w, "DeleteItem", err)
		return
	}

	if err := h.items.Delete(r.Context(), id); err != nil {
		h.writeError(w, "DeleteItem", err)
		return
	}
	httputil.WriteNoContent(w)
}

func (h *Handler) ItemAvailability(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	itemIDs, err := httputil.ExtractIDList(r, "item_ids")
	if err != nil {
		h.writeError(w, "ItemAvailability", err)
		return
	}
	asOf, err := httputil.ExtractTime(r, "as_of", false)
	if err != nil {
		h.writeError(w, "ItemAvailability", err)
		return
	}

	available, err := h.availability.ItemAvailability(r.Context(), itemIDs, asOf)
	if err != nil {
		h.writeError(w, "ItemAvailability", err)
		return
	}
	h.writeSuccess(w, "ItemAvailability", availabilityResponse{AsOf: asOf, Available: available})
}

func (h *Handler) ItemsAvailableInTimespan(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	start, err := httputil.ExtractTime(r, "start", true)
	if err != nil {
		h.writeError(w, "ItemsAvailableInTimespan", err)
		return
	}
	end, err := httputil.ExtractTime(r, "end", true)
	if err != nil {
		h.writeError(w, "ItemsAvailableInTimespan", err)
		return
	}

	items, err := h.availability.ItemsAvailableInTimespan(r.Context(), start, end)
	if err != nil {
		h.writeError(w, "ItemsAvailableInTimespan", err)
		return
	}
	h.writeSuccess(w, "ItemsAvailableInTimespan", items)
}
