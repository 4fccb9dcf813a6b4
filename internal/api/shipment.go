package api

import (
	"net/http"

	"monarchmail-be/internal/shipment"
	"monarchmail-be/internal/utils"
	"monarchmail-be/internal/wizard"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type shipmentView struct {
	ID string `json:"id,omitempty"`
	wizard.View
}

func renderShipment(s *shipment.Session) any { return shipmentView{View: s.Snapshot()} }

type savedAddressRequest struct {
	Role      string    `json:"role"`
	AddressID uuid.UUID `json:"address_id"`
}

type shipmentHandler struct {
	svc    *shipment.Service
	wizard *wizardHandler[*shipment.Session]
}

func (h *shipmentHandler) routes(r chi.Router) {
	r.Post("/", h.create)
	r.Route("/{id}", func(r chi.Router) {
		h.wizard.mount(r)
		r.Post("/saved-address", h.useSavedAddress)
		r.Post("/rates", h.quote)
	})
}

func (h *shipmentHandler) create(w http.ResponseWriter, r *http.Request) {
	sess := h.svc.NewSession(owner(r))
	id := h.wizard.sessions.Add(owner(r), sess)
	utils.WriteJSON(w, http.StatusCreated, shipmentView{ID: id.String(), View: sess.Snapshot()})
}

func (h *shipmentHandler) useSavedAddress(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.wizard.load(w, r)
	if !ok {
		return
	}

	var req savedAddressRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := sess.UseSavedAddress(r.Context(), req.Role, req.AddressID); err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, renderShipment(sess))
}

func (h *shipmentHandler) quote(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.wizard.load(w, r)
	if !ok {
		return
	}
	grouped, err := sess.Quote(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, grouped)
}
