package api

import (
	"context"
	"net/http"

	"monarchmail-be/internal/utils"
	"monarchmail-be/internal/wizard"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// session is what both wizard flows expose to HTTP.
type session interface {
	Set(step wizard.StepName, fields wizard.Fields) error
	Next(ctx context.Context) (wizard.Outcome, error)
	Resolve(ctx context.Context, choice wizard.Choice) (wizard.Outcome, error)
	Back() (int, error)
	Submit(ctx context.Context, nonce string) (string, error)
	Snapshot() wizard.View
}

type transitionResponse struct {
	Outcome *wizard.Outcome `json:"outcome,omitempty"`
	Session any             `json:"session"`
}

type resolveRequest struct {
	Choice wizard.Choice `json:"choice"`
}

type submitRequest struct {
	Nonce string `json:"nonce"`
}

// wizardHandler serves the routes every flow shares. view renders a session
// for responses.
type wizardHandler[T session] struct {
	sessions *wizard.Registry[T]
	view     func(T) any
}

func (h *wizardHandler[T]) mount(r chi.Router) {
	r.Get("/", h.get)
	r.Put("/steps/{step}", h.setStep)
	r.Post("/next", h.next)
	r.Post("/back", h.back)
	r.Post("/resolve", h.resolve)
	r.Post("/submit", h.submit)
}

func (h *wizardHandler[T]) load(w http.ResponseWriter, r *http.Request) (T, bool) {
	var zero T
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, wizard.ErrSessionNotFound)
		return zero, false
	}
	s, err := h.sessions.Get(id, owner(r))
	if err != nil {
		writeError(w, r, err)
		return zero, false
	}
	return s, true
}

func (h *wizardHandler[T]) get(w http.ResponseWriter, r *http.Request) {
	s, ok := h.load(w, r)
	if !ok {
		return
	}
	utils.WriteJSON(w, http.StatusOK, h.view(s))
}

func (h *wizardHandler[T]) setStep(w http.ResponseWriter, r *http.Request) {
	s, ok := h.load(w, r)
	if !ok {
		return
	}

	var fields wizard.Fields
	if err := decodeJSON(w, r, &fields); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.Set(wizard.StepName(chi.URLParam(r, "step")), fields); err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, h.view(s))
}

func (h *wizardHandler[T]) next(w http.ResponseWriter, r *http.Request) {
	s, ok := h.load(w, r)
	if !ok {
		return
	}
	out, err := s.Next(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, transitionResponse{Outcome: &out, Session: h.view(s)})
}

func (h *wizardHandler[T]) resolve(w http.ResponseWriter, r *http.Request) {
	s, ok := h.load(w, r)
	if !ok {
		return
	}

	var req resolveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	out, err := s.Resolve(r.Context(), req.Choice)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, transitionResponse{Outcome: &out, Session: h.view(s)})
}

func (h *wizardHandler[T]) back(w http.ResponseWriter, r *http.Request) {
	s, ok := h.load(w, r)
	if !ok {
		return
	}
	if _, err := s.Back(); err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, transitionResponse{Session: h.view(s)})
}

// submit takes the nonce from the body or the Idempotency-Key header. A
// client retrying the same click sends the same nonce.
func (h *wizardHandler[T]) submit(w http.ResponseWriter, r *http.Request) {
	s, ok := h.load(w, r)
	if !ok {
		return
	}

	var req submitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Nonce == "" {
		req.Nonce = r.Header.Get("Idempotency-Key")
	}

	url, err := s.Submit(r.Context(), req.Nonce)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]string{"checkout_url": url})
}
