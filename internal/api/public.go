package api

import (
	"net/http"
	"strings"

	"monarchmail-be/internal/account"
	"monarchmail-be/internal/apperr"
	"monarchmail-be/internal/contact"
	"monarchmail-be/internal/shipping"
	"monarchmail-be/internal/utils"

	"github.com/go-chi/chi/v5"
)

// storeCollections are the storefront collections the site links to.
var storeCollections = map[string]bool{
	"holiday-gifts": true,
	"all":           true,
}

type publicHandler struct {
	estimator *shipping.Estimator
	account   account.Service
	contact   contact.Service
	storeURL  string
}

func (h *publicHandler) estimate(w http.ResponseWriter, r *http.Request) {
	var req shipping.EstimateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	est, err := h.estimator.Estimate(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, est)
}

func (h *publicHandler) accountSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.account.Summary(r.Context(), owner(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, sum)
}

func (h *publicHandler) submitContact(w http.ResponseWriter, r *http.Request) {
	var in contact.Inquiry
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	out, err := h.contact.Submit(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, out)
}

func (h *publicHandler) storeRedirect(w http.ResponseWriter, r *http.Request) {
	c := strings.ToLower(chi.URLParam(r, "collection"))
	if !storeCollections[c] {
		writeError(w, r, apperr.ErrNotFound)
		return
	}
	http.Redirect(w, r, strings.TrimRight(h.storeURL, "/")+"/collections/"+c, http.StatusFound)
}
