// Package apperr maps errors onto the taxonomy the HTTP layer renders:
// a kind, a status code and a message safe to show a customer.
package apperr

import (
	"context"
	"errors"
	"net/http"
)

const (
	KindValidation        = "validation"
	KindCorrectionPending = "correction_pending"
	KindAddressRejected   = "address_rejected"
	KindInFlight          = "in_flight"
	KindAdapter           = "adapter"
	KindNotFound          = "not_found"
	KindUnauthenticated   = "unauthenticated"
	KindConflict          = "conflict"
	KindCanceled          = "canceled"
	KindInternal          = "internal"
)

// SupportPhone is shown whenever something unexpected fails.
const SupportPhone = "(210) 265-5805"

var (
	ErrNotFound        = errors.New("not found")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrConflict        = errors.New("conflict")
)

// kinder is satisfied by domain errors that carry a classification kind.
type kinder interface {
	Kind() string
}

// userMessager is satisfied by errors whose text is safe to show a customer.
type userMessager interface {
	UserMessage() string
}

func Kind(err error) string {
	if err == nil {
		return ""
	}

	var k kinder
	if errors.As(err, &k) {
		return k.Kind()
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrUnauthenticated):
		return KindUnauthenticated
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, context.Canceled):
		return KindCanceled
	default:
		return KindInternal
	}
}

var kindToStatus = map[string]int{
	KindValidation:        http.StatusUnprocessableEntity,
	KindCorrectionPending: http.StatusConflict,
	KindAddressRejected:   http.StatusUnprocessableEntity,
	KindInFlight:          http.StatusConflict,
	KindAdapter:           http.StatusBadGateway,
	KindNotFound:          http.StatusNotFound,
	KindUnauthenticated:   http.StatusUnauthorized,
	KindConflict:          http.StatusConflict,
	KindCanceled:          http.StatusRequestTimeout,
}

func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if s, ok := kindToStatus[Kind(err)]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// UserMessage never leaks internal detail: unclassified errors collapse into
// the generic support message.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var um userMessager
	if errors.As(err, &um) {
		return um.UserMessage()
	}

	switch Kind(err) {
	case KindNotFound:
		return "We couldn't find what you were looking for."
	case KindUnauthenticated:
		return "Please log in to continue."
	case KindConflict:
		return "This request has already been processed."
	case KindCanceled:
		return "The request was canceled. Please try again."
	default:
		return "Something went wrong. Please try again or call " + SupportPhone + " for assistance."
	}
}
