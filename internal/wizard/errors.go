package wizard

import (
	"errors"
	"fmt"
	"strings"

	"monarchmail-be/internal/address"
	"monarchmail-be/internal/apperr"
)

type stateError struct {
	kind string
	msg  string
	user string
}

func (e *stateError) Error() string       { return e.msg }
func (e *stateError) Kind() string        { return e.kind }
func (e *stateError) UserMessage() string { return e.user }

var (
	ErrTransitionInFlight = &stateError{apperr.KindInFlight, "wizard: transition already in flight",
		"Please wait, we're still working on your last request."}
	ErrCorrectionPending = &stateError{apperr.KindCorrectionPending, "wizard: address correction pending",
		"Please confirm which address to use before continuing."}
	ErrNoCorrectionPending = &stateError{apperr.KindConflict, "wizard: no correction pending",
		"There is nothing to confirm right now."}
	ErrAddressRejected = &stateError{apperr.KindAddressRejected, "wizard: address rejected by verifier",
		"We couldn't find that address. Please check it and try again."}
	ErrNotAtFinalStep = &stateError{apperr.KindConflict, "wizard: submit outside the final step",
		"Please complete every step before checking out."}
	ErrAtFinalStep = &stateError{apperr.KindConflict, "wizard: next at the final step",
		"This is the last step. Please submit to continue to payment."}
	ErrAlreadyFinalized = &stateError{apperr.KindConflict, "wizard: draft already finalized",
		"This order has already been sent to checkout."}
	ErrMissingRecordID = &stateError{apperr.KindInternal, "wizard: step requires a saved draft",
		"Something went wrong. Please try again or call " + apperr.SupportPhone + " for assistance."}
	ErrIllegalTransition = &stateError{apperr.KindConflict, "wizard: illegal transition",
		"That action isn't available right now."}
	ErrSessionNotFound = &stateError{apperr.KindNotFound, "wizard: session not found",
		"Your session has expired. Please start again."}
)

type ValidationError struct {
	Step   StepName
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		names = append(names, f.Field)
	}
	return fmt.Sprintf("wizard: step %s invalid: %s", e.Step, strings.Join(names, ", "))
}

func (e *ValidationError) Kind() string { return apperr.KindValidation }

func (e *ValidationError) UserMessage() string {
	return "Please complete all required fields"
}

// AdapterError is any failed call to an external collaborator during a
// transition. Adapter names the collaborator.
type AdapterError struct {
	Adapter string
	Err     error
}

const (
	AdapterVerifier = "address_verifier"
	AdapterStore    = "record_store"
	AdapterCheckout = "checkout"
	AdapterHook     = "step_hook"
)

func (e *AdapterError) Error() string { return e.Adapter + ": " + e.Err.Error() }
func (e *AdapterError) Unwrap() error { return e.Err }
func (e *AdapterError) Kind() string  { return apperr.KindAdapter }

func (e *AdapterError) UserMessage() string {
	var um interface{ UserMessage() string }
	if errors.As(e.Err, &um) {
		return um.UserMessage()
	}
	switch {
	case e.Adapter == AdapterVerifier || errors.Is(e.Err, address.ErrVerifierUnavailable):
		return "We could not verify your address. Please try again."
	case e.Adapter == AdapterStore:
		return "We couldn't save your progress. Please try again."
	case e.Adapter == AdapterCheckout:
		return "We couldn't start checkout. Please try again."
	default:
		return "Something went wrong. Please try again or call " + apperr.SupportPhone + " for assistance."
	}
}

// HookError lets a step hook name the collaborator that failed and the
// message to show.
type HookError struct {
	Adapter string
	Message string
	Err     error
}

func (e *HookError) Error() string       { return e.Adapter + ": " + e.Err.Error() }
func (e *HookError) Unwrap() error       { return e.Err }
func (e *HookError) UserMessage() string { return e.Message }
