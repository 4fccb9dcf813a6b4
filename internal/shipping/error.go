package shipping

import (
	"fmt"

	"monarchmail-be/internal/apperr"
)

type shippingError struct {
	kind string
	msg  string
	user string
}

func (e *shippingError) Error() string       { return e.msg }
func (e *shippingError) Kind() string        { return e.kind }
func (e *shippingError) UserMessage() string { return e.user }

var (
	ErrRateLookupUnavailable = &shippingError{apperr.KindAdapter, "shipping: rate lookup unavailable",
		"Unable to calculate rates. Please check your information and try again."}
	ErrNoRates = &shippingError{apperr.KindValidation, "shipping: no rates returned",
		"No shipping rates are available for this package. Please check the addresses and weight."}
	ErrLabelPurchaseFailed = &shippingError{apperr.KindAdapter, "shipping: label purchase failed",
		"We couldn't purchase your label. Please try again."}
	ErrRateNotInBatch = &shippingError{apperr.KindValidation, "shipping: rate not in current batch",
		"Please select one of the rates shown."}
	ErrLabelNotFound = fmt.Errorf("shipping label %w", apperr.ErrNotFound)
)
