package payment

import "errors"

var (
	ErrEmptyCheckout    = errors.New("checkout has no line items")
	ErrInvalidSignature = errors.New("invalid webhook signature")
)
