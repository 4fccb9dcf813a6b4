package address

import "errors"

var (
	ErrVerifierUnavailable  = errors.New("address verifier unavailable")
	ErrSavedAddressNotFound = errors.New("saved address not found")
)
