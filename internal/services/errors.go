package services

import "errors"

// Business errors surfaced to the API layer. Infrastructure failures are
// wrapped store/transport errors and map to 500.
var (
	ErrProxyNotFound   = errors.New("proxy not found")
	ErrRenewalNotFound = errors.New("renewal not found")
	ErrUserNotFound    = errors.New("user not found")
	ErrAlertNotFound   = errors.New("alert not found")
	ErrInvalidState    = errors.New("invalid state for operation")
	ErrPaymentFailed   = errors.New("payment failed")
	ErrPriceNotFound   = errors.New("no price configured for type and duration")
	ErrDeliveryFailed  = errors.New("notification delivery failed")
)
