package leads

import "errors"

var (
	// ErrLeadNotFound is returned when a lead is not found
	ErrLeadNotFound = errors.New("lead not found")

	// ErrDuplicatePaymentIntent is returned when a lead already references the payment intent
	ErrDuplicatePaymentIntent = errors.New("lead already exists for payment intent")
)
