package domain

import "errors"

var (
	// ErrNotFound marks a referenced batch, delivery or request that does
	// not exist in the store. Surfaced to the caller, never retried.
	ErrNotFound = errors.New("record not found")

	// ErrChannelTimeout is returned when the conversational channel did
	// not produce a reply within the configured window.
	ErrChannelTimeout = errors.New("channel reply timed out")

	// ErrInvalidQuantity is returned when every reply within the attempt
	// limit failed to parse as a whole number.
	ErrInvalidQuantity = errors.New("reported quantity is not a whole number")

	// ErrDeliveryNotFailed rejects a reschedule for a shipment the
	// courier does not report as failed.
	ErrDeliveryNotFailed = errors.New("delivery not confirmed failed")

	// ErrAlreadyRescheduled rejects a second reschedule of the same
	// original request.
	ErrAlreadyRescheduled = errors.New("request already rescheduled")
)
