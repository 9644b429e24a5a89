package domain

import "errors"

// Validation errors, returned before any transaction opens.
var (
	ErrInvalidDuration      = errors.New("reservation must end after it starts, last whole minutes and meet the minimum duration")
	ErrBookingWindow        = errors.New("reservation start is outside the bookable window")
	ErrInvalidPaymentMethod = errors.New("unsupported payment method")
)

// Lookup errors.
var (
	ErrTableNotFound       = errors.New("table not found")
	ErrTableNotBookable    = errors.New("table is not available for booking")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrPaymentNotFound     = errors.New("payment not found")
)

// Conflict errors, detected inside the unit of work.
var (
	ErrSlotUnavailable        = errors.New("time slot is already booked")
	ErrPromoExhausted         = errors.New("promo code has no uses left")
	ErrPromoInvalid           = errors.New("promo code is not applicable")
	ErrAlreadyPaid            = errors.New("reservation is already paid")
	ErrAlreadyCancelled       = errors.New("reservation is already cancelled")
	ErrCannotCancelCompleted  = errors.New("completed reservation cannot be cancelled")
	ErrInvalidTransition      = errors.New("status transition is not allowed")
	ErrConcurrentModification = errors.New("record was modified concurrently")
	ErrIdempotencyInFlight    = errors.New("request with this idempotency key is still in progress")

	// ErrDuplicateIdempotencyKey means a reservation with the same customer and key is already stored.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")
)

// Authorization and throttling errors.
var (
	ErrUnauthorized = errors.New("actor is not allowed to modify this reservation")
	ErrRateLimited  = errors.New("too many booking attempts, try again later")
)

// Promo ineligibility reasons. Each wraps ErrPromoInvalid except exhaustion.
var (
	ErrPromoUnknown  = newPromoReason("promo code does not exist")
	ErrPromoInactive = newPromoReason("promo code is inactive")
	ErrPromoExpired  = newPromoReason("promo code is outside its validity period")
	ErrPromoMinHours = newPromoReason("booking is shorter than the promo minimum")
)

type promoReason struct {
	msg string
}

func newPromoReason(msg string) error {
	return &promoReason{msg: msg}
}

func (e *promoReason) Error() string { return e.msg }

func (e *promoReason) Unwrap() error { return ErrPromoInvalid }
