package domain

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// Failure kinds surfaced to callers. Specific errors are marked with one or
// more of these so errors.Is works against both the kind and the cause.
var (
	ErrSeatUnavailable        = errors.New("seat unavailable")
	ErrInventoryUnavailable   = errors.New("inventory unavailable")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrNotFound               = errors.New("not found")
	ErrUnauthorized           = errors.New("unauthorized")
	ErrInvalidState           = errors.New("invalid state")
	ErrValidation             = errors.New("validation failed")
)

var (
	ErrSoldOut               = errors.New("insufficient inventory")
	ErrInventoryConflict     = errors.New("inventory conflict, please retry")
	ErrHoldExpired           = errors.New("hold expired")
	ErrIdempotencyInProgress = errors.New("request with this idempotency key is in progress")
	ErrIdempotencyKeyReused  = errors.New("idempotency key was used for a different request")
	ErrLedgerMismatch        = errors.New("tier counters do not cover the booking")
	ErrBookingNotFound       = errors.New("booking not found")
	ErrTierNotFound          = errors.New("ticket tier not found")
	ErrTierEventMismatch     = errors.New("ticket tier does not belong to event")
	ErrInvalidQuantity       = errors.New("invalid quantity")
	ErrTooManyTickets        = errors.New("too many tickets requested")
	ErrInvalidSeat           = errors.New("invalid seat selection")
	ErrInvalidPromoCode      = errors.New("invalid promo code")
)

func mark(err error, kinds ...error) error {
	for _, k := range kinds {
		err = errors.Mark(err, k)
	}
	return err
}

func SeatUnavailableError(seatID string) error {
	return mark(errors.Newf("seat %s is unavailable", seatID), ErrSeatUnavailable)
}

func SoldOutError(tierID uuid.UUID, requested, available int) error {
	return mark(errors.Wrapf(ErrSoldOut, "tier %s: requested %d, available %d", tierID, requested, available),
		ErrInventoryUnavailable)
}

func InventoryConflictError(tierID uuid.UUID) error {
	return mark(errors.Wrapf(ErrInventoryConflict, "tier %s", tierID),
		ErrInventoryUnavailable, ErrConcurrentModification)
}

func BookingNotFoundError(id uuid.UUID) error {
	return mark(errors.Wrapf(ErrBookingNotFound, "booking %s", id), ErrNotFound)
}

func TierNotFoundError(id uuid.UUID) error {
	return mark(errors.Wrapf(ErrTierNotFound, "tier %s", id), ErrNotFound)
}

func BookingVersionConflictError(id uuid.UUID, version int) error {
	return mark(errors.Newf("booking %s was modified concurrently (expected version %d)", id, version),
		ErrConcurrentModification)
}

func InvalidStateError(id uuid.UUID, status BookingStatus, op string) error {
	return mark(errors.Newf("cannot %s booking %s in '%s' state", op, id, status), ErrInvalidState)
}

func HoldExpiredError(id uuid.UUID) error {
	return mark(errors.Wrapf(ErrHoldExpired, "booking %s", id), ErrInvalidState)
}

func IdempotencyInProgressError(key string) error {
	return mark(errors.Wrapf(ErrIdempotencyInProgress, "key %q", key), ErrConcurrentModification)
}

func IdempotencyKeyReusedError(key string) error {
	return mark(errors.Wrapf(ErrIdempotencyKeyReused, "key %q", key), ErrValidation)
}

// LedgerMismatchError reports a tier whose counters cannot absorb a
// transition the booking row allowed.
func LedgerMismatchError(tierID uuid.UUID, counter Counter, quantity int) error {
	return mark(errors.Wrapf(ErrLedgerMismatch, "tier %s: fewer than %d units %s", tierID, quantity, counter),
		ErrInvalidState)
}

func ValidationError(cause error, format string, args ...any) error {
	return mark(errors.Wrap(cause, fmt.Sprintf(format, args...)), ErrValidation)
}

// IsRetryable reports whether the same request may succeed if repeated with
// freshly read state.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}
