package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	TopicBookingHeld      = "booking.held"
	TopicBookingConfirmed = "booking.confirmed"
	TopicBookingCancelled = "booking.cancelled"
	TopicBookingRefunded  = "booking.refunded"
)

const ReasonHoldExpired = "expired"

// BookingEvent is the payload published once per booking transition.
type BookingEvent struct {
	BookingID  uuid.UUID     `json:"bookingId"`
	UserID     uuid.UUID     `json:"userId"`
	EventID    uuid.UUID     `json:"eventId"`
	Status     BookingStatus `json:"status"`
	Amount     int64         `json:"amount"`
	Currency   string        `json:"currency,omitempty"`
	Reason     string        `json:"reason,omitempty"`
	OccurredAt time.Time     `json:"occurredAt"`
}

func NewBookingEvent(b *Booking, at time.Time) BookingEvent {
	return BookingEvent{
		BookingID:  b.ID,
		UserID:     b.UserID,
		EventID:    b.EventID,
		Status:     b.Status,
		Amount:     b.TotalAmount,
		Currency:   b.Currency,
		OccurredAt: at.UTC(),
	}
}

func TopicFor(s BookingStatus) string {
	switch s {
	case BookingHeld:
		return TopicBookingHeld
	case BookingConfirmed:
		return TopicBookingConfirmed
	case BookingRefunded:
		return TopicBookingRefunded
	default:
		return TopicBookingCancelled
	}
}
