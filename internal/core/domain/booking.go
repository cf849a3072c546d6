package domain

import (
	"time"

	"github.com/google/uuid"
)

type BookingStatus string

const (
	BookingHeld      BookingStatus = "held"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
	BookingRefunded  BookingStatus = "refunded"
)

var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingHeld:      {BookingConfirmed, BookingCancelled},
	BookingConfirmed: {BookingCancelled, BookingRefunded},
}

func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	for _, allowed := range bookingTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s BookingStatus) IsTerminal() bool {
	return len(bookingTransitions[s]) == 0
}

func (s BookingStatus) Valid() bool {
	switch s {
	case BookingHeld, BookingConfirmed, BookingCancelled, BookingRefunded:
		return true
	}
	return false
}

// Counter returns the tier counter that holds this booking's quantity.
func (s BookingStatus) Counter() (Counter, bool) {
	switch s {
	case BookingHeld:
		return CounterHeld, true
	case BookingConfirmed:
		return CounterSold, true
	}
	return "", false
}

type Booking struct {
	ID             uuid.UUID
	UserID         uuid.UUID
	EventID        uuid.UUID
	TicketTierID   uuid.UUID
	Status         BookingStatus
	TotalAmount    int64
	DiscountAmount int64
	Currency       string
	PromoCode      *string
	HoldExpiresAt  *time.Time
	Version        int
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Tickets        []Ticket
}

func (b *Booking) IsOwnedBy(userID uuid.UUID) bool {
	return b.UserID == userID
}

func (b *Booking) TicketCount() int {
	return len(b.Tickets)
}

func (b *Booking) HoldExpired(now time.Time) bool {
	return b.Status == BookingHeld && b.HoldExpiresAt != nil && !now.Before(*b.HoldExpiresAt)
}

// ExpiredHold identifies an overdue hold. The pair orders the expiry sweep,
// and the last one of a page is the cursor for the next.
type ExpiredHold struct {
	BookingID uuid.UUID
	ExpiresAt time.Time
}

func (b *Booking) SeatIDs() []string {
	var ids []string
	for _, t := range b.Tickets {
		if t.SeatID != nil {
			ids = append(ids, *t.SeatID)
		}
	}
	return ids
}

type TicketStatus string

const (
	TicketHeld        TicketStatus = "held"
	TicketActive      TicketStatus = "active"
	TicketUsed        TicketStatus = "used"
	TicketCancelled   TicketStatus = "cancelled"
	TicketTransferred TicketStatus = "transferred"
)

// TicketStatusFor maps a booking stage to the status its tickets mirror.
func TicketStatusFor(s BookingStatus) TicketStatus {
	switch s {
	case BookingHeld:
		return TicketHeld
	case BookingConfirmed:
		return TicketActive
	default:
		return TicketCancelled
	}
}

type Ticket struct {
	ID           uuid.UUID
	BookingID    uuid.UUID
	TicketTierID uuid.UUID
	SeatID       *string
	QRCode       string
	Status       TicketStatus
	CreatedAt    time.Time
}

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

type BookingFilter struct {
	Status  *BookingStatus
	EventID *uuid.UUID
	Limit   int
	Offset  int
}

func (f BookingFilter) Normalize() BookingFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultPageLimit
	}
	if f.Limit > MaxPageLimit {
		f.Limit = MaxPageLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}
