package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

const DefaultMaxTicketsPerOrder = 10

type HoldRequest struct {
	UserID         uuid.UUID
	EventID        uuid.UUID
	TicketTierID   uuid.UUID
	SeatIDs        []string
	Quantity       int
	PromoCode      string
	IdempotencyKey string
}

// ResolveQuantity returns the number of tickets the request asks for. Seat
// selections decide the quantity; otherwise the explicit quantity is used,
// defaulting to one.
func (r HoldRequest) ResolveQuantity(max int) (int, error) {
	if max <= 0 {
		max = DefaultMaxTicketsPerOrder
	}

	quantity := r.Quantity
	if len(r.SeatIDs) > 0 {
		seen := make(map[string]struct{}, len(r.SeatIDs))
		for _, id := range r.SeatIDs {
			if strings.TrimSpace(id) == "" {
				return 0, ValidationError(ErrInvalidSeat, "empty seat id")
			}
			if _, dup := seen[id]; dup {
				return 0, ValidationError(ErrInvalidSeat, "seat %s requested twice", id)
			}
			seen[id] = struct{}{}
		}
		if quantity != 0 && quantity != len(r.SeatIDs) {
			return 0, ValidationError(ErrInvalidQuantity, "quantity %d does not match %d selected seats", quantity, len(r.SeatIDs))
		}
		quantity = len(r.SeatIDs)
	}

	if quantity == 0 {
		quantity = 1
	}
	if quantity < 0 {
		return 0, ValidationError(ErrInvalidQuantity, "quantity %d", quantity)
	}
	if quantity > max {
		return 0, ValidationError(ErrTooManyTickets, "requested %d, at most %d per order", quantity, max)
	}
	return quantity, nil
}

// SortedSeatIDs returns the seat selection in lock acquisition order.
func (r HoldRequest) SortedSeatIDs() []string {
	ids := append([]string(nil), r.SeatIDs...)
	sort.Strings(ids)
	return ids
}

// Fingerprint hashes what the request asks for. A retry carrying the same
// idempotency key must produce the same fingerprint.
func (r HoldRequest) Fingerprint(quantity int) string {
	data, _ := json.Marshal(struct {
		EventID      uuid.UUID `json:"eventId"`
		TicketTierID uuid.UUID `json:"ticketTierId"`
		SeatIDs      []string  `json:"seatIds"`
		Quantity     int       `json:"quantity"`
		PromoCode    string    `json:"promoCode"`
	}{
		EventID:      r.EventID,
		TicketTierID: r.TicketTierID,
		SeatIDs:      r.SortedSeatIDs(),
		Quantity:     quantity,
		PromoCode:    strings.ToUpper(strings.TrimSpace(r.PromoCode)),
	})
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

const pendingRecord = "pending"

// IdempotencyRecord is the value kept under an idempotency key: the
// fingerprint of the request that claimed it and, once that hold succeeded,
// the booking it produced.
type IdempotencyRecord struct {
	Fingerprint string
	BookingID   uuid.UUID
}

func (r IdempotencyRecord) Pending() bool {
	return r.BookingID == uuid.Nil
}

func (r IdempotencyRecord) String() string {
	if r.Pending() {
		return r.Fingerprint + "|" + pendingRecord
	}
	return r.Fingerprint + "|" + r.BookingID.String()
}

func ParseIdempotencyRecord(s string) (IdempotencyRecord, error) {
	fingerprint, rest, ok := strings.Cut(s, "|")
	if !ok || fingerprint == "" {
		return IdempotencyRecord{}, errors.Newf("malformed idempotency record %q", s)
	}
	if rest == pendingRecord {
		return IdempotencyRecord{Fingerprint: fingerprint}, nil
	}

	bookingID, err := uuid.Parse(rest)
	if err != nil {
		return IdempotencyRecord{}, errors.Wrapf(err, "idempotency record %q", s)
	}
	return IdempotencyRecord{Fingerprint: fingerprint, BookingID: bookingID}, nil
}
