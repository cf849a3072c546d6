package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SeatLock is the cache-resident claim on one seat of one event. It is
// advisory: the tier ledger stays authoritative for capacity.
type SeatLock struct {
	EventID   uuid.UUID
	SeatID    string
	HolderID  uuid.UUID
	ExpiresAt time.Time
}

func (l SeatLock) Key() string {
	return SeatLockKey(l.EventID, l.SeatID)
}

func SeatLockKey(eventID uuid.UUID, seatID string) string {
	return fmt.Sprintf("lock:seat:%s:%s", eventID, seatID)
}

func HoldMarkerKey(bookingID uuid.UUID) string {
	return fmt.Sprintf("hold:booking:%s", bookingID)
}

func IdempotencyKey(userID uuid.UUID, key string) string {
	return fmt.Sprintf("idempotency:%s:%s", userID, key)
}
