package services

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/srgjo27/ticket_reservation/internal/core/domain"
	"github.com/srgjo27/ticket_reservation/internal/core/ports"
)

const unwindTimeout = 5 * time.Second

// seatLockSet acquires seat locks for one request in sorted order and knows
// how to give back exactly what it took.
type seatLockSet struct {
	locks    ports.LockService
	eventID  uuid.UUID
	holderID uuid.UUID
	ttl      time.Duration
	log      *zap.Logger
	acquired []string
}

func newSeatLockSet(locks ports.LockService, eventID, holderID uuid.UUID, ttl time.Duration, log *zap.Logger) *seatLockSet {
	return &seatLockSet{locks: locks, eventID: eventID, holderID: holderID, ttl: ttl, log: log}
}

// acquireAll either takes every seat or none of them. A cache error counts
// as the seat being unavailable.
func (s *seatLockSet) acquireAll(ctx context.Context, seatIDs []string) (err error) {
	defer func() {
		if err != nil {
			s.releaseAll(ctx)
		}
	}()

	for _, seatID := range seatIDs {
		ok, err := s.locks.Acquire(ctx, domain.SeatLockKey(s.eventID, seatID), s.holderID, s.ttl)
		if err != nil {
			s.log.Warn("seat lock unavailable", zap.String("seat_id", seatID), zap.Error(err))
			return errors.Mark(errors.Wrapf(err, "lock seat %s", seatID), domain.ErrSeatUnavailable)
		}
		if !ok {
			return domain.SeatUnavailableError(seatID)
		}
		s.acquired = append(s.acquired, seatID)
	}
	return nil
}

func (s *seatLockSet) releaseAll(ctx context.Context) {
	if len(s.acquired) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), unwindTimeout)
	defer cancel()

	for i := len(s.acquired) - 1; i >= 0; i-- {
		seatID := s.acquired[i]
		if err := s.locks.Release(ctx, domain.SeatLockKey(s.eventID, seatID), s.holderID); err != nil {
			s.log.Warn("failed to release seat lock", zap.String("seat_id", seatID), zap.Error(err))
		}
	}
	s.acquired = nil
}
