package lock

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/srgjo27/ticket_reservation/internal/core/domain"
)

const holdMarkerValue = "active"

// releaseScript deletes the key only while it still belongs to the caller,
// so a lock that expired and was re-acquired by someone else survives.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisLockService struct {
	client redis.UniversalClient
}

func NewRedisLockService(client redis.UniversalClient) *RedisLockService {
	return &RedisLockService{client: client}
}

// Acquire is a single SET NX EX round trip.
func (s *RedisLockService) Acquire(ctx context.Context, key string, holderID uuid.UUID, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, key, holderID.String(), ttl).Result()
	if err != nil {
		return false, errors.Wrapf(err, "acquire %s", key)
	}
	return ok, nil
}

func (s *RedisLockService) Release(ctx context.Context, key string, holderID uuid.UUID) error {
	if err := releaseScript.Run(ctx, s.client, []string{key}, holderID.String()).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return errors.Wrapf(err, "release %s", key)
	}
	return nil
}

func (s *RedisLockService) MarkHold(ctx context.Context, bookingID uuid.UUID, ttl time.Duration) error {
	if err := s.client.Set(ctx, domain.HoldMarkerKey(bookingID), holdMarkerValue, ttl).Err(); err != nil {
		return errors.Wrapf(err, "mark hold %s", bookingID)
	}
	return nil
}

func (s *RedisLockService) ClearHold(ctx context.Context, bookingID uuid.UUID) error {
	if err := s.client.Del(ctx, domain.HoldMarkerKey(bookingID)).Err(); err != nil {
		return errors.Wrapf(err, "clear hold %s", bookingID)
	}
	return nil
}

// HoldActive reports whether the hold marker for bookingID is still present.
func (s *RedisLockService) HoldActive(ctx context.Context, bookingID uuid.UUID) (bool, error) {
	n, err := s.client.Exists(ctx, domain.HoldMarkerKey(bookingID)).Result()
	if err != nil {
		return false, errors.Wrapf(err, "check hold %s", bookingID)
	}
	return n == 1, nil
}

// SeatLock returns the current claim on a seat, or nil when it is free.
func (s *RedisLockService) SeatLock(ctx context.Context, eventID uuid.UUID, seatID string) (*domain.SeatLock, error) {
	lock := &domain.SeatLock{EventID: eventID, SeatID: seatID}
	key := lock.Key()

	holder, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", key)
	}

	lock.HolderID, err = uuid.Parse(holder)
	if err != nil {
		return nil, errors.Wrapf(err, "lock %s has malformed holder %q", key, holder)
	}

	ttl, err := s.client.PTTL(ctx, key).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "ttl %s", key)
	}

	if ttl > 0 {
		lock.ExpiresAt = time.Now().UTC().Add(ttl)
	}
	return lock, nil
}
