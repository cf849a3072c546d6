package lock

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
)

type RedisIdempotencyStore struct {
	client redis.UniversalClient
}

func NewRedisIdempotencyStore(client redis.UniversalClient) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{client: client}
}

// Claim writes value with SET NX. When the key is taken it returns the
// stored value; an empty result means the key was contended and vanished
// twice in a row.
func (s *RedisIdempotencyStore) Claim(ctx context.Context, key string, value string, ttl time.Duration) (string, bool, error) {
	// Two rounds cover a previous claim expiring between SETNX and GET.
	for i := 0; i < 2; i++ {
		ok, err := s.client.SetNX(ctx, key, value, ttl).Result()
		if err != nil {
			return "", false, errors.Wrapf(err, "claim %s", key)
		}
		if ok {
			return "", true, nil
		}

		existing, err := s.client.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return "", false, errors.Wrapf(err, "read %s", key)
		}
		return existing, false, nil
	}
	return "", false, nil
}

func (s *RedisIdempotencyStore) Complete(ctx context.Context, key string, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return errors.Wrapf(err, "complete %s", key)
	}
	return nil
}

func (s *RedisIdempotencyStore) Abandon(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return errors.Wrapf(err, "abandon %s", key)
	}
	return nil
}
