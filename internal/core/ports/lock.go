package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type LockService interface {
	// Acquire sets key to holder only if the key is absent.
	Acquire(ctx context.Context, key string, holderID uuid.UUID, ttl time.Duration) (bool, error)
	// Release deletes key if it is still owned by holder. Missing keys are not an error.
	Release(ctx context.Context, key string, holderID uuid.UUID) error
	MarkHold(ctx context.Context, bookingID uuid.UUID, ttl time.Duration) error
	ClearHold(ctx context.Context, bookingID uuid.UUID) error
}

type IdempotencyStore interface {
	// Claim stores value under key only if the key is absent and reports
	// started=true when it did. Otherwise it returns the value already there.
	Claim(ctx context.Context, key string, value string, ttl time.Duration) (existing string, started bool, err error)
	Complete(ctx context.Context, key string, value string, ttl time.Duration) error
	Abandon(ctx context.Context, key string) error
}
