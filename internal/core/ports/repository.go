package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/srgjo27/ticket_reservation/internal/core/domain"
)

// TxManager runs fn in one database transaction. Repository calls made with
// the context passed to fn join that transaction.
type TxManager interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// TierLedger is the only writer of ticket tier counters.
type TierLedger interface {
	GetTier(ctx context.Context, tierID uuid.UUID) (*domain.TicketTier, error)
	Reserve(ctx context.Context, tierID uuid.UUID, quantity int, expectedVersion int) (domain.ReserveOutcome, error)
	CommitSale(ctx context.Context, tierID uuid.UUID, quantity int) error
	Release(ctx context.Context, tierID uuid.UUID, quantity int, from domain.Counter) error
}

type BookingRepository interface {
	CreateBooking(ctx context.Context, booking *domain.Booking) error
	GetByID(ctx context.Context, bookingID uuid.UUID) (*domain.Booking, error)
	ListByUser(ctx context.Context, userID uuid.UUID, filter domain.BookingFilter) ([]domain.Booking, int, error)
	UpdateStatus(ctx context.Context, bookingID uuid.UUID, from, to domain.BookingStatus, expectedVersion int) error
	UpdateTicketStatus(ctx context.Context, bookingID uuid.UUID, status domain.TicketStatus) error
	// ListExpiredHolds pages through overdue holds in expiry order, starting
	// after the given hold (nil for the first page).
	ListExpiredHolds(ctx context.Context, now time.Time, after *domain.ExpiredHold, limit int) ([]domain.ExpiredHold, error)
}
