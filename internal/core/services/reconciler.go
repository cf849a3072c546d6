package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/srgjo27/ticket_reservation/internal/core/domain"
	"github.com/srgjo27/ticket_reservation/internal/core/ports"
	"github.com/srgjo27/ticket_reservation/internal/platform/clock"
)

const (
	defaultReconcileInterval = 30 * time.Second
	defaultReconcileBatch    = 100
)

type holdExpirer interface {
	ExpireHold(ctx context.Context, bookingID uuid.UUID) (bool, error)
}

// HoldReconciler returns capacity held by unconfirmed, expired bookings to
// the tier. Cache TTLs only drop the markers; this is what frees the ledger.
type HoldReconciler struct {
	bookings ports.BookingRepository
	expirer  holdExpirer
	clock    clock.Clock
	log      *zap.Logger
	interval time.Duration
	batch    int
}

func NewHoldReconciler(bookings ports.BookingRepository, expirer holdExpirer, clk clock.Clock, log *zap.Logger, interval time.Duration, batch int) *HoldReconciler {
	if interval <= 0 {
		interval = defaultReconcileInterval
	}
	if batch <= 0 {
		batch = defaultReconcileBatch
	}
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &HoldReconciler{
		bookings: bookings,
		expirer:  expirer,
		clock:    clk,
		log:      log,
		interval: interval,
		batch:    batch,
	}
}

func (r *HoldReconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.log.Info("hold reconciler started", zap.Duration("interval", r.interval))

	for {
		select {
		case <-ctx.Done():
			r.log.Info("hold reconciler stopped")
			return
		case <-ticker.C:
			if _, err := r.Sweep(ctx); err != nil {
				r.log.Error("hold sweep failed", zap.Error(err))
			}
		}
	}
}

// Sweep expires every overdue hold, one page at a time, and returns how many
// it released. Holds that fail stay behind the cursor, so they cannot keep
// later ones from being reached.
func (r *HoldReconciler) Sweep(ctx context.Context) (int, error) {
	now := r.clock.Now()
	released := 0

	var after *domain.ExpiredHold
	for {
		holds, err := r.bookings.ListExpiredHolds(ctx, now, after, r.batch)
		if err != nil {
			return released, err
		}

		if len(holds) == 0 {
			return released, nil
		}

		r.log.Info("found expired holds", zap.Int("count", len(holds)))

		for _, hold := range holds {
			ok, err := r.expirer.ExpireHold(ctx, hold.BookingID)
			if err != nil {
				r.log.Error("failed to expire hold", zap.String("booking_id", hold.BookingID.String()), zap.Error(err))
				continue
			}
			if ok {
				released++
			}
		}

		if len(holds) < r.batch {
			return released, nil
		}
		if err := ctx.Err(); err != nil {
			return released, err
		}

		last := holds[len(holds)-1]
		after = &last
	}
}
