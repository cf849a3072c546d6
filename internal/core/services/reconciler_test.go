package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/srgjo27/ticket_reservation/internal/core/domain"
	"github.com/srgjo27/ticket_reservation/internal/core/ports/mocks"
	"github.com/srgjo27/ticket_reservation/internal/core/services"
)

func TestSweep_ReclaimsExpiredHold(t *testing.T) {
	f := newFixture(t, 5, 0)
	ctx := context.Background()
	reconciler := services.NewHoldReconciler(f.store, f.svc, f.clock, zap.NewNop(), time.Minute, 10)

	booking, err := f.svc.Hold(ctx, f.request(uuid.New(), 5, "A1", "A2", "A3", "A4", "A5"))
	require.NoError(t, err)

	_, err = f.svc.Hold(ctx, f.request(uuid.New(), 1))
	require.True(t, errors.Is(err, domain.ErrInventoryUnavailable))

	released, err := reconciler.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, released, "hold still inside its window")

	f.clock.Advance(5 * time.Minute)

	released, err = reconciler.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, released)

	stored := f.store.booking(booking.ID)
	assert.Equal(t, domain.BookingCancelled, stored.Status)
	assert.Equal(t, 0, f.store.tier(f.tier.ID).QuantityHeld)
	assert.False(t, f.locks.locked(f.tier.EventID, "A1"))

	last := f.pub.events[len(f.pub.events)-1]
	assert.Equal(t, domain.TopicBookingCancelled, last.topic)
	assert.Equal(t, domain.ReasonHoldExpired, last.event.Reason)

	_, err = f.svc.Hold(ctx, f.request(uuid.New(), 1, "A1"))
	assert.NoError(t, err, "reclaimed capacity is available again")

	released, err = reconciler.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, released)
}

func TestSweep_LeavesConfirmedBookings(t *testing.T) {
	f := newFixture(t, 5, 0)
	ctx := context.Background()
	userID := uuid.New()
	reconciler := services.NewHoldReconciler(f.store, f.svc, f.clock, zap.NewNop(), time.Minute, 10)

	booking, err := f.svc.Hold(ctx, f.request(userID, 2))
	require.NoError(t, err)
	require.NoError(t, f.svc.Confirm(ctx, userID, booking.ID))

	f.clock.Advance(time.Hour)

	released, err := reconciler.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, released)
	assert.Equal(t, 2, f.store.tier(f.tier.ID).QuantitySold)
}

func TestExpireHold_LosesRaceToConfirm(t *testing.T) {
	f := newFixture(t, 5, 0)
	ctx := context.Background()

	booking, err := f.svc.Hold(ctx, f.request(uuid.New(), 1))
	require.NoError(t, err)
	f.clock.Advance(10 * time.Minute)

	// confirm lands between the sweep's read and its write
	require.NoError(t, f.store.UpdateStatus(ctx, booking.ID, domain.BookingHeld, domain.BookingConfirmed, booking.Version))
	stale := *booking
	bookings := mocks.NewBookingRepository(t)
	bookings.On("GetByID", mock.Anything, booking.ID).Return(&stale, nil).Once()
	bookings.On("UpdateStatus", mock.Anything, booking.ID, domain.BookingHeld, domain.BookingCancelled, booking.Version).
		Return(domain.BookingVersionConflictError(booking.ID, booking.Version)).Once()

	svc := services.NewBookingService(f.store, f.store, bookings, f.locks, f.pub, zap.NewNop(), services.WithClock(f.clock))

	expired, err := svc.ExpireHold(ctx, booking.ID)

	assert.NoError(t, err)
	assert.False(t, expired)
	assert.Equal(t, 1, f.store.tier(f.tier.ID).QuantityHeld)
}

func TestSweep_ContinuesAfterFailure(t *testing.T) {
	bookings := mocks.NewBookingRepository(t)
	expirer := &stubExpirer{fail: map[uuid.UUID]bool{}}
	first, second := uuid.New(), uuid.New()
	expirer.fail[first] = true

	bookings.On("ListExpiredHolds", mock.Anything, mock.AnythingOfType("time.Time"), (*domain.ExpiredHold)(nil), 25).
		Return([]domain.ExpiredHold{{BookingID: first}, {BookingID: second}}, nil).Once()

	reconciler := services.NewHoldReconciler(bookings, expirer, nil, zap.NewNop(), 0, 25)

	released, err := reconciler.Sweep(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, released)
	assert.Equal(t, []uuid.UUID{first, second}, expirer.calls)
}

func TestSweep_FailingHoldsDoNotBlockLaterPages(t *testing.T) {
	bookings := mocks.NewBookingRepository(t)
	expirer := &stubExpirer{fail: map[uuid.UUID]bool{}}
	at := time.Date(2026, 3, 14, 17, 0, 0, 0, time.UTC)
	stuck := []domain.ExpiredHold{
		{BookingID: uuid.New(), ExpiresAt: at},
		{BookingID: uuid.New(), ExpiresAt: at.Add(time.Second)},
	}
	later := domain.ExpiredHold{BookingID: uuid.New(), ExpiresAt: at.Add(time.Minute)}
	for _, hold := range stuck {
		expirer.fail[hold.BookingID] = true
	}

	bookings.On("ListExpiredHolds", mock.Anything, mock.Anything, (*domain.ExpiredHold)(nil), 2).
		Return(stuck, nil).Once()
	bookings.On("ListExpiredHolds", mock.Anything, mock.Anything, mock.MatchedBy(func(after *domain.ExpiredHold) bool {
		return after != nil && *after == stuck[1]
	}), 2).
		Return([]domain.ExpiredHold{later}, nil).Once()

	reconciler := services.NewHoldReconciler(bookings, expirer, nil, zap.NewNop(), 0, 2)

	released, err := reconciler.Sweep(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, released)
	assert.Equal(t, []uuid.UUID{stuck[0].BookingID, stuck[1].BookingID, later.BookingID}, expirer.calls)
}

func TestSweep_PagesThroughEveryExpiredHold(t *testing.T) {
	f := newFixture(t, 10, 0)
	ctx := context.Background()
	reconciler := services.NewHoldReconciler(f.store, f.svc, f.clock, zap.NewNop(), time.Minute, 2)

	for i := 0; i < 5; i++ {
		_, err := f.svc.Hold(ctx, f.request(uuid.New(), 1))
		require.NoError(t, err)
		f.clock.Advance(time.Second)
	}
	f.clock.Advance(10 * time.Minute)

	released, err := reconciler.Sweep(ctx)

	require.NoError(t, err)
	assert.Equal(t, 5, released)
	assert.Equal(t, 0, f.store.tier(f.tier.ID).QuantityHeld)
}

func TestRun_StopsOnCancel(t *testing.T) {
	bookings := mocks.NewBookingRepository(t)
	bookings.On("ListExpiredHolds", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, nil).Maybe()

	reconciler := services.NewHoldReconciler(bookings, &stubExpirer{}, nil, zap.NewNop(), 5*time.Millisecond, 10)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		reconciler.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reconciler did not stop")
	}
}

type stubExpirer struct {
	fail  map[uuid.UUID]bool
	calls []uuid.UUID
}

func (s *stubExpirer) ExpireHold(_ context.Context, id uuid.UUID) (bool, error) {
	s.calls = append(s.calls, id)
	if s.fail[id] {
		return false, errors.New("db unavailable")
	}
	return true, nil
}
