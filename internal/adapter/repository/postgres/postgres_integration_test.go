//go:build integration

package postgres

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/srgjo27/ticket_reservation/internal/core/domain"
	"github.com/srgjo27/ticket_reservation/internal/platform/config"
	"github.com/srgjo27/ticket_reservation/internal/platform/database"
)

const (
	testUser     = "test"
	testPassword = "testpass"
	testDB       = "ticket_reservation"
)

func startPostgres(t *testing.T) *sql.DB {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:17",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     testUser,
				"POSTGRES_PASSWORD": testPassword,
				"POSTGRES_DB":       testDB,
			},
			Tmpfs:      map[string]string{"/var/lib/postgresql/data": "rw"},
			WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	db, err := database.NewPostgresDB(ctx, config.DBConfig{
		Host:           host,
		Port:           port.Port(),
		User:           testUser,
		Password:       testPassword,
		Name:           testDB,
		SSLMode:        "disable",
		MaxOpenConns:   20,
		MaxIdleConns:   20,
		ConnMaxLife:    time.Minute,
		ConnectRetries: 10,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	schema, err := os.ReadFile(filepath.Join("..", "..", "..", "..", "migrations", "0001_init.sql"))
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, string(schema))
	require.NoError(t, err)

	return db
}

func seedTier(t *testing.T, db *sql.DB, total, sold int) domain.TicketTier {
	t.Helper()
	tier := domain.TicketTier{
		ID:            uuid.New(),
		EventID:       uuid.New(),
		Name:          "Floor",
		PriceCents:    7500,
		QuantityTotal: total,
		QuantitySold:  sold,
	}
	_, err := db.Exec(`
		INSERT INTO ticket_tiers (id, event_id, name, price_cents, quantity_total, quantity_sold)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		tier.ID, tier.EventID, tier.Name, tier.PriceCents, tier.QuantityTotal, tier.QuantitySold)
	require.NoError(t, err)
	return tier
}

func newHeldBooking(tier domain.TicketTier, userID uuid.UUID, expiresAt time.Time, seats ...string) *domain.Booking {
	now := time.Now().UTC()
	b := &domain.Booking{
		ID:            uuid.New(),
		UserID:        userID,
		EventID:       tier.EventID,
		TicketTierID:  tier.ID,
		Status:        domain.BookingHeld,
		TotalAmount:   tier.PriceCents * int64(max(len(seats), 1)),
		Currency:      "USD",
		HoldExpiresAt: &expiresAt,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if len(seats) == 0 {
		b.Tickets = []domain.Ticket{{ID: uuid.New(), BookingID: b.ID, TicketTierID: tier.ID, QRCode: "QR-" + uuid.NewString(), Status: domain.TicketHeld, CreatedAt: now}}
		return b
	}
	for _, seat := range seats {
		b.Tickets = append(b.Tickets, domain.Ticket{
			ID:           uuid.New(),
			BookingID:    b.ID,
			TicketTierID: tier.ID,
			SeatID:       &seat,
			QRCode:       "QR-" + uuid.NewString(),
			Status:       domain.TicketHeld,
			CreatedAt:    now,
		})
	}
	return b
}

func TestIntegration_Postgres(t *testing.T) {
	db := startPostgres(t)
	txm := NewTxManager(db)
	tiers := NewTierRepository(db)
	bookings := NewBookingRepository(db)

	t.Run("reserve classifies outcomes", func(t *testing.T) {
		ctx := context.Background()
		tier := seedTier(t, db, 10, 8)

		outcome, err := tiers.Reserve(ctx, tier.ID, 2, 0)
		require.NoError(t, err)
		assert.Equal(t, domain.ReserveCommitted, outcome)

		outcome, err = tiers.Reserve(ctx, tier.ID, 1, 1)
		require.NoError(t, err)
		assert.Equal(t, domain.ReserveInsufficientCapacity, outcome)

		tier2 := seedTier(t, db, 10, 0)
		outcome, err = tiers.Reserve(ctx, tier2.ID, 1, 7)
		require.NoError(t, err)
		assert.Equal(t, domain.ReserveVersionConflict, outcome)

		got, err := tiers.GetTier(ctx, tier.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, got.QuantityHeld)
		assert.Equal(t, 1, got.Version)
	})

	t.Run("concurrent reserves never oversell", func(t *testing.T) {
		ctx := context.Background()
		tier := seedTier(t, db, 15, 0)

		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			failures  []error
			conflicts atomic.Int64
		)
		fail := func(err error) {
			mu.Lock()
			defer mu.Unlock()
			failures = append(failures, err)
		}

		for i := 0; i < 40; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for attempt := 0; attempt < 100; attempt++ {
					current, err := tiers.GetTier(ctx, tier.ID)
					if err != nil {
						fail(err)
						return
					}
					if !current.CanReserve(1) {
						return
					}
					outcome, err := tiers.Reserve(ctx, tier.ID, 1, current.Version)
					if err != nil {
						fail(err)
						return
					}
					switch outcome {
					case domain.ReserveCommitted:
						return
					case domain.ReserveVersionConflict:
						conflicts.Add(1)
					default:
						// another writer took the last unit between read and write
						return
					}
				}
			}()
		}
		wg.Wait()

		require.Empty(t, failures)

		got, err := tiers.GetTier(ctx, tier.ID)
		require.NoError(t, err)
		assert.Equal(t, 15, got.QuantityHeld)
		assert.Equal(t, 0, got.QuantitySold)
		assert.Equal(t, 15, got.Version)
		assert.GreaterOrEqual(t, conflicts.Load(), int64(1))
	})

	t.Run("commit sale beyond held units", func(t *testing.T) {
		ctx := context.Background()
		tier := seedTier(t, db, 10, 0)

		outcome, err := tiers.Reserve(ctx, tier.ID, 1, 0)
		require.NoError(t, err)
		require.Equal(t, domain.ReserveCommitted, outcome)

		err = tiers.CommitSale(ctx, tier.ID, 2)
		assert.True(t, errors.Is(err, domain.ErrLedgerMismatch), "got %v", err)
		assert.True(t, errors.Is(err, domain.ErrInvalidState))

		err = tiers.CommitSale(ctx, uuid.New(), 1)
		assert.True(t, errors.Is(err, domain.ErrTierNotFound))

		got, err := tiers.GetTier(ctx, tier.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, got.QuantityHeld)
		assert.Equal(t, 0, got.QuantitySold)
	})

	t.Run("booking lifecycle", func(t *testing.T) {
		ctx := context.Background()
		tier := seedTier(t, db, 10, 0)
		userID := uuid.New()
		booking := newHeldBooking(tier, userID, time.Now().Add(time.Minute), "A1", "A2")

		err := txm.WithTx(ctx, func(ctx context.Context) error {
			outcome, err := tiers.Reserve(ctx, tier.ID, 2, 0)
			if err != nil {
				return err
			}
			require.Equal(t, domain.ReserveCommitted, outcome)
			return bookings.CreateBooking(ctx, booking)
		})
		require.NoError(t, err)

		stored, err := bookings.GetByID(ctx, booking.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.BookingHeld, stored.Status)
		assert.ElementsMatch(t, []string{"A1", "A2"}, stored.SeatIDs())

		err = txm.WithTx(ctx, func(ctx context.Context) error {
			if err := bookings.UpdateStatus(ctx, booking.ID, domain.BookingHeld, domain.BookingConfirmed, 0); err != nil {
				return err
			}
			if err := tiers.CommitSale(ctx, tier.ID, 2); err != nil {
				return err
			}
			return bookings.UpdateTicketStatus(ctx, booking.ID, domain.TicketActive)
		})
		require.NoError(t, err)

		err = bookings.UpdateStatus(ctx, booking.ID, domain.BookingHeld, domain.BookingConfirmed, 0)
		assert.True(t, errors.Is(err, domain.ErrConcurrentModification))

		got, err := tiers.GetTier(ctx, tier.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, got.QuantityHeld)
		assert.Equal(t, 2, got.QuantitySold)

		list, total, err := bookings.ListByUser(ctx, userID, domain.BookingFilter{}.Normalize())
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		require.Len(t, list, 1)
		assert.Len(t, list[0].Tickets, 2)
	})

	t.Run("failed insert rolls back reserve", func(t *testing.T) {
		ctx := context.Background()
		tier := seedTier(t, db, 10, 0)

		first := newHeldBooking(tier, uuid.New(), time.Now().Add(time.Minute), "B1")
		require.NoError(t, bookings.CreateBooking(ctx, first))

		second := newHeldBooking(tier, uuid.New(), time.Now().Add(time.Minute), "B1")
		err := txm.WithTx(ctx, func(ctx context.Context) error {
			if _, err := tiers.Reserve(ctx, tier.ID, 1, 0); err != nil {
				return err
			}
			return bookings.CreateBooking(ctx, second)
		})
		assert.True(t, errors.Is(err, domain.ErrSeatUnavailable), "got %v", err)

		got, err := tiers.GetTier(ctx, tier.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, got.QuantityHeld)
		assert.Equal(t, 0, got.Version)
	})

	t.Run("expired holds", func(t *testing.T) {
		ctx := context.Background()
		tier := seedTier(t, db, 10, 0)
		past := newHeldBooking(tier, uuid.New(), time.Now().Add(-time.Minute))
		earlier := newHeldBooking(tier, uuid.New(), time.Now().Add(-2*time.Minute))
		future := newHeldBooking(tier, uuid.New(), time.Now().Add(time.Hour))
		require.NoError(t, bookings.CreateBooking(ctx, past))
		require.NoError(t, bookings.CreateBooking(ctx, earlier))
		require.NoError(t, bookings.CreateBooking(ctx, future))

		var ids []uuid.UUID
		var after *domain.ExpiredHold
		for {
			page, err := bookings.ListExpiredHolds(ctx, time.Now(), after, 1)
			require.NoError(t, err)
			if len(page) == 0 {
				break
			}
			ids = append(ids, page[0].BookingID)
			after = &page[0]
		}

		assert.Contains(t, ids, past.ID)
		assert.Contains(t, ids, earlier.ID)
		assert.NotContains(t, ids, future.ID)
		assert.Less(t, indexOf(ids, earlier.ID), indexOf(ids, past.ID))
	})

	t.Run("missing rows", func(t *testing.T) {
		_, err := tiers.GetTier(context.Background(), uuid.New())
		assert.True(t, errors.Is(err, domain.ErrNotFound))

		_, err = bookings.GetByID(context.Background(), uuid.New())
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})
}

func indexOf(ids []uuid.UUID, id uuid.UUID) int {
	for i, candidate := range ids {
		if candidate == id {
			return i
		}
	}
	return -1
}
