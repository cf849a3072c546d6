package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/srgjo27/ticket_reservation/internal/core/domain"
)

type BookingRepository struct {
	db *sql.DB
}

func NewBookingRepository(db *sql.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

const bookingColumns = `id, user_id, event_id, ticket_tier_id, status, total_amount, discount_amount, currency,
	promo_code, hold_expires_at, version, created_at, updated_at`

const ticketColumns = `id, booking_id, ticket_tier_id, seat_id, qr_code, status, created_at`

// CreateBooking writes the booking header and its tickets. Callers run it
// inside the transaction that reserved the tier quantity.
func (r *BookingRepository) CreateBooking(ctx context.Context, booking *domain.Booking) error {
	q := conn(ctx, r.db)

	queryHeader := `
	INSERT INTO bookings (` + bookingColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := q.ExecContext(ctx, queryHeader,
		booking.ID,
		booking.UserID,
		booking.EventID,
		booking.TicketTierID,
		booking.Status,
		booking.TotalAmount,
		booking.DiscountAmount,
		booking.Currency,
		booking.PromoCode,
		booking.HoldExpiresAt,
		booking.Version,
		booking.CreatedAt,
		booking.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "insert booking header")
	}

	queryTicket := `
	INSERT INTO tickets (id, booking_id, event_id, ticket_tier_id, seat_id, qr_code, status, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	for _, ticket := range booking.Tickets {
		_, err := q.ExecContext(ctx, queryTicket,
			ticket.ID,
			ticket.BookingID,
			booking.EventID,
			ticket.TicketTierID,
			ticket.SeatID,
			ticket.QRCode,
			ticket.Status,
			ticket.CreatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) && ticket.SeatID != nil {
				return domain.SeatUnavailableError(*ticket.SeatID)
			}
			return errors.Wrapf(err, "insert ticket %s", ticket.ID)
		}
	}

	return nil
}

func (r *BookingRepository) GetByID(ctx context.Context, bookingID uuid.UUID) (*domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`

	booking, err := scanBooking(conn(ctx, r.db).QueryRowContext(ctx, query, bookingID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.BookingNotFoundError(bookingID)
		}
		return nil, errors.Wrapf(err, "get booking %s", bookingID)
	}

	tickets, err := r.ticketsFor(ctx, []uuid.UUID{bookingID})
	if err != nil {
		return nil, err
	}
	booking.Tickets = tickets[bookingID]

	return booking, nil
}

func (r *BookingRepository) ListByUser(ctx context.Context, userID uuid.UUID, filter domain.BookingFilter) ([]domain.Booking, int, error) {
	filter = filter.Normalize()
	q := conn(ctx, r.db)

	where := []string{"user_id = $1"}
	args := []any{userID}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.EventID != nil {
		args = append(args, *filter.EventID)
		where = append(where, fmt.Sprintf("event_id = $%d", len(args)))
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := q.QueryRowContext(ctx, `SELECT count(*) FROM bookings WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "count bookings")
	}

	query := fmt.Sprintf(`SELECT %s FROM bookings WHERE %s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`,
		bookingColumns, cond, len(args)+1, len(args)+2)

	rows, err := q.QueryContext(ctx, query, append(args, filter.Limit, filter.Offset)...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "list bookings")
	}

	defer rows.Close()

	var bookings []domain.Booking
	var ids []uuid.UUID
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			return nil, 0, errors.Wrap(err, "scan booking")
		}

		bookings = append(bookings, *booking)
		ids = append(ids, booking.ID)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, errors.Wrap(err, "iterate bookings")
	}

	if len(ids) == 0 {
		return bookings, total, nil
	}

	tickets, err := r.ticketsFor(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range bookings {
		bookings[i].Tickets = tickets[bookings[i].ID]
	}

	return bookings, total, nil
}

// UpdateStatus moves a booking from one status to another only when both
// the status and the version still match what the caller read.
func (r *BookingRepository) UpdateStatus(ctx context.Context, bookingID uuid.UUID, from, to domain.BookingStatus, expectedVersion int) error {
	query := `
	UPDATE bookings
	SET status = $1,
		hold_expires_at = NULL,
		version = version + 1,
		updated_at = NOW()
	WHERE id = $2 AND status = $3 AND version = $4
	`

	result, err := conn(ctx, r.db).ExecContext(ctx, query, to, bookingID, from, expectedVersion)
	if err != nil {
		return errors.Wrapf(err, "update booking %s status", bookingID)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return domain.BookingVersionConflictError(bookingID, expectedVersion)
	}

	return nil
}

func (r *BookingRepository) UpdateTicketStatus(ctx context.Context, bookingID uuid.UUID, status domain.TicketStatus) error {
	_, err := conn(ctx, r.db).ExecContext(ctx, `UPDATE tickets SET status = $1 WHERE booking_id = $2`, status, bookingID)
	if err != nil {
		return errors.Wrapf(err, "update tickets of booking %s", bookingID)
	}
	return nil
}

func (r *BookingRepository) ListExpiredHolds(ctx context.Context, now time.Time, after *domain.ExpiredHold, limit int) ([]domain.ExpiredHold, error) {
	query := `
	SELECT id, hold_expires_at FROM bookings
	WHERE status = 'held' AND hold_expires_at <= $1
		AND ($2::timestamptz IS NULL OR (hold_expires_at, id) > ($2::timestamptz, $3::uuid))
	ORDER BY hold_expires_at, id
	LIMIT $4
	`

	var afterAt *time.Time
	afterID := uuid.Nil
	if after != nil {
		afterAt, afterID = &after.ExpiresAt, after.BookingID
	}

	rows, err := conn(ctx, r.db).QueryContext(ctx, query, now, afterAt, afterID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list expired holds")
	}

	defer rows.Close()

	var holds []domain.ExpiredHold
	for rows.Next() {
		var hold domain.ExpiredHold
		if err := rows.Scan(&hold.BookingID, &hold.ExpiresAt); err != nil {
			return nil, err
		}

		holds = append(holds, hold)
	}

	return holds, rows.Err()
}

func (r *BookingRepository) ticketsFor(ctx context.Context, bookingIDs []uuid.UUID) (map[uuid.UUID][]domain.Ticket, error) {
	ids := make([]string, len(bookingIDs))
	for i, id := range bookingIDs {
		ids[i] = id.String()
	}

	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE booking_id = ANY($1::uuid[]) ORDER BY created_at, id`

	rows, err := conn(ctx, r.db).QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, errors.Wrap(err, "list tickets")
	}

	defer rows.Close()

	tickets := make(map[uuid.UUID][]domain.Ticket, len(bookingIDs))
	for rows.Next() {
		var t domain.Ticket
		var seatID sql.NullString

		if err := rows.Scan(&t.ID, &t.BookingID, &t.TicketTierID, &seatID, &t.QRCode, &t.Status, &t.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan ticket")
		}

		if seatID.Valid {
			s := seatID.String
			t.SeatID = &s
		}

		tickets[t.BookingID] = append(tickets[t.BookingID], t)
	}

	return tickets, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (*domain.Booking, error) {
	var b domain.Booking
	var promoCode sql.NullString
	var holdExpiresAt sql.NullTime

	err := row.Scan(
		&b.ID,
		&b.UserID,
		&b.EventID,
		&b.TicketTierID,
		&b.Status,
		&b.TotalAmount,
		&b.DiscountAmount,
		&b.Currency,
		&promoCode,
		&holdExpiresAt,
		&b.Version,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if promoCode.Valid {
		code := promoCode.String
		b.PromoCode = &code
	}

	if holdExpiresAt.Valid {
		t := holdExpiresAt.Time
		b.HoldExpiresAt = &t
	}

	return &b, nil
}
