package services

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/srgjo27/ticket_reservation/internal/core/domain"
	"github.com/srgjo27/ticket_reservation/internal/core/ports"
	"github.com/srgjo27/ticket_reservation/internal/platform/clock"
)

const (
	defaultHoldTTL         = 5 * time.Minute
	defaultReserveAttempts = 3
	defaultIdempotencyTTL  = 24 * time.Hour
	defaultPendingTTL      = time.Minute
	defaultCurrency        = "USD"
	publishTimeout         = 5 * time.Second
)

// BookingService owns the booking lifecycle: hold, confirm, cancel, refund
// and expiry. Seat locks guard against contention; the tier ledger CAS is
// what actually protects capacity.
type BookingService struct {
	tx          ports.TxManager
	tiers       ports.TierLedger
	bookings    ports.BookingRepository
	locks       ports.LockService
	publisher   ports.EventPublisher
	idempotency ports.IdempotencyStore
	clock       clock.Clock
	log         *zap.Logger

	holdTTL         time.Duration
	maxTickets      int
	reserveAttempts int
	idempotencyTTL  time.Duration
	pendingTTL      time.Duration
	currency        string
	promos          domain.PromoCatalog
}

type Option func(*BookingService)

func WithHoldTTL(d time.Duration) Option {
	return func(s *BookingService) {
		if d > 0 {
			s.holdTTL = d
		}
	}
}

func WithMaxTicketsPerOrder(n int) Option {
	return func(s *BookingService) {
		if n > 0 {
			s.maxTickets = n
		}
	}
}

// WithReserveAttempts bounds how many times hold re-reads the tier after a
// version conflict before giving up.
func WithReserveAttempts(n int) Option {
	return func(s *BookingService) {
		if n > 0 {
			s.reserveAttempts = n
		}
	}
}

func WithIdempotency(store ports.IdempotencyStore, ttl time.Duration) Option {
	return func(s *BookingService) {
		s.idempotency = store
		if ttl > 0 {
			s.idempotencyTTL = ttl
		}
	}
}

// WithIdempotencyPendingTTL bounds how long an unfinished claim blocks
// retries with the same key, e.g. after a crash mid-hold.
func WithIdempotencyPendingTTL(d time.Duration) Option {
	return func(s *BookingService) {
		if d > 0 {
			s.pendingTTL = d
		}
	}
}

func WithPromoCodes(promos map[string]int64) Option {
	return func(s *BookingService) {
		s.promos = domain.PromoCatalog{}
		for code, cents := range promos {
			s.promos[strings.ToUpper(code)] = cents
		}
	}
}

func WithCurrency(currency string) Option {
	return func(s *BookingService) {
		if currency != "" {
			s.currency = currency
		}
	}
}

func WithClock(c clock.Clock) Option {
	return func(s *BookingService) {
		s.clock = c
	}
}

func NewBookingService(
	tx ports.TxManager,
	tiers ports.TierLedger,
	bookings ports.BookingRepository,
	locks ports.LockService,
	publisher ports.EventPublisher,
	log *zap.Logger,
	opts ...Option,
) *BookingService {
	s := &BookingService{
		tx:              tx,
		tiers:           tiers,
		bookings:        bookings,
		locks:           locks,
		publisher:       publisher,
		clock:           clock.NewSystem(),
		log:             log,
		holdTTL:         defaultHoldTTL,
		maxTickets:      domain.DefaultMaxTicketsPerOrder,
		reserveAttempts: defaultReserveAttempts,
		idempotencyTTL:  defaultIdempotencyTTL,
		pendingTTL:      defaultPendingTTL,
		currency:        defaultCurrency,
		promos:          domain.PromoCatalog{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Hold reserves tier capacity (and seats, when given) for req.UserID and
// returns the new booking in the held state.
func (s *BookingService) Hold(ctx context.Context, req domain.HoldRequest) (*domain.Booking, error) {
	quantity, err := req.ResolveQuantity(s.maxTickets)
	if err != nil {
		return nil, err
	}

	if req.IdempotencyKey == "" || s.idempotency == nil {
		return s.hold(ctx, req, quantity)
	}

	key := domain.IdempotencyKey(req.UserID, req.IdempotencyKey)
	fingerprint := req.Fingerprint(quantity)
	claim := domain.IdempotencyRecord{Fingerprint: fingerprint}

	existing, started, err := s.idempotency.Claim(ctx, key, claim.String(), s.pendingTTL)
	if err != nil {
		return nil, errors.Wrap(err, "claim idempotency key")
	}

	if !started {
		return s.replay(ctx, req, fingerprint, existing)
	}

	booking, err := s.hold(ctx, req, quantity)
	if err != nil {
		if abandonErr := s.idempotency.Abandon(context.WithoutCancel(ctx), key); abandonErr != nil {
			s.log.Warn("failed to abandon idempotency key", zap.String("key", key), zap.Error(abandonErr))
		}
		return nil, err
	}

	result := domain.IdempotencyRecord{Fingerprint: fingerprint, BookingID: booking.ID}
	if err := s.idempotency.Complete(context.WithoutCancel(ctx), key, result.String(), s.idempotencyTTL); err != nil {
		s.log.Error("failed to store idempotency result",
			zap.String("key", key),
			zap.String("booking_id", booking.ID.String()),
			zap.Duration("pending_ttl", s.pendingTTL),
			zap.Error(err),
		)
	}

	return booking, nil
}

// replay answers a hold whose key was already claimed: the same request gets
// the booking it produced, a different one is rejected.
func (s *BookingService) replay(ctx context.Context, req domain.HoldRequest, fingerprint, existing string) (*domain.Booking, error) {
	if existing == "" {
		return nil, domain.IdempotencyInProgressError(req.IdempotencyKey)
	}

	record, err := domain.ParseIdempotencyRecord(existing)
	if err != nil {
		return nil, err
	}

	if record.Fingerprint != fingerprint {
		return nil, domain.IdempotencyKeyReusedError(req.IdempotencyKey)
	}

	if record.Pending() {
		return nil, domain.IdempotencyInProgressError(req.IdempotencyKey)
	}

	s.log.Info("replaying hold", zap.String("booking_id", record.BookingID.String()), zap.String("idempotency_key", req.IdempotencyKey))
	return s.bookings.GetByID(ctx, record.BookingID)
}

func (s *BookingService) hold(ctx context.Context, req domain.HoldRequest, quantity int) (*domain.Booking, error) {
	seats := newSeatLockSet(s.locks, req.EventID, req.UserID, s.holdTTL, s.log)
	if err := seats.acquireAll(ctx, req.SortedSeatIDs()); err != nil {
		return nil, err
	}

	booking, err := s.reserveAndPersist(ctx, req, quantity)
	if err != nil {
		seats.releaseAll(ctx)
		return nil, err
	}

	if err := s.locks.MarkHold(ctx, booking.ID, s.holdTTL); err != nil {
		s.log.Warn("failed to set hold marker", zap.String("booking_id", booking.ID.String()), zap.Error(err))
	}

	s.publish(ctx, booking, "")

	s.log.Info("seats held",
		zap.String("booking_id", booking.ID.String()),
		zap.String("user_id", req.UserID.String()),
		zap.Int("quantity", quantity),
	)

	return booking, nil
}

// reserveAndPersist moves quantity into the tier's held counter and writes
// the booking in one transaction, so a failed insert never strands capacity.
func (s *BookingService) reserveAndPersist(ctx context.Context, req domain.HoldRequest, quantity int) (*domain.Booking, error) {
	for attempt := 1; ; attempt++ {
		var booking *domain.Booking

		err := s.tx.WithTx(ctx, func(ctx context.Context) error {
			tier, err := s.tiers.GetTier(ctx, req.TicketTierID)
			if err != nil {
				return err
			}

			if tier.EventID != req.EventID {
				return domain.ValidationError(domain.ErrTierEventMismatch, "tier %s, event %s", tier.ID, req.EventID)
			}

			quote, err := s.promos.Quote(tier, quantity, req.PromoCode)
			if err != nil {
				return err
			}

			if !tier.CanReserve(quantity) {
				return domain.SoldOutError(tier.ID, quantity, tier.Available())
			}

			outcome, err := s.tiers.Reserve(ctx, tier.ID, quantity, tier.Version)
			if err != nil {
				return err
			}

			switch outcome {
			case domain.ReserveInsufficientCapacity:
				return domain.SoldOutError(tier.ID, quantity, tier.Available())
			case domain.ReserveVersionConflict:
				return domain.InventoryConflictError(tier.ID)
			}

			booking = s.newBooking(req, tier, quantity, quote)
			return s.bookings.CreateBooking(ctx, booking)
		})

		if err == nil {
			return booking, nil
		}

		if errors.Is(err, domain.ErrInventoryConflict) && attempt < s.reserveAttempts {
			s.log.Debug("tier version conflict, retrying",
				zap.String("tier_id", req.TicketTierID.String()),
				zap.Int("attempt", attempt),
			)
			continue
		}

		return nil, err
	}
}

func (s *BookingService) newBooking(req domain.HoldRequest, tier *domain.TicketTier, quantity int, quote domain.Quote) *domain.Booking {
	now := s.clock.Now()
	expiresAt := now.Add(s.holdTTL)
	bookingID := uuid.New()

	var promoCode *string
	if code := strings.ToUpper(strings.TrimSpace(req.PromoCode)); code != "" {
		promoCode = &code
	}

	seatIDs := req.SortedSeatIDs()
	tickets := make([]domain.Ticket, 0, quantity)
	for i := 0; i < quantity; i++ {
		ticket := domain.Ticket{
			ID:           uuid.New(),
			BookingID:    bookingID,
			TicketTierID: tier.ID,
			QRCode:       "QR-" + uuid.NewString(),
			Status:       domain.TicketHeld,
			CreatedAt:    now,
		}
		if i < len(seatIDs) {
			seatID := seatIDs[i]
			ticket.SeatID = &seatID
		}
		tickets = append(tickets, ticket)
	}

	return &domain.Booking{
		ID:             bookingID,
		UserID:         req.UserID,
		EventID:        req.EventID,
		TicketTierID:   tier.ID,
		Status:         domain.BookingHeld,
		TotalAmount:    quote.Total,
		DiscountAmount: quote.Discount,
		Currency:       s.currency,
		PromoCode:      promoCode,
		HoldExpiresAt:  &expiresAt,
		CreatedAt:      now,
		UpdatedAt:      now,
		Tickets:        tickets,
	}
}

func (s *BookingService) Get(ctx context.Context, bookingID uuid.UUID) (*domain.Booking, error) {
	return s.bookings.GetByID(ctx, bookingID)
}

func (s *BookingService) ListForUser(ctx context.Context, userID uuid.UUID, filter domain.BookingFilter) ([]domain.Booking, int, error) {
	return s.bookings.ListByUser(ctx, userID, filter.Normalize())
}

// publish never fails the caller: the transition is already durable.
func (s *BookingService) publish(ctx context.Context, booking *domain.Booking, reason string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	event := domain.NewBookingEvent(booking, s.clock.Now())
	event.Reason = reason
	topic := domain.TopicFor(booking.Status)

	if err := s.publisher.Publish(ctx, topic, booking.ID.String(), event); err != nil {
		s.log.Error("failed to publish booking event",
			zap.String("topic", topic),
			zap.String("booking_id", booking.ID.String()),
			zap.Error(err),
		)
	}
}
