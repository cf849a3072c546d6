package services_test

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/srgjo27/ticket_reservation/internal/core/domain"
	"github.com/srgjo27/ticket_reservation/internal/platform/clock"
)

// memStore is an in-memory ledger and booking repository. Transactions are
// serialised and roll back by restoring a snapshot.
type memStore struct {
	txMu sync.Mutex

	mu       sync.Mutex
	tiers    map[uuid.UUID]domain.TicketTier
	bookings map[uuid.UUID]domain.Booking
	seats    map[string]uuid.UUID
}

func newMemStore(tiers ...domain.TicketTier) *memStore {
	s := &memStore{
		tiers:    map[uuid.UUID]domain.TicketTier{},
		bookings: map[uuid.UUID]domain.Booking{},
		seats:    map[string]uuid.UUID{},
	}
	for _, t := range tiers {
		s.tiers[t.ID] = t
	}
	return s
}

type inTxKey struct{}

func (s *memStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(inTxKey{}) != nil {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	tiers, bookings, seats := s.snapshot()
	s.mu.Unlock()

	if err := fn(context.WithValue(ctx, inTxKey{}, true)); err != nil {
		s.mu.Lock()
		s.tiers, s.bookings, s.seats = tiers, bookings, seats
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *memStore) snapshot() (map[uuid.UUID]domain.TicketTier, map[uuid.UUID]domain.Booking, map[string]uuid.UUID) {
	tiers := make(map[uuid.UUID]domain.TicketTier, len(s.tiers))
	for k, v := range s.tiers {
		tiers[k] = v
	}
	bookings := make(map[uuid.UUID]domain.Booking, len(s.bookings))
	for k, v := range s.bookings {
		bookings[k] = cloneBooking(v)
	}
	seats := make(map[string]uuid.UUID, len(s.seats))
	for k, v := range s.seats {
		seats[k] = v
	}
	return tiers, bookings, seats
}

func (s *memStore) tier(id uuid.UUID) domain.TicketTier {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tiers[id]
}

func (s *memStore) booking(id uuid.UUID) domain.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneBooking(s.bookings[id])
}

func (s *memStore) GetTier(_ context.Context, tierID uuid.UUID) (*domain.TicketTier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tiers[tierID]
	if !ok {
		return nil, domain.TierNotFoundError(tierID)
	}
	return &t, nil
}

func (s *memStore) Reserve(_ context.Context, tierID uuid.UUID, quantity int, expectedVersion int) (domain.ReserveOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tiers[tierID]
	if !ok {
		return 0, domain.TierNotFoundError(tierID)
	}
	if !t.CanReserve(quantity) {
		return domain.ReserveInsufficientCapacity, nil
	}
	if t.Version != expectedVersion {
		return domain.ReserveVersionConflict, nil
	}
	t.QuantityHeld += quantity
	t.Version++
	s.tiers[tierID] = t
	return domain.ReserveCommitted, nil
}

func (s *memStore) CommitSale(_ context.Context, tierID uuid.UUID, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tiers[tierID]
	if t.QuantityHeld < quantity {
		return domain.LedgerMismatchError(tierID, domain.CounterHeld, quantity)
	}
	t.QuantityHeld -= quantity
	t.QuantitySold += quantity
	t.Version++
	s.tiers[tierID] = t
	return nil
}

func (s *memStore) Release(_ context.Context, tierID uuid.UUID, quantity int, from domain.Counter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tiers[tierID]
	switch from {
	case domain.CounterHeld:
		t.QuantityHeld = max(t.QuantityHeld-quantity, 0)
	case domain.CounterSold:
		t.QuantitySold = max(t.QuantitySold-quantity, 0)
	}
	t.Version++
	s.tiers[tierID] = t
	return nil
}

func (s *memStore) CreateBooking(_ context.Context, booking *domain.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range booking.Tickets {
		if t.SeatID == nil {
			continue
		}
		key := booking.EventID.String() + "/" + *t.SeatID
		if _, taken := s.seats[key]; taken {
			return domain.SeatUnavailableError(*t.SeatID)
		}
	}
	for _, t := range booking.Tickets {
		if t.SeatID != nil {
			s.seats[booking.EventID.String()+"/"+*t.SeatID] = booking.ID
		}
	}
	s.bookings[booking.ID] = cloneBooking(*booking)
	return nil
}

func (s *memStore) GetByID(_ context.Context, bookingID uuid.UUID) (*domain.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[bookingID]
	if !ok {
		return nil, domain.BookingNotFoundError(bookingID)
	}
	b = cloneBooking(b)
	return &b, nil
}

func (s *memStore) ListByUser(_ context.Context, userID uuid.UUID, filter domain.BookingFilter) ([]domain.Booking, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []domain.Booking
	for _, b := range s.bookings {
		if b.UserID != userID {
			continue
		}
		if filter.Status != nil && b.Status != *filter.Status {
			continue
		}
		if filter.EventID != nil && b.EventID != *filter.EventID {
			continue
		}
		all = append(all, cloneBooking(b))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	total := len(all)
	start := min(filter.Offset, total)
	end := min(start+filter.Limit, total)
	return all[start:end], total, nil
}

func (s *memStore) UpdateStatus(_ context.Context, bookingID uuid.UUID, from, to domain.BookingStatus, expectedVersion int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[bookingID]
	if !ok || b.Status != from || b.Version != expectedVersion {
		return domain.BookingVersionConflictError(bookingID, expectedVersion)
	}
	b.Status = to
	b.Version++
	b.HoldExpiresAt = nil
	s.bookings[bookingID] = b

	if to == domain.BookingCancelled || to == domain.BookingRefunded {
		for _, t := range b.Tickets {
			if t.SeatID != nil {
				delete(s.seats, b.EventID.String()+"/"+*t.SeatID)
			}
		}
	}
	return nil
}

func (s *memStore) UpdateTicketStatus(_ context.Context, bookingID uuid.UUID, status domain.TicketStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.bookings[bookingID]
	for i := range b.Tickets {
		b.Tickets[i].Status = status
	}
	s.bookings[bookingID] = b
	return nil
}

func (s *memStore) ListExpiredHolds(_ context.Context, now time.Time, after *domain.ExpiredHold, limit int) ([]domain.ExpiredHold, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var holds []domain.ExpiredHold
	for id, b := range s.bookings {
		if b.HoldExpired(now) {
			holds = append(holds, domain.ExpiredHold{BookingID: id, ExpiresAt: *b.HoldExpiresAt})
		}
	}

	sort.Slice(holds, func(i, j int) bool { return holdBefore(holds[i], holds[j]) })

	page := make([]domain.ExpiredHold, 0, limit)
	for _, hold := range holds {
		if after != nil && !holdBefore(*after, hold) {
			continue
		}
		if len(page) == limit {
			break
		}
		page = append(page, hold)
	}
	return page, nil
}

func holdBefore(a, b domain.ExpiredHold) bool {
	if !a.ExpiresAt.Equal(b.ExpiresAt) {
		return a.ExpiresAt.Before(b.ExpiresAt)
	}
	return bytes.Compare(a.BookingID[:], b.BookingID[:]) < 0
}

func cloneBooking(b domain.Booking) domain.Booking {
	b.Tickets = append([]domain.Ticket(nil), b.Tickets...)
	return b
}

// memLocks mimics the SETNX/compare-and-delete behaviour of the redis
// adapter, including expiry driven by the supplied clock.
type memLocks struct {
	clock clock.Clock

	mu    sync.Mutex
	locks map[string]memLock
	holds map[uuid.UUID]time.Time
}

type memLock struct {
	holder    uuid.UUID
	expiresAt time.Time
}

func newMemLocks(clk clock.Clock) *memLocks {
	return &memLocks{clock: clk, locks: map[string]memLock{}, holds: map[uuid.UUID]time.Time{}}
}

func (l *memLocks) Acquire(_ context.Context, key string, holderID uuid.UUID, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clock.Now()
	if cur, ok := l.locks[key]; ok && now.Before(cur.expiresAt) {
		return false, nil
	}
	l.locks[key] = memLock{holder: holderID, expiresAt: now.Add(ttl)}
	return true, nil
}

func (l *memLocks) Release(_ context.Context, key string, holderID uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if cur, ok := l.locks[key]; ok && cur.holder == holderID {
		delete(l.locks, key)
	}
	return nil
}

func (l *memLocks) MarkHold(_ context.Context, bookingID uuid.UUID, ttl time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.holds[bookingID] = l.clock.Now().Add(ttl)
	return nil
}

func (l *memLocks) ClearHold(_ context.Context, bookingID uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.holds, bookingID)
	return nil
}

func (l *memLocks) locked(eventID uuid.UUID, seatID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	cur, ok := l.locks[domain.SeatLockKey(eventID, seatID)]
	return ok && l.clock.Now().Before(cur.expiresAt)
}

func (l *memLocks) holdMarked(bookingID uuid.UUID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.holds[bookingID]
	return ok
}

type publishedEvent struct {
	topic string
	key   string
	event domain.BookingEvent
}

type memPublisher struct {
	mu     sync.Mutex
	err    error
	events []publishedEvent
}

func (p *memPublisher) Publish(_ context.Context, topic string, key string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, publishedEvent{topic: topic, key: key, event: payload.(domain.BookingEvent)})
	return nil
}

func (p *memPublisher) topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.topic)
	}
	return out
}

// memIdempotency is a SETNX-style store whose entries expire on the
// supplied clock.
type memIdempotency struct {
	clock       clock.Clock
	completeErr error

	mu      sync.Mutex
	entries map[string]memEntry
}

type memEntry struct {
	value     string
	expiresAt time.Time
}

func newMemIdempotency(clk clock.Clock) *memIdempotency {
	return &memIdempotency{clock: clk, entries: map[string]memEntry{}}
}

func (m *memIdempotency) Claim(_ context.Context, key string, value string, ttl time.Duration) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock.Now()
	if cur, ok := m.entries[key]; ok && now.Before(cur.expiresAt) {
		return cur.value, false, nil
	}
	m.entries[key] = memEntry{value: value, expiresAt: now.Add(ttl)}
	return "", true, nil
}

func (m *memIdempotency) Complete(_ context.Context, key string, value string, ttl time.Duration) error {
	if m.completeErr != nil {
		return m.completeErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memEntry{value: value, expiresAt: m.clock.Now().Add(ttl)}
	return nil
}

func (m *memIdempotency) Abandon(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}
