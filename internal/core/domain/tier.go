package domain

import "github.com/google/uuid"

// TicketTier is the sellable capacity of one price class. Its counters only
// move through the ledger's compare-and-swap operations.
type TicketTier struct {
	ID            uuid.UUID
	EventID       uuid.UUID
	Name          string
	PriceCents    int64
	QuantityTotal int
	QuantitySold  int
	QuantityHeld  int
	Version       int
}

func (t *TicketTier) Available() int {
	return t.QuantityTotal - t.QuantitySold - t.QuantityHeld
}

func (t *TicketTier) CanReserve(quantity int) bool {
	return quantity > 0 && t.QuantitySold+t.QuantityHeld+quantity <= t.QuantityTotal
}

type ReserveOutcome int

const (
	ReserveCommitted ReserveOutcome = iota
	ReserveInsufficientCapacity
	ReserveVersionConflict
)

func (o ReserveOutcome) String() string {
	switch o {
	case ReserveCommitted:
		return "committed"
	case ReserveInsufficientCapacity:
		return "insufficient_capacity"
	case ReserveVersionConflict:
		return "version_conflict"
	}
	return "unknown"
}

// Counter names the tier counter a release is taken from.
type Counter string

const (
	CounterHeld Counter = "held"
	CounterSold Counter = "sold"
)
