package postgres

import (
	"context"
	"database/sql"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/srgjo27/ticket_reservation/internal/core/domain"
)

// TierRepository is the capacity ledger. Every counter change is a single
// guarded UPDATE that bumps the version.
type TierRepository struct {
	db *sql.DB
}

func NewTierRepository(db *sql.DB) *TierRepository {
	return &TierRepository{db: db}
}

func (r *TierRepository) GetTier(ctx context.Context, tierID uuid.UUID) (*domain.TicketTier, error) {
	query := `
	SELECT id, event_id, name, price_cents, quantity_total, quantity_sold, quantity_held, version
	FROM ticket_tiers
	WHERE id = $1
	`

	var tier domain.TicketTier
	err := conn(ctx, r.db).QueryRowContext(ctx, query, tierID).Scan(
		&tier.ID,
		&tier.EventID,
		&tier.Name,
		&tier.PriceCents,
		&tier.QuantityTotal,
		&tier.QuantitySold,
		&tier.QuantityHeld,
		&tier.Version,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.TierNotFoundError(tierID)
		}

		return nil, errors.Wrapf(err, "get tier %s", tierID)
	}

	return &tier, nil
}

func (r *TierRepository) Reserve(ctx context.Context, tierID uuid.UUID, quantity int, expectedVersion int) (domain.ReserveOutcome, error) {
	if quantity <= 0 {
		return domain.ReserveInsufficientCapacity, domain.ValidationError(domain.ErrInvalidQuantity, "reserve %d", quantity)
	}

	query := `
	UPDATE ticket_tiers
	SET quantity_held = quantity_held + $2,
		version = version + 1,
		updated_at = NOW()
	WHERE id = $1
		AND version = $3
		AND quantity_sold + quantity_held + $2 <= quantity_total
	`

	result, err := conn(ctx, r.db).ExecContext(ctx, query, tierID, quantity, expectedVersion)
	if err != nil {
		return 0, errors.Wrapf(err, "reserve %d on tier %s", quantity, tierID)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}

	if rowsAffected == 1 {
		return domain.ReserveCommitted, nil
	}

	// Nothing matched: tell capacity exhaustion apart from a stale version.
	tier, err := r.GetTier(ctx, tierID)
	if err != nil {
		return 0, err
	}
	if !tier.CanReserve(quantity) {
		return domain.ReserveInsufficientCapacity, nil
	}
	return domain.ReserveVersionConflict, nil
}

func (r *TierRepository) CommitSale(ctx context.Context, tierID uuid.UUID, quantity int) error {
	query := `
	UPDATE ticket_tiers
	SET quantity_held = quantity_held - $2,
		quantity_sold = quantity_sold + $2,
		version = version + 1,
		updated_at = NOW()
	WHERE id = $1 AND quantity_held >= $2
	`

	result, err := conn(ctx, r.db).ExecContext(ctx, query, tierID, quantity)
	if err != nil {
		return errors.Wrapf(err, "commit sale of %d on tier %s", quantity, tierID)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		if _, err := r.GetTier(ctx, tierID); err != nil {
			return err
		}
		return domain.LedgerMismatchError(tierID, domain.CounterHeld, quantity)
	}

	return nil
}

func (r *TierRepository) Release(ctx context.Context, tierID uuid.UUID, quantity int, from domain.Counter) error {
	var query string
	switch from {
	case domain.CounterHeld:
		query = `
		UPDATE ticket_tiers
		SET quantity_held = GREATEST(quantity_held - $2, 0), version = version + 1, updated_at = NOW()
		WHERE id = $1
		`
	case domain.CounterSold:
		query = `
		UPDATE ticket_tiers
		SET quantity_sold = GREATEST(quantity_sold - $2, 0), version = version + 1, updated_at = NOW()
		WHERE id = $1
		`
	default:
		return errors.Newf("release from unknown counter %q", from)
	}

	result, err := conn(ctx, r.db).ExecContext(ctx, query, tierID, quantity)
	if err != nil {
		return errors.Wrapf(err, "release %d %s on tier %s", quantity, from, tierID)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return domain.TierNotFoundError(tierID)
	}

	return nil
}
