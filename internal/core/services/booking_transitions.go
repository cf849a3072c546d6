package services

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/srgjo27/ticket_reservation/internal/core/domain"
)

// Confirm finalises a held booking after payment: held quantity becomes sold.
func (s *BookingService) Confirm(ctx context.Context, userID, bookingID uuid.UUID) error {
	booking, err := s.loadOwned(ctx, userID, bookingID)
	if err != nil {
		return err
	}

	if booking.Status != domain.BookingHeld {
		return domain.InvalidStateError(booking.ID, booking.Status, "confirm")
	}

	if booking.HoldExpired(s.clock.Now()) {
		return domain.HoldExpiredError(booking.ID)
	}

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.bookings.UpdateStatus(ctx, booking.ID, domain.BookingHeld, domain.BookingConfirmed, booking.Version); err != nil {
			return err
		}

		if err := s.tiers.CommitSale(ctx, booking.TicketTierID, booking.TicketCount()); err != nil {
			return err
		}

		return s.bookings.UpdateTicketStatus(ctx, booking.ID, domain.TicketActive)
	})
	if err != nil {
		return err
	}

	applyTransition(booking, domain.BookingConfirmed)

	if err := s.locks.ClearHold(ctx, booking.ID); err != nil {
		s.log.Warn("failed to clear hold marker", zap.String("booking_id", booking.ID.String()), zap.Error(err))
	}

	s.publish(ctx, booking, "")

	s.log.Info("booking confirmed",
		zap.String("booking_id", booking.ID.String()),
		zap.String("user_id", userID.String()),
		zap.Int("quantity", booking.TicketCount()),
	)

	return nil
}

// Cancel gives a held or confirmed booking's capacity back to the tier.
func (s *BookingService) Cancel(ctx context.Context, userID, bookingID uuid.UUID) error {
	booking, err := s.loadOwned(ctx, userID, bookingID)
	if err != nil {
		return err
	}

	if err := s.close(ctx, booking, domain.BookingCancelled, ""); err != nil {
		return err
	}

	s.log.Info("booking cancelled",
		zap.String("booking_id", booking.ID.String()),
		zap.String("user_id", userID.String()),
		zap.Int("quantity", booking.TicketCount()),
	)
	return nil
}

// Refund is driven by the payment side once money has been returned, so
// there is no ownership check.
func (s *BookingService) Refund(ctx context.Context, bookingID uuid.UUID) error {
	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return err
	}

	if err := s.close(ctx, booking, domain.BookingRefunded, ""); err != nil {
		return err
	}

	s.log.Info("booking refunded",
		zap.String("booking_id", booking.ID.String()),
		zap.Int("quantity", booking.TicketCount()),
	)
	return nil
}

// ExpireHold cancels a held booking whose hold window has passed. It
// returns false without error when the booking moved on in the meantime,
// for example because a confirm won the race.
func (s *BookingService) ExpireHold(ctx context.Context, bookingID uuid.UUID) (bool, error) {
	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return false, err
	}

	if !booking.HoldExpired(s.clock.Now()) {
		return false, nil
	}

	err = s.close(ctx, booking, domain.BookingCancelled, domain.ReasonHoldExpired)
	if errors.Is(err, domain.ErrConcurrentModification) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	s.log.Info("hold expired",
		zap.String("booking_id", booking.ID.String()),
		zap.String("user_id", booking.UserID.String()),
		zap.Int("quantity", booking.TicketCount()),
	)
	return true, nil
}

// close moves booking to a terminal-bound status and releases the tier
// counter that its prior status was occupying.
func (s *BookingService) close(ctx context.Context, booking *domain.Booking, target domain.BookingStatus, reason string) error {
	op := "cancel"
	if target == domain.BookingRefunded {
		op = "refund"
	}

	prior := booking.Status
	if prior.IsTerminal() || !prior.CanTransitionTo(target) {
		return domain.InvalidStateError(booking.ID, prior, op)
	}

	counter, ok := prior.Counter()
	if !ok {
		return errors.Newf("booking %s: status %s occupies no tier counter", booking.ID, prior)
	}

	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.bookings.UpdateStatus(ctx, booking.ID, prior, target, booking.Version); err != nil {
			return err
		}

		if err := s.tiers.Release(ctx, booking.TicketTierID, booking.TicketCount(), counter); err != nil {
			return err
		}

		return s.bookings.UpdateTicketStatus(ctx, booking.ID, domain.TicketCancelled)
	})
	if err != nil {
		return err
	}

	applyTransition(booking, target)

	if prior == domain.BookingHeld {
		if err := s.locks.ClearHold(ctx, booking.ID); err != nil {
			s.log.Warn("failed to clear hold marker", zap.String("booking_id", booking.ID.String()), zap.Error(err))
		}
	}

	if seatIDs := booking.SeatIDs(); len(seatIDs) > 0 {
		seats := newSeatLockSet(s.locks, booking.EventID, booking.UserID, s.holdTTL, s.log)
		seats.acquired = seatIDs
		seats.releaseAll(ctx)
	}

	s.publish(ctx, booking, reason)
	return nil
}

func (s *BookingService) loadOwned(ctx context.Context, userID, bookingID uuid.UUID) (*domain.Booking, error) {
	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	if !booking.IsOwnedBy(userID) {
		return nil, errors.Mark(errors.Newf("booking %s does not belong to user %s", bookingID, userID), domain.ErrUnauthorized)
	}

	return booking, nil
}

func applyTransition(b *domain.Booking, status domain.BookingStatus) {
	b.Status = status
	b.Version++
	b.HoldExpiresAt = nil
	ticketStatus := domain.TicketStatusFor(status)
	for i := range b.Tickets {
		b.Tickets[i].Status = ticketStatus
	}
}
