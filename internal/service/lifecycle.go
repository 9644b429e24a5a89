package service

import (
	"context"

	"cuebook/internal/domain"
	"cuebook/internal/events"
	"cuebook/internal/metrics"
	"cuebook/internal/models"
)

// canModify: a customer may only touch their own reservation; staff and admins may touch any.
func canModify(actor models.Actor, r *models.Reservation) bool {
	return actor.Privileged() || (actor.CustomerID != 0 && actor.CustomerID == r.CustomerID)
}

// ProcessPayment marks the payment as paid and confirms the reservation in one transaction.
func (s *BookingService) ProcessPayment(ctx context.Context, reservationID int64, method string, actor models.Actor) (*models.Payment, error) {
	if !models.IsValidPaymentMethod(method) {
		return nil, domain.ErrInvalidPaymentMethod
	}

	var (
		reservation *models.Reservation
		payment     *models.Payment
	)
	err := s.repo.InTx(ctx, func(tx domain.BookingTx) error {
		r, err := tx.GetReservation(ctx, reservationID)
		if err != nil {
			return err
		}
		if !canModify(actor, r) {
			return domain.ErrUnauthorized
		}

		p, err := tx.GetPaymentByReservation(ctx, reservationID)
		if err != nil {
			return err
		}
		if p.Status == models.PaymentPaid {
			return domain.ErrAlreadyPaid
		}
		if !p.Status.CanTransition(models.PaymentPaid) || !r.Status.CanTransition(models.StatusConfirmed) {
			return domain.ErrInvalidTransition
		}

		paidAt := s.clock.Now().UTC()
		p.Status = models.PaymentPaid
		p.Method = method
		p.PaidAt = &paidAt
		if err := tx.UpdatePayment(ctx, p, p.Version); err != nil {
			return err
		}

		if err := tx.UpdateReservationStatus(ctx, r.ID, r.Version, models.StatusConfirmed); err != nil {
			return err
		}
		r.Status = models.StatusConfirmed
		r.Version++

		reservation, payment = r, p
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.IncPayment(method)
	s.publishEvent(events.EventPaymentCompleted, reservation, payment, nil, actor)
	s.logger.Info().Int64("reservation_id", reservationID).Str("method", method).Int64("amount", int64(payment.Amount)).Msg("Payment processed")

	return payment, nil
}

// CancelReservation cancels a reservation and refunds a paid payment. Promo uses are never returned.
func (s *BookingService) CancelReservation(ctx context.Context, reservationID int64, actor models.Actor) (*models.Reservation, error) {
	var (
		reservation *models.Reservation
		payment     *models.Payment
		refunded    bool
	)
	err := s.repo.InTx(ctx, func(tx domain.BookingTx) error {
		r, err := tx.GetReservation(ctx, reservationID)
		if err != nil {
			return err
		}
		if !canModify(actor, r) {
			return domain.ErrUnauthorized
		}

		switch r.Status {
		case models.StatusCompleted:
			return domain.ErrCannotCancelCompleted
		case models.StatusCancelled:
			return domain.ErrAlreadyCancelled
		}
		if !r.Status.CanTransition(models.StatusCancelled) {
			return domain.ErrInvalidTransition
		}

		p, err := tx.GetPaymentByReservation(ctx, reservationID)
		if err != nil {
			return err
		}
		if p.Status == models.PaymentPaid {
			refundedAt := s.clock.Now().UTC()
			p.Status = models.PaymentRefunded
			p.RefundedAt = &refundedAt
			if err := tx.UpdatePayment(ctx, p, p.Version); err != nil {
				return err
			}
			refunded = true
		}

		if err := tx.UpdateReservationStatus(ctx, r.ID, r.Version, models.StatusCancelled); err != nil {
			return err
		}
		r.Status = models.StatusCancelled
		r.Version++

		reservation, payment = r, p
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.IncCancellation(refunded)
	s.publishEvent(events.EventReservationCancelled, reservation, payment, nil, actor)
	s.logger.Info().Int64("reservation_id", reservationID).Str("actor_role", actor.Role).Bool("refunded", refunded).Msg("Reservation cancelled")

	return reservation, nil
}

// CompleteReservation closes a confirmed reservation once the game is over. Staff and admins only.
func (s *BookingService) CompleteReservation(ctx context.Context, reservationID int64, actor models.Actor) (*models.Reservation, error) {
	if !actor.Privileged() {
		return nil, domain.ErrUnauthorized
	}

	var (
		reservation *models.Reservation
		payment     *models.Payment
	)
	err := s.repo.InTx(ctx, func(tx domain.BookingTx) error {
		r, err := tx.GetReservation(ctx, reservationID)
		if err != nil {
			return err
		}
		if !r.Status.CanTransition(models.StatusCompleted) {
			return domain.ErrInvalidTransition
		}
		if err := tx.UpdateReservationStatus(ctx, r.ID, r.Version, models.StatusCompleted); err != nil {
			return err
		}
		r.Status = models.StatusCompleted
		r.Version++

		p, err := tx.GetPaymentByReservation(ctx, reservationID)
		if err != nil {
			return err
		}
		reservation, payment = r, p
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publishEvent(events.EventReservationCompleted, reservation, payment, nil, actor)
	s.logger.Info().Int64("reservation_id", reservationID).Str("actor_role", actor.Role).Msg("Reservation completed")
	return reservation, nil
}
