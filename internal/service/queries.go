package service

import (
	"context"
	"errors"
	"time"

	"cuebook/internal/domain"
	"cuebook/internal/models"
	"cuebook/internal/pricing"
)

// CheckAvailability previews a booking with the same overlap query and pricing as CreateReservation.
// It never consumes a promo. Malformed intervals and unknown tables are errors; a taken slot or
// an unbookable table is reported in the result.
func (s *BookingService) CheckAvailability(ctx context.Context, tableID int64, start, end time.Time, promoCode string) (*models.AvailabilityResult, error) {
	start = start.Truncate(time.Second)
	end = end.Truncate(time.Second)

	if err := s.validateInterval(start, end); err != nil {
		return nil, err
	}

	table, tableType, err := s.lookupTable(ctx, tableID)
	if err != nil {
		return nil, err
	}

	minutes := models.NewTimeRange(start, end).Minutes()
	result := &models.AvailabilityResult{
		TableID:       tableID,
		DurationHours: float64(minutes) / 60,
	}

	if !table.Bookable() {
		result.Reason = domain.ErrTableNotBookable.Error()
		return result, nil
	}

	overlapping, err := s.repo.IsOverlapping(ctx, tableID, start, end, 0)
	if err != nil {
		return nil, err
	}
	if overlapping {
		result.Reason = domain.ErrSlotUnavailable.Error()
		return result, nil
	}

	var promo *models.Promo
	code := models.NormalizePromoCode(promoCode)
	if code != "" {
		promo, err = s.repo.GetPromoByCode(ctx, code)
		if err != nil {
			return nil, err
		}
	}

	quote := pricing.Calculate(tableType.HourlyRate, minutes, promo, s.clock.Now(), s.loc)
	if code != "" && promo == nil {
		quote.PromoReason = domain.ErrPromoUnknown
	}

	result.Available = true
	result.BaseCost = quote.BaseCost
	result.Discount = quote.Discount
	result.EstimatedCost = quote.FinalCost
	result.PromoApplied = quote.PromoApplied
	if quote.PromoReason != nil {
		result.PromoReason = quote.PromoReason.Error()
	}
	return result, nil
}

// GetReservation returns the reservation with its payment, table, rate and promo.
func (s *BookingService) GetReservation(ctx context.Context, reservationID int64, actor models.Actor) (*models.ReservationView, error) {
	r, err := s.repo.GetReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if !canModify(actor, r) {
		return nil, domain.ErrUnauthorized
	}
	return s.buildView(ctx, r)
}

// buildView assembles the read-side aggregate from the individual lookups.
func (s *BookingService) buildView(ctx context.Context, r *models.Reservation) (*models.ReservationView, error) {
	payment, err := s.repo.GetPaymentByReservation(ctx, r.ID)
	if err != nil {
		return nil, err
	}
	table, tableType, err := s.lookupTable(ctx, r.TableID)
	if err != nil {
		return nil, err
	}

	view := &models.ReservationView{
		Reservation: r,
		Payment:     payment,
		Table:       table,
		TableType:   tableType,
	}
	if r.PromoID != nil {
		promo, err := s.repo.GetPromo(ctx, *r.PromoID)
		if err != nil && !errors.Is(err, domain.ErrPromoUnknown) {
			return nil, err
		}
		view.Promo = promo
		view.PromoApplied = true
	}
	return view, nil
}

// ListTableReservations returns the blocking reservations of a table inside [from, to).
func (s *BookingService) ListTableReservations(ctx context.Context, tableID int64, from, to time.Time) ([]*models.Reservation, error) {
	if !to.After(from) {
		return nil, domain.ErrInvalidDuration
	}
	if _, err := s.repo.GetTable(ctx, tableID); err != nil {
		return nil, err
	}
	return s.repo.ListTableReservations(ctx, tableID, from, to)
}

// ListCustomerReservations returns the actor's own reservations, newest first.
func (s *BookingService) ListCustomerReservations(ctx context.Context, actor models.Actor) ([]*models.Reservation, error) {
	if actor.CustomerID == 0 {
		return nil, domain.ErrUnauthorized
	}
	return s.repo.GetCustomerReservations(ctx, actor.CustomerID)
}
