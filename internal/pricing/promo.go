package pricing

import (
	"time"

	"cuebook/internal/domain"
	"cuebook/internal/models"
)

// ValidatePromo reports why promo cannot be used for a booking of the given length at asOf,
// or nil if it can. Validity dates are compared as calendar days in loc, both ends inclusive.
func ValidatePromo(promo *models.Promo, minutes int64, asOf time.Time, loc *time.Location) error {
	if promo == nil {
		return domain.ErrPromoUnknown
	}
	if !promo.IsActive {
		return domain.ErrPromoInactive
	}

	day := CalendarDate(asOf, loc)
	if day < promo.ValidFrom.Format(models.DateLayout) || day > promo.ValidUntil.Format(models.DateLayout) {
		return domain.ErrPromoExpired
	}

	if minutes < promo.MinMinutes() {
		return domain.ErrPromoMinHours
	}

	if promo.Exhausted() {
		return domain.ErrPromoExhausted
	}

	return nil
}

// CalendarDate formats t as YYYY-MM-DD in loc.
func CalendarDate(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(models.DateLayout)
}
