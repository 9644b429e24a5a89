// Package pricing turns a table rate, a booking duration and an optional promo into costs.
// All arithmetic is done on integer minor currency units.
package pricing

import (
	"time"

	"cuebook/internal/models"
)

// Quote is the priced outcome for one candidate booking.
type Quote struct {
	DurationMinutes int64
	BaseCost        models.Money
	Discount        models.Money
	FinalCost       models.Money
	PromoApplied    bool
	// PromoReason explains why a supplied promo was not applied.
	PromoReason error
}

// BaseCost is rate × duration, rounded half up to the nearest minor unit.
func BaseCost(hourlyRate models.Money, minutes int64) models.Money {
	if hourlyRate <= 0 || minutes <= 0 {
		return 0
	}
	return models.Money((int64(hourlyRate)*minutes + 30) / 60)
}

// Discount computes the promo discount for base, clamped to [0, base].
func Discount(base models.Money, promo *models.Promo) models.Money {
	if promo == nil || base <= 0 {
		return 0
	}

	var d int64
	switch promo.DiscountType {
	case models.DiscountPercentage:
		pct := promo.DiscountValue
		if pct < 0 {
			pct = 0
		}
		if pct > 100 {
			pct = 100
		}
		d = int64(base) * pct / 100
	case models.DiscountFixed:
		d = promo.DiscountValue
	}

	if d < 0 {
		return 0
	}
	if d > int64(base) {
		return base
	}
	return models.Money(d)
}

// Calculate prices a booking. An ineligible promo is reported in Quote.PromoReason and priced at zero discount.
func Calculate(hourlyRate models.Money, minutes int64, promo *models.Promo, asOf time.Time, loc *time.Location) Quote {
	q := Quote{
		DurationMinutes: minutes,
		BaseCost:        BaseCost(hourlyRate, minutes),
	}

	if promo != nil {
		if err := ValidatePromo(promo, minutes, asOf, loc); err != nil {
			q.PromoReason = err
		} else {
			q.Discount = Discount(q.BaseCost, promo)
			q.PromoApplied = true
		}
	}

	q.FinalCost = q.BaseCost - q.Discount
	return q
}

// WithoutPromo reprices q at full price, keeping the reason the promo was dropped.
func (q Quote) WithoutPromo(reason error) Quote {
	q.Discount = 0
	q.FinalCost = q.BaseCost
	q.PromoApplied = false
	q.PromoReason = reason
	return q
}
