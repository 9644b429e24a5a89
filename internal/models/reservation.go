package models

import "time"

type Reservation struct {
	ID              int64             `json:"id"`
	TableID         int64             `json:"table_id"`
	CustomerID      int64             `json:"customer_id"`
	PromoID         *int64            `json:"promo_id,omitempty"`
	StartAt         time.Time         `json:"start_at"`
	EndAt           time.Time         `json:"end_at"`
	DurationMinutes int64             `json:"duration_minutes"`
	BaseCost        Money             `json:"base_cost"`
	Discount        Money             `json:"discount"`
	FinalCost       Money             `json:"final_cost"`
	Status          ReservationStatus `json:"status"` // pending, confirmed, completed, cancelled
	Notes           string            `json:"notes,omitempty"`
	IdempotencyKey  string            `json:"-"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
	Version         int64             `json:"version"`
}

func (r *Reservation) Range() TimeRange {
	return TimeRange{Start: r.StartAt, End: r.EndAt}
}

// DurationHours is informational only; cost fields never derive from it.
func (r *Reservation) DurationHours() float64 {
	return float64(r.DurationMinutes) / 60
}

type Payment struct {
	ID            int64         `json:"id"`
	ReservationID int64         `json:"reservation_id"`
	Amount        Money         `json:"amount"`
	Method        string        `json:"method"`
	Status        PaymentStatus `json:"status"`
	PaidAt        *time.Time    `json:"paid_at,omitempty"`
	RefundedAt    *time.Time    `json:"refunded_at,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
	Version       int64         `json:"version"`
}

// ReservationView is the read-side aggregate of a reservation and everything it references.
type ReservationView struct {
	Reservation *Reservation `json:"reservation"`
	Payment     *Payment     `json:"payment"`
	Table       *Table       `json:"table"`
	TableType   *TableType   `json:"table_type"`
	Promo       *Promo       `json:"promo,omitempty"`

	// PromoApplied is false when a code was given but not honoured.
	PromoApplied bool   `json:"promo_applied"`
	PromoReason  string `json:"promo_reason,omitempty"`
}

// AvailabilityResult is the preview returned before booking.
type AvailabilityResult struct {
	TableID       int64   `json:"table_id"`
	Available     bool    `json:"available"`
	Reason        string  `json:"reason,omitempty"`
	DurationHours float64 `json:"duration_hours"`
	BaseCost      Money   `json:"base_cost"`
	Discount      Money   `json:"discount"`
	EstimatedCost Money   `json:"estimated_cost"`
	PromoApplied  bool    `json:"promo_applied"`
	PromoReason   string  `json:"promo_reason,omitempty"`
}
