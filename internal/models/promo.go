package models

import (
	"strings"
	"time"
)

type Promo struct {
	ID            int64     `json:"id"`
	Code          string    `json:"code"`
	Description   string    `json:"description,omitempty"`
	DiscountType  string    `json:"discount_type"` // percentage, fixed
	DiscountValue int64     `json:"discount_value"`
	MinHours      float64   `json:"min_hours"`
	ValidFrom     time.Time `json:"valid_from"`
	ValidUntil    time.Time `json:"valid_until"`
	MaxUses       *int64    `json:"max_uses,omitempty"`
	CurrentUses   int64     `json:"current_uses"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// NormalizePromoCode upper-cases and trims a user supplied code.
func NormalizePromoCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// MinMinutes converts MinHours to whole minutes, rounding up.
func (p *Promo) MinMinutes() int64 {
	m := p.MinHours * 60
	whole := int64(m)
	if float64(whole) < m {
		whole++
	}
	return whole
}

func (p *Promo) Exhausted() bool {
	return p.MaxUses != nil && p.CurrentUses >= *p.MaxUses
}
