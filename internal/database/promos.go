package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"cuebook/internal/domain"
	"cuebook/internal/models"
)

const promoColumns = `id, code, description, discount_type, discount_value, min_hours,
	valid_from, valid_until, max_uses, current_uses, is_active, created_at, updated_at`

func scanPromo(row rowScanner) (*models.Promo, error) {
	var (
		p           models.Promo
		from, until string
		maxUses     sql.NullInt64
	)
	err := row.Scan(
		&p.ID, &p.Code, &p.Description, &p.DiscountType, &p.DiscountValue, &p.MinHours,
		&from, &until, &maxUses, &p.CurrentUses, &p.IsActive, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if maxUses.Valid {
		v := maxUses.Int64
		p.MaxUses = &v
	}
	if p.ValidFrom, err = time.Parse(models.DateLayout, from); err != nil {
		return nil, fmt.Errorf("failed to parse promo valid_from %s: %w", from, err)
	}
	if p.ValidUntil, err = time.Parse(models.DateLayout, until); err != nil {
		return nil, fmt.Errorf("failed to parse promo valid_until %s: %w", until, err)
	}
	return &p, nil
}

// getPromoByCode returns nil, nil for an unknown code.
func getPromoByCode(ctx context.Context, q querier, code string) (*models.Promo, error) {
	query := `SELECT ` + promoColumns + ` FROM promos WHERE code = ?`
	p, err := scanPromo(q.QueryRowContext(ctx, query, models.NormalizePromoCode(code)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get promo by code: %w", err)
	}
	return p, nil
}

func (db *DB) GetPromoByCode(ctx context.Context, code string) (*models.Promo, error) {
	return getPromoByCode(ctx, db, code)
}

func (db *DB) GetPromo(ctx context.Context, id int64) (*models.Promo, error) {
	query := `SELECT ` + promoColumns + ` FROM promos WHERE id = ?`
	p, err := scanPromo(db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrPromoUnknown
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get promo: %w", err)
	}
	return p, nil
}

// UpsertPromo creates or updates a promo by code. current_uses is never touched here.
func (db *DB) UpsertPromo(ctx context.Context, p *models.Promo) error {
	query := `INSERT INTO promos (
				code, description, discount_type, discount_value, min_hours,
				valid_from, valid_until, max_uses, is_active, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(code) DO UPDATE SET
				description = excluded.description,
				discount_type = excluded.discount_type,
				discount_value = excluded.discount_value,
				min_hours = excluded.min_hours,
				valid_from = excluded.valid_from,
				valid_until = excluded.valid_until,
				max_uses = excluded.max_uses,
				is_active = excluded.is_active,
				updated_at = excluded.updated_at`
	now := time.Now()
	p.Code = models.NormalizePromoCode(p.Code)
	_, err := db.ExecContext(ctx, query,
		p.Code,
		p.Description,
		p.DiscountType,
		p.DiscountValue,
		p.MinHours,
		p.ValidFrom.Format(models.DateLayout),
		p.ValidUntil.Format(models.DateLayout),
		p.MaxUses,
		p.IsActive,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert promo %s: %w", p.Code, translateErr(err))
	}

	stored, err := db.GetPromoByCode(ctx, p.Code)
	if err != nil {
		return err
	}
	*p = *stored
	return nil
}

func (s *txStore) GetPromoByCode(ctx context.Context, code string) (*models.Promo, error) {
	return getPromoByCode(ctx, s.tx, code)
}

// ConsumePromo takes one use of the promo with a single guarded increment.
// Eligibility is re-checked by the WHERE clause; no row updated means the promo is
// exhausted, or no longer valid for this booking.
func (s *txStore) ConsumePromo(ctx context.Context, promoID int64, asOfDate string, durationMinutes int64) error {
	query := `UPDATE promos
              SET current_uses = current_uses + 1, updated_at = ?
              WHERE id = ?
                AND is_active = 1
                AND (max_uses IS NULL OR current_uses < max_uses)
                AND valid_from <= ? AND valid_until >= ?
                AND min_hours * 60 <= ?`
	result, err := s.tx.ExecContext(ctx, query, time.Now(), promoID, asOfDate, asOfDate, durationMinutes)
	if err != nil {
		return fmt.Errorf("failed to consume promo: %w", translateErr(err))
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to consume promo: %w", err)
	}
	if rows == 0 {
		return domain.ErrPromoExhausted
	}
	return nil
}
