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

const reservationColumns = `id, table_id, customer_id, promo_id, start_at, end_at, duration_minutes,
	base_cost, discount, final_cost, status, notes, COALESCE(idempotency_key, ''),
	created_at, updated_at, version`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanReservation(row rowScanner) (*models.Reservation, error) {
	var (
		r          models.Reservation
		promoID    sql.NullInt64
		start, end int64
	)
	err := row.Scan(
		&r.ID, &r.TableID, &r.CustomerID, &promoID, &start, &end, &r.DurationMinutes,
		&r.BaseCost, &r.Discount, &r.FinalCost, &r.Status, &r.Notes, &r.IdempotencyKey,
		&r.CreatedAt, &r.UpdatedAt, &r.Version,
	)
	if err != nil {
		return nil, err
	}
	if promoID.Valid {
		id := promoID.Int64
		r.PromoID = &id
	}
	r.StartAt = time.Unix(start, 0).UTC()
	r.EndAt = time.Unix(end, 0).UTC()
	return &r, nil
}

// isOverlapping is the availability query: canonical half-open predicate over blocking statuses.
func isOverlapping(ctx context.Context, q querier, tableID int64, start, end time.Time, excludeID int64) (bool, error) {
	query := `SELECT EXISTS (
                SELECT 1 FROM reservations
                WHERE table_id = ? AND id <> ?
                  AND status IN (?, ?)
                  AND start_at < ? AND ? < end_at
              )`
	var exists bool
	err := q.QueryRowContext(ctx, query,
		tableID, excludeID,
		models.StatusPending, models.StatusConfirmed,
		end.Unix(), start.Unix(),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check overlap: %w", err)
	}
	return exists, nil
}

func getReservation(ctx context.Context, q querier, id int64) (*models.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = ?`
	r, err := scanReservation(q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrReservationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reservation: %w", err)
	}
	return r, nil
}

func (db *DB) IsOverlapping(ctx context.Context, tableID int64, start, end time.Time, excludeID int64) (bool, error) {
	return isOverlapping(ctx, db, tableID, start, end, excludeID)
}

func (db *DB) GetReservation(ctx context.Context, id int64) (*models.Reservation, error) {
	return getReservation(ctx, db, id)
}

// FindReservationByIdempotencyKey returns nil, nil when the key was never used by the customer.
func (db *DB) FindReservationByIdempotencyKey(ctx context.Context, customerID int64, key string) (*models.Reservation, error) {
	return findByIdempotencyKey(ctx, db, customerID, key)
}

func findByIdempotencyKey(ctx context.Context, q querier, customerID int64, key string) (*models.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE customer_id = ? AND idempotency_key = ?`
	r, err := scanReservation(q.QueryRowContext(ctx, query, customerID, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find reservation by idempotency key: %w", err)
	}
	return r, nil
}

// ListTableReservations returns blocking reservations of a table that intersect [from, to), ordered by start.
func (db *DB) ListTableReservations(ctx context.Context, tableID int64, from, to time.Time) ([]*models.Reservation, error) {
	query := `SELECT ` + reservationColumns + `
              FROM reservations
              WHERE table_id = ? AND status IN (?, ?) AND start_at < ? AND ? < end_at
              ORDER BY start_at ASC`
	rows, err := db.QueryContext(ctx, query, tableID,
		models.StatusPending, models.StatusConfirmed, to.Unix(), from.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to list table reservations: %w", err)
	}
	defer rows.Close()

	var reservations []*models.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		reservations = append(reservations, r)
	}
	return reservations, rows.Err()
}

// GetCustomerReservations returns every reservation of a customer, newest first.
func (db *DB) GetCustomerReservations(ctx context.Context, customerID int64) ([]*models.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE customer_id = ? ORDER BY start_at DESC`
	rows, err := db.QueryContext(ctx, query, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get customer reservations: %w", err)
	}
	defer rows.Close()

	var reservations []*models.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		reservations = append(reservations, r)
	}
	return reservations, rows.Err()
}

func (s *txStore) IsOverlapping(ctx context.Context, tableID int64, start, end time.Time, excludeID int64) (bool, error) {
	return isOverlapping(ctx, s.tx, tableID, start, end, excludeID)
}

func (s *txStore) FindReservationByIdempotencyKey(ctx context.Context, customerID int64, key string) (*models.Reservation, error) {
	return findByIdempotencyKey(ctx, s.tx, customerID, key)
}

func (s *txStore) GetReservation(ctx context.Context, id int64) (*models.Reservation, error) {
	return getReservation(ctx, s.tx, id)
}

func (s *txStore) InsertReservation(ctx context.Context, r *models.Reservation) error {
	query := `INSERT INTO reservations (
				table_id, customer_id, promo_id, start_at, end_at, duration_minutes,
				base_cost, discount, final_cost, status, notes, idempotency_key,
				created_at, updated_at, version
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	var idemKey interface{}
	if r.IdempotencyKey != "" {
		idemKey = r.IdempotencyKey
	}

	now := time.Now()
	result, err := s.tx.ExecContext(ctx, query,
		r.TableID,
		r.CustomerID,
		r.PromoID,
		r.StartAt.Unix(),
		r.EndAt.Unix(),
		r.DurationMinutes,
		r.BaseCost,
		r.Discount,
		r.FinalCost,
		r.Status,
		r.Notes,
		idemKey,
		now,
		now,
		1,
	)
	if err != nil {
		return fmt.Errorf("failed to insert reservation: %w", translateErr(err))
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	r.ID = id
	r.CreatedAt = now
	r.UpdatedAt = now
	r.Version = 1
	return nil
}

// UpdateReservationStatus applies an optimistic status change; a stale version yields ErrConcurrentModification.
func (s *txStore) UpdateReservationStatus(ctx context.Context, id, fromVersion int64, status models.ReservationStatus) error {
	query := `UPDATE reservations SET status = ?, version = version + 1, updated_at = ? WHERE id = ? AND version = ?`
	result, err := s.tx.ExecContext(ctx, query, status, time.Now(), id, fromVersion)
	if err != nil {
		return fmt.Errorf("failed to update reservation status: %w", translateErr(err))
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrConcurrentModification
	}
	return nil
}
