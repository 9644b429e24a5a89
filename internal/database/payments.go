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

func getPaymentByReservation(ctx context.Context, q querier, reservationID int64) (*models.Payment, error) {
	query := `SELECT id, reservation_id, amount, method, status, paid_at, refunded_at, created_at, updated_at, version
              FROM payments WHERE reservation_id = ?`
	var p models.Payment
	err := q.QueryRowContext(ctx, query, reservationID).Scan(
		&p.ID, &p.ReservationID, &p.Amount, &p.Method, &p.Status,
		&p.PaidAt, &p.RefundedAt, &p.CreatedAt, &p.UpdatedAt, &p.Version,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return &p, nil
}

func (db *DB) GetPaymentByReservation(ctx context.Context, reservationID int64) (*models.Payment, error) {
	return getPaymentByReservation(ctx, db, reservationID)
}

func (s *txStore) GetPaymentByReservation(ctx context.Context, reservationID int64) (*models.Payment, error) {
	return getPaymentByReservation(ctx, s.tx, reservationID)
}

func (s *txStore) InsertPayment(ctx context.Context, p *models.Payment) error {
	query := `INSERT INTO payments (reservation_id, amount, method, status, created_at, updated_at, version)
              VALUES (?, ?, ?, ?, ?, ?, ?)`
	now := time.Now()
	result, err := s.tx.ExecContext(ctx, query, p.ReservationID, p.Amount, p.Method, p.Status, now, now, 1)
	if err != nil {
		return fmt.Errorf("failed to insert payment: %w", translateErr(err))
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	p.ID = id
	p.CreatedAt = now
	p.UpdatedAt = now
	p.Version = 1
	return nil
}

// UpdatePayment writes status, method and timestamps of p if the row is still at fromVersion.
// Amount is never rewritten.
func (s *txStore) UpdatePayment(ctx context.Context, p *models.Payment, fromVersion int64) error {
	query := `UPDATE payments
              SET method = ?, status = ?, paid_at = ?, refunded_at = ?, version = version + 1, updated_at = ?
              WHERE id = ? AND version = ?`
	now := time.Now()
	result, err := s.tx.ExecContext(ctx, query, p.Method, p.Status, p.PaidAt, p.RefundedAt, now, p.ID, fromVersion)
	if err != nil {
		return fmt.Errorf("failed to update payment: %w", translateErr(err))
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrConcurrentModification
	}
	p.Version = fromVersion + 1
	p.UpdatedAt = now
	return nil
}
