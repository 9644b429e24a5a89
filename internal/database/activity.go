package database

import (
	"context"
	"fmt"
	"time"

	"cuebook/internal/models"
)

const activityColumns = `id, event_type, reservation_id, payload, status, retry_count, last_error, created_at, processed_at, next_retry_at`

func (db *DB) InsertActivity(ctx context.Context, rec *models.ActivityRecord) error {
	query := `INSERT INTO activity_log (event_type, reservation_id, payload, status, retry_count, last_error, created_at, next_retry_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	if rec.Status == "" {
		rec.Status = models.ActivityPending
	}
	now := time.Now()
	result, err := db.ExecContext(ctx, query,
		rec.EventType,
		rec.ReservationID,
		rec.Payload,
		rec.Status,
		rec.RetryCount,
		rec.LastError,
		now,
		rec.NextRetryAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert activity: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	rec.ID = id
	rec.CreatedAt = now
	return nil
}

// GetPendingActivity returns undelivered records that are due, oldest first.
func (db *DB) GetPendingActivity(ctx context.Context, limit int) ([]models.ActivityRecord, error) {
	query := `SELECT ` + activityColumns + `
              FROM activity_log
              WHERE status IN (?, ?) AND (next_retry_at IS NULL OR next_retry_at <= ?)
              ORDER BY created_at ASC LIMIT ?`
	rows, err := db.QueryContext(ctx, query, models.ActivityPending, models.ActivityRetry, time.Now(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending activity: %w", err)
	}
	defer rows.Close()
	return scanActivity(rows)
}

func (db *DB) GetActivityByReservation(ctx context.Context, reservationID int64) ([]models.ActivityRecord, error) {
	query := `SELECT ` + activityColumns + ` FROM activity_log WHERE reservation_id = ? ORDER BY id ASC`
	rows, err := db.QueryContext(ctx, query, reservationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get activity: %w", err)
	}
	defer rows.Close()
	return scanActivity(rows)
}

func (db *DB) GetActivity(ctx context.Context, id int64) (*models.ActivityRecord, error) {
	query := `SELECT ` + activityColumns + ` FROM activity_log WHERE id = ?`
	rows, err := db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get activity: %w", err)
	}
	defer rows.Close()

	recs, err := scanActivity(rows)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("activity %d not found", id)
	}
	return &recs[0], nil
}

func (db *DB) UpdateActivityStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error {
	var query string
	var args []interface{}
	now := time.Now()

	var lastErr interface{}
	if errMsg != "" {
		lastErr = errMsg
	}

	switch status {
	case models.ActivityRetry:
		query = `UPDATE activity_log SET status = ?, last_error = ?, next_retry_at = ?, retry_count = retry_count + 1 WHERE id = ?`
		args = []interface{}{status, lastErr, nextRetryAt, id}
	case models.ActivityDelivered, models.ActivityFailed:
		query = `UPDATE activity_log SET status = ?, last_error = ?, next_retry_at = ?, processed_at = ? WHERE id = ?`
		args = []interface{}{status, lastErr, nextRetryAt, now, id}
	default:
		query = `UPDATE activity_log SET status = ?, last_error = ?, next_retry_at = ? WHERE id = ?`
		args = []interface{}{status, lastErr, nextRetryAt, id}
	}

	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update activity status: %w", err)
	}
	return nil
}

type activityRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanActivity(rows activityRows) ([]models.ActivityRecord, error) {
	var recs []models.ActivityRecord
	for rows.Next() {
		var r models.ActivityRecord
		err := rows.Scan(
			&r.ID, &r.EventType, &r.ReservationID, &r.Payload, &r.Status, &r.RetryCount,
			&r.LastError, &r.CreatedAt, &r.ProcessedAt, &r.NextRetryAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}
