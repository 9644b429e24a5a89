package models

import "time"

// ActivityRecord is a delivered-or-pending notification about a booking event.
type ActivityRecord struct {
	ID            int64      `json:"id"`
	EventType     string     `json:"event_type"`
	ReservationID int64      `json:"reservation_id"`
	Payload       string     `json:"payload"`
	Status        string     `json:"status"` // pending, retry, delivered, failed
	RetryCount    int        `json:"retry_count"`
	LastError     *string    `json:"last_error"`
	CreatedAt     time.Time  `json:"created_at"`
	ProcessedAt   *time.Time `json:"processed_at"`
	NextRetryAt   *time.Time `json:"next_retry_at"`
}

const (
	ActivityPending   = "pending"
	ActivityRetry     = "retry"
	ActivityDelivered = "delivered"
	ActivityFailed    = "failed"
)
