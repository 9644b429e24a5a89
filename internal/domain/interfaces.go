package domain

import (
	"context"
	"time"

	"cuebook/internal/models"
)

// Repository is the durable store behind the booking engine.
type Repository interface {
	GetTable(ctx context.Context, id int64) (*models.Table, error)
	GetTableType(ctx context.Context, id int64) (*models.TableType, error)
	GetPromo(ctx context.Context, id int64) (*models.Promo, error)
	GetPromoByCode(ctx context.Context, code string) (*models.Promo, error)
	IsOverlapping(ctx context.Context, tableID int64, start, end time.Time, excludeReservationID int64) (bool, error)
	GetReservation(ctx context.Context, id int64) (*models.Reservation, error)
	GetPaymentByReservation(ctx context.Context, reservationID int64) (*models.Payment, error)
	FindReservationByIdempotencyKey(ctx context.Context, customerID int64, key string) (*models.Reservation, error)
	ListTableReservations(ctx context.Context, tableID int64, from, to time.Time) ([]*models.Reservation, error)
	GetCustomerReservations(ctx context.Context, customerID int64) ([]*models.Reservation, error)

	// InTableTx runs fn in one transaction while holding the per-table booking lock.
	InTableTx(ctx context.Context, tableID int64, fn func(tx BookingTx) error) error
	// InTx runs fn in one transaction.
	InTx(ctx context.Context, fn func(tx BookingTx) error) error
}

// BookingTx is the set of store operations available inside a unit of work.
type BookingTx interface {
	// FindReservationByIdempotencyKey sees rows committed by requests that held the table lock before us.
	FindReservationByIdempotencyKey(ctx context.Context, customerID int64, key string) (*models.Reservation, error)
	IsOverlapping(ctx context.Context, tableID int64, start, end time.Time, excludeReservationID int64) (bool, error)
	GetPromoByCode(ctx context.Context, code string) (*models.Promo, error)
	ConsumePromo(ctx context.Context, promoID int64, asOfDate string, durationMinutes int64) error
	InsertReservation(ctx context.Context, r *models.Reservation) error
	InsertPayment(ctx context.Context, p *models.Payment) error
	GetReservation(ctx context.Context, id int64) (*models.Reservation, error)
	GetPaymentByReservation(ctx context.Context, reservationID int64) (*models.Payment, error)
	UpdateReservationStatus(ctx context.Context, id, fromVersion int64, status models.ReservationStatus) error
	UpdatePayment(ctx context.Context, p *models.Payment, fromVersion int64) error
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// IdempotencyStore deduplicates in-flight create requests.
type IdempotencyStore interface {
	// Begin claims key. If the key was already claimed it returns the stored reservation id
	// (zero while the first request is still running) and started=false.
	Begin(ctx context.Context, key string, ttl time.Duration) (reservationID int64, started bool, err error)
	Finish(ctx context.Context, key string, reservationID int64, ttl time.Duration) error
	Abort(ctx context.Context, key string) error
}

// AttemptLimiter throttles booking attempts per customer.
type AttemptLimiter interface {
	CheckRateLimit(ctx context.Context, customerID int64, limit int, window time.Duration) (bool, error)
}

// BookingStore is the short-lived key/value side of booking: idempotency claims and attempt counters.
type BookingStore interface {
	IdempotencyStore
	AttemptLimiter
}

type BookingService interface {
	CreateReservation(ctx context.Context, req CreateReservationRequest) (*models.ReservationView, error)
	CheckAvailability(ctx context.Context, tableID int64, start, end time.Time, promoCode string) (*models.AvailabilityResult, error)
	ProcessPayment(ctx context.Context, reservationID int64, method string, actor models.Actor) (*models.Payment, error)
	CancelReservation(ctx context.Context, reservationID int64, actor models.Actor) (*models.Reservation, error)
	CompleteReservation(ctx context.Context, reservationID int64, actor models.Actor) (*models.Reservation, error)
	GetReservation(ctx context.Context, reservationID int64, actor models.Actor) (*models.ReservationView, error)
	ListTableReservations(ctx context.Context, tableID int64, from, to time.Time) ([]*models.Reservation, error)
	ListCustomerReservations(ctx context.Context, actor models.Actor) ([]*models.Reservation, error)
}

// CreateReservationRequest carries everything needed to book a table.
type CreateReservationRequest struct {
	TableID    int64
	CustomerID int64
	Start      time.Time
	End        time.Time
	PromoCode  string
	Notes      string
	// RequirePromo turns an unusable promo code into a hard failure.
	RequirePromo   bool
	IdempotencyKey string
	// Actor is who placed the booking; zero means the customer did it themselves.
	Actor models.Actor
}
