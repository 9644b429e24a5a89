package repository

import (
	"context"
	"sync/atomic"
	"time"

	"cuebook/internal/domain"

	"github.com/rs/zerolog"
)

// recoveryInterval is how long the primary store is skipped after a failure.
const recoveryInterval = time.Minute

// FailoverBookingStore routes calls to primary (Redis) and switches to fallback (memory) on errors.
type FailoverBookingStore struct {
	primary   domain.BookingStore
	fallback  domain.BookingStore
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
}

func NewFailoverBookingStore(primary, fallback domain.BookingStore, logger *zerolog.Logger) *FailoverBookingStore {
	return &FailoverBookingStore{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

// usePrimary reports whether the primary should be tried, allowing a probe once per recoveryInterval.
func (r *FailoverBookingStore) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	return time.Since(time.Unix(0, r.lastCheck.Load())) > recoveryInterval
}

func (r *FailoverBookingStore) markDown(err error) {
	if !r.isDown.Swap(true) {
		r.logger.Error().Err(err).Msg("Primary booking store failed, falling back to memory")
	}
	r.lastCheck.Store(time.Now().UnixNano())
}

func (r *FailoverBookingStore) markUp() {
	if r.isDown.Swap(false) {
		r.logger.Info().Msg("Primary booking store recovered")
	}
}

func (r *FailoverBookingStore) Begin(ctx context.Context, key string, ttl time.Duration) (int64, bool, error) {
	if r.usePrimary() {
		id, started, err := r.primary.Begin(ctx, key, ttl)
		if err == nil {
			r.markUp()
			return id, started, nil
		}
		r.markDown(err)
	}
	return r.fallback.Begin(ctx, key, ttl)
}

func (r *FailoverBookingStore) Finish(ctx context.Context, key string, reservationID int64, ttl time.Duration) error {
	if r.usePrimary() {
		err := r.primary.Finish(ctx, key, reservationID, ttl)
		if err == nil {
			return nil
		}
		r.markDown(err)
	}
	return r.fallback.Finish(ctx, key, reservationID, ttl)
}

func (r *FailoverBookingStore) Abort(ctx context.Context, key string) error {
	// ключ мог быть создан в любом из хранилищ
	_ = r.fallback.Abort(ctx, key)
	if r.usePrimary() {
		err := r.primary.Abort(ctx, key)
		if err == nil {
			return nil
		}
		r.markDown(err)
	}
	return nil
}

func (r *FailoverBookingStore) CheckRateLimit(ctx context.Context, customerID int64, limit int, window time.Duration) (bool, error) {
	if r.usePrimary() {
		allowed, err := r.primary.CheckRateLimit(ctx, customerID, limit, window)
		if err == nil {
			r.markUp()
			return allowed, nil
		}
		r.markDown(err)
	}
	return r.fallback.CheckRateLimit(ctx, customerID, limit, window)
}

var (
	_ domain.BookingStore = (*RedisBookingStore)(nil)
	_ domain.BookingStore = (*MemoryBookingStore)(nil)
	_ domain.BookingStore = (*FailoverBookingStore)(nil)
)
