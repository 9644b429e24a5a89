package repository

import (
	"context"
	"sync"
	"time"
)

type idemEntry struct {
	reservationID int64
	expiresAt     time.Time
}

// MemoryBookingStore is the in-process BookingStore used without Redis or while Redis is down.
type MemoryBookingStore struct {
	mu         sync.Mutex
	keys       map[string]idemEntry
	rateLimits sync.Map
}

func NewMemoryBookingStore() *MemoryBookingStore {
	return &MemoryBookingStore{keys: make(map[string]idemEntry)}
}

func (r *MemoryBookingStore) Begin(ctx context.Context, key string, ttl time.Duration) (int64, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if e, ok := r.keys[key]; ok && now.Before(e.expiresAt) {
		return e.reservationID, false, nil
	}
	r.sweepLocked(now)
	r.keys[key] = idemEntry{expiresAt: now.Add(ttl)}
	return 0, true, nil
}

// sweepLocked drops expired claims. Caller holds mu.
func (r *MemoryBookingStore) sweepLocked(now time.Time) {
	for k, e := range r.keys {
		if !now.Before(e.expiresAt) {
			delete(r.keys, k)
		}
	}
}

func (r *MemoryBookingStore) Finish(ctx context.Context, key string, reservationID int64, ttl time.Duration) error {
	r.mu.Lock()
	r.keys[key] = idemEntry{reservationID: reservationID, expiresAt: time.Now().Add(ttl)}
	r.mu.Unlock()
	return nil
}

func (r *MemoryBookingStore) Abort(ctx context.Context, key string) error {
	r.mu.Lock()
	delete(r.keys, key)
	r.mu.Unlock()
	return nil
}

type rateLimitEntry struct {
	mu        sync.Mutex
	count     int
	expiresAt time.Time
}

func (r *MemoryBookingStore) CheckRateLimit(ctx context.Context, customerID int64, limit int, window time.Duration) (bool, error) {
	val, _ := r.rateLimits.LoadOrStore(customerID, &rateLimitEntry{})
	entry := val.(*rateLimitEntry)

	entry.mu.Lock()
	defer entry.mu.Unlock()

	now := time.Now()
	if now.After(entry.expiresAt) {
		entry.count = 1
		entry.expiresAt = now.Add(window)
	} else {
		entry.count++
	}
	return entry.count <= limit, nil
}
