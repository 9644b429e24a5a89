package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"cuebook/internal/config"

	"github.com/redis/go-redis/v9"
)

// RedisBookingStore keeps idempotency claims and booking attempt counters in Redis.
type RedisBookingStore struct {
	client *redis.Client
}

// NewRedisClient создает новый клиент Redis на основе конфигурации
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	options := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}

	return redis.NewClient(options)
}

func NewRedisBookingStore(client *redis.Client) *RedisBookingStore {
	return &RedisBookingStore{client: client}
}

func idempotencyKey(key string) string {
	return "idem:" + key
}

// Begin claims key with SET NX. A lost race returns the stored reservation id,
// which stays zero until the winner calls Finish.
func (r *RedisBookingStore) Begin(ctx context.Context, key string, ttl time.Duration) (int64, bool, error) {
	if r.client == nil {
		return 0, false, fmt.Errorf("redis client is nil")
	}
	rkey := idempotencyKey(key)

	ok, err := r.client.SetNX(ctx, rkey, "0", ttl).Result()
	if err != nil {
		return 0, false, fmt.Errorf("failed to claim idempotency key: %w", err)
	}
	if ok {
		return 0, true, nil
	}

	val, err := r.client.Get(ctx, rkey).Result()
	if errors.Is(err, redis.Nil) {
		// истек между SETNX и GET, пробуем еще раз
		return r.Begin(ctx, key, ttl)
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read idempotency key: %w", err)
	}

	id, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt idempotency value %q: %w", val, err)
	}
	return id, false, nil
}

func (r *RedisBookingStore) Finish(ctx context.Context, key string, reservationID int64, ttl time.Duration) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := r.client.Set(ctx, idempotencyKey(key), strconv.FormatInt(reservationID, 10), ttl).Err(); err != nil {
		return fmt.Errorf("failed to store idempotency result: %w", err)
	}
	return nil
}

func (r *RedisBookingStore) Abort(ctx context.Context, key string) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := r.client.Del(ctx, idempotencyKey(key)).Err(); err != nil {
		return fmt.Errorf("failed to release idempotency key: %w", err)
	}
	return nil
}

// CheckRateLimit counts booking attempts of a customer in a fixed window.
func (r *RedisBookingStore) CheckRateLimit(ctx context.Context, customerID int64, limit int, window time.Duration) (bool, error) {
	if r.client == nil {
		return false, fmt.Errorf("redis client is nil")
	}
	key := fmt.Sprintf("booking_rate:%d", customerID)
	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to increment rate limit: %w", err)
	}

	if count == 1 {
		r.client.Expire(ctx, key, window)
	}

	return count <= int64(limit), nil
}

// Ping проверяет соединение с Redis
func Ping(ctx context.Context, client *redis.Client) error {
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close закрывает соединение с Redis
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
