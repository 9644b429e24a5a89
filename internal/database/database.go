package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"cuebook/internal/domain"
	"cuebook/internal/models"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// overlapViolation is the RAISE message of the reservation overlap triggers.
const overlapViolation = "reservation_overlap"

type DB struct {
	*sql.DB
	path   string
	logger *zerolog.Logger

	// per-table booking locks; calls for different tables never share one
	tableLocks sync.Map

	mu         sync.RWMutex
	tableCache map[int64]models.Table
	typeCache  map[int64]models.TableType
}

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	inMemory := path == ":memory:"

	// Создаем директорию для БД, если её нет
	if !inMemory {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := path + "?_busy_timeout=5000&_txlock=immediate&_foreign_keys=on"
	if !inMemory {
		dsn += "&_journal_mode=WAL"
	}

	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// каждое соединение к :memory: это отдельная база
	if inMemory {
		sqlDB.SetMaxOpenConns(1)
	}

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := createTables(sqlDB); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("Database initialized")

	return &DB{
		DB:         sqlDB,
		path:       path,
		logger:     logger,
		tableCache: make(map[int64]models.Table),
		typeCache:  make(map[int64]models.TableType),
	}, nil
}

// Path returns the file the database was opened from.
func (db *DB) Path() string {
	return db.path
}

func createTables(db *sql.DB) error {
	queries := []string{
		// Типы столов и тарифы
		`CREATE TABLE IF NOT EXISTS table_types (
            id INTEGER PRIMARY KEY,
            name TEXT NOT NULL,
            hourly_rate INTEGER NOT NULL CHECK (hourly_rate >= 0),
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,
		// Бильярдные столы
		`CREATE TABLE IF NOT EXISTS billiard_tables (
            id INTEGER PRIMARY KEY,
            name TEXT NOT NULL,
            table_type_id INTEGER NOT NULL REFERENCES table_types(id),
            status TEXT NOT NULL DEFAULT 'available',
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,
		// Промокоды
		`CREATE TABLE IF NOT EXISTS promos (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            code TEXT NOT NULL UNIQUE,
            description TEXT NOT NULL DEFAULT '',
            discount_type TEXT NOT NULL CHECK (discount_type IN ('percentage', 'fixed')),
            discount_value INTEGER NOT NULL CHECK (discount_value >= 0),
            min_hours REAL NOT NULL DEFAULT 0,
            valid_from TEXT NOT NULL,
            valid_until TEXT NOT NULL,
            max_uses INTEGER,
            current_uses INTEGER NOT NULL DEFAULT 0,
            is_active BOOLEAN NOT NULL DEFAULT 1,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            CHECK (max_uses IS NULL OR current_uses <= max_uses)
        )`,
		// Брони; start_at/end_at в unix-секундах
		`CREATE TABLE IF NOT EXISTS reservations (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            table_id INTEGER NOT NULL REFERENCES billiard_tables(id),
            customer_id INTEGER NOT NULL,
            promo_id INTEGER REFERENCES promos(id),
            start_at INTEGER NOT NULL,
            end_at INTEGER NOT NULL,
            duration_minutes INTEGER NOT NULL,
            base_cost INTEGER NOT NULL,
            discount INTEGER NOT NULL DEFAULT 0,
            final_cost INTEGER NOT NULL,
            status TEXT NOT NULL DEFAULT 'pending',
            notes TEXT NOT NULL DEFAULT '',
            idempotency_key TEXT,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            version INTEGER NOT NULL DEFAULT 1,
            CHECK (end_at > start_at),
            CHECK (discount >= 0 AND discount <= base_cost),
            CHECK (final_cost = base_cost - discount)
        )`,
		// Платежи, ровно один на бронь
		`CREATE TABLE IF NOT EXISTS payments (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            reservation_id INTEGER NOT NULL UNIQUE REFERENCES reservations(id),
            amount INTEGER NOT NULL CHECK (amount >= 0),
            method TEXT NOT NULL DEFAULT '',
            status TEXT NOT NULL DEFAULT 'pending',
            paid_at DATETIME,
            refunded_at DATETIME,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            version INTEGER NOT NULL DEFAULT 1
        )`,
		// Журнал событий для уведомлений
		`CREATE TABLE IF NOT EXISTS activity_log (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            event_type TEXT NOT NULL,
            reservation_id INTEGER NOT NULL,
            payload TEXT NOT NULL,
            status TEXT NOT NULL DEFAULT 'pending',
            retry_count INTEGER NOT NULL DEFAULT 0,
            last_error TEXT,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            processed_at DATETIME,
            next_retry_at DATETIME
        )`,

		// Последний рубеж против двойного бронирования
		`CREATE TRIGGER IF NOT EXISTS trg_reservations_overlap_insert
            BEFORE INSERT ON reservations
            WHEN NEW.status IN ('pending', 'confirmed')
        BEGIN
            SELECT RAISE(ABORT, 'reservation_overlap')
            WHERE EXISTS (
                SELECT 1 FROM reservations r
                WHERE r.table_id = NEW.table_id
                  AND r.status IN ('pending', 'confirmed')
                  AND r.start_at < NEW.end_at
                  AND NEW.start_at < r.end_at
            );
        END`,
		`CREATE TRIGGER IF NOT EXISTS trg_reservations_overlap_update
            BEFORE UPDATE OF status, start_at, end_at, table_id ON reservations
            WHEN NEW.status IN ('pending', 'confirmed')
        BEGIN
            SELECT RAISE(ABORT, 'reservation_overlap')
            WHERE EXISTS (
                SELECT 1 FROM reservations r
                WHERE r.id <> NEW.id
                  AND r.table_id = NEW.table_id
                  AND r.status IN ('pending', 'confirmed')
                  AND r.start_at < NEW.end_at
                  AND NEW.start_at < r.end_at
            );
        END`,

		`CREATE INDEX IF NOT EXISTS idx_reservations_table_time ON reservations(table_id, start_at, end_at)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_status ON reservations(status)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_customer ON reservations(customer_id)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_reservations_idempotency
            ON reservations(customer_id, idempotency_key) WHERE idempotency_key IS NOT NULL`,
		`CREATE INDEX IF NOT EXISTS idx_activity_log_status ON activity_log(status, next_retry_at)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

// translateErr maps store integrity violations onto domain errors.
func translateErr(err error) error {
	if err == nil {
		return nil
	}

	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) || sqliteErr.Code != sqlite3.ErrConstraint {
		return err
	}

	msg := sqliteErr.Error()
	switch {
	case strings.Contains(msg, overlapViolation):
		return domain.ErrSlotUnavailable
	case strings.Contains(msg, "reservations.customer_id, reservations.idempotency_key"):
		return domain.ErrDuplicateIdempotencyKey
	case strings.Contains(msg, "payments.reservation_id"):
		return domain.ErrConcurrentModification
	case strings.Contains(msg, "current_uses <= max_uses"):
		return domain.ErrPromoExhausted
	}
	return err
}

// lockTable blocks until the booking lock of tableID is free or ctx is done.
func (db *DB) lockTable(ctx context.Context, tableID int64) (func(), error) {
	v, _ := db.tableLocks.LoadOrStore(tableID, make(chan struct{}, 1))
	sem := v.(chan struct{})

	select {
	case sem <- struct{}{}:
		return func() { <-sem }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// InTx runs fn inside one transaction. Any error from fn rolls everything back.
func (db *DB) InTx(ctx context.Context, fn func(tx domain.BookingTx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(&txStore{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", translateErr(err))
	}
	return nil
}

// InTableTx is InTx under the per-table booking lock.
func (db *DB) InTableTx(ctx context.Context, tableID int64, fn func(tx domain.BookingTx) error) error {
	unlock, err := db.lockTable(ctx, tableID)
	if err != nil {
		return fmt.Errorf("failed to acquire table lock: %w", err)
	}
	defer unlock()

	return db.InTx(ctx, fn)
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// txStore implements domain.BookingTx on top of one *sql.Tx.
type txStore struct {
	tx *sql.Tx
}

var _ domain.BookingTx = (*txStore)(nil)
var _ domain.Repository = (*DB)(nil)
