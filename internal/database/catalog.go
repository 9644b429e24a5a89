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

// SyncCatalog upserts table types and tables from configuration and refreshes the cache.
func (db *DB) SyncCatalog(ctx context.Context, types []models.TableType, tables []models.Table) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now()
	typeQuery := `INSERT INTO table_types (id, name, hourly_rate, created_at, updated_at)
                  VALUES (?, ?, ?, ?, ?)
                  ON CONFLICT(id) DO UPDATE SET
                      name = excluded.name,
                      hourly_rate = excluded.hourly_rate,
                      updated_at = excluded.updated_at`
	for _, tt := range types {
		if _, err := tx.ExecContext(ctx, typeQuery, tt.ID, tt.Name, tt.HourlyRate, now, now); err != nil {
			return fmt.Errorf("failed to sync table type %d: %w", tt.ID, err)
		}
	}

	tableQuery := `INSERT INTO billiard_tables (id, name, table_type_id, status, created_at, updated_at)
                   VALUES (?, ?, ?, ?, ?, ?)
                   ON CONFLICT(id) DO UPDATE SET
                       name = excluded.name,
                       table_type_id = excluded.table_type_id,
                       status = excluded.status,
                       updated_at = excluded.updated_at`
	for _, t := range tables {
		status := t.Status
		if status == "" {
			status = models.TableAvailable
		}
		if _, err := tx.ExecContext(ctx, tableQuery, t.ID, t.Name, t.TableTypeID, status, now, now); err != nil {
			return fmt.Errorf("failed to sync table %d: %w", t.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit catalog: %w", err)
	}

	db.invalidateCatalog()
	db.logger.Info().Int("table_types", len(types)).Int("tables", len(tables)).Msg("Catalog synchronized")
	return nil
}

func (db *DB) invalidateCatalog() {
	db.mu.Lock()
	db.tableCache = make(map[int64]models.Table)
	db.typeCache = make(map[int64]models.TableType)
	db.mu.Unlock()
}

func (db *DB) GetTable(ctx context.Context, id int64) (*models.Table, error) {
	db.mu.RLock()
	cached, ok := db.tableCache[id]
	db.mu.RUnlock()
	if ok {
		return &cached, nil
	}

	var t models.Table
	query := `SELECT id, name, table_type_id, status, created_at, updated_at FROM billiard_tables WHERE id = ?`
	err := db.QueryRowContext(ctx, query, id).Scan(&t.ID, &t.Name, &t.TableTypeID, &t.Status, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrTableNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get table: %w", err)
	}

	db.mu.Lock()
	db.tableCache[id] = t
	db.mu.Unlock()
	return &t, nil
}

func (db *DB) GetTableType(ctx context.Context, id int64) (*models.TableType, error) {
	db.mu.RLock()
	cached, ok := db.typeCache[id]
	db.mu.RUnlock()
	if ok {
		return &cached, nil
	}

	var tt models.TableType
	query := `SELECT id, name, hourly_rate, created_at, updated_at FROM table_types WHERE id = ?`
	err := db.QueryRowContext(ctx, query, id).Scan(&tt.ID, &tt.Name, &tt.HourlyRate, &tt.CreatedAt, &tt.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("table type %d: %w", id, domain.ErrTableNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get table type: %w", err)
	}

	db.mu.Lock()
	db.typeCache[id] = tt
	db.mu.Unlock()
	return &tt, nil
}

// UpdateTableStatus is the hook for the table-management side to report physical state.
func (db *DB) UpdateTableStatus(ctx context.Context, id int64, status string) error {
	query := `UPDATE billiard_tables SET status = ?, updated_at = ? WHERE id = ?`
	result, err := db.ExecContext(ctx, query, status, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update table status: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrTableNotFound
	}

	db.mu.Lock()
	delete(db.tableCache, id)
	db.mu.Unlock()
	return nil
}
