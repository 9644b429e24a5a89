package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cuebook/internal/config"
	"cuebook/internal/logging"

	"github.com/rs/zerolog"
)

const (
	backupPrefix          = "cuebook_"
	backupSuffix          = ".db"
	defaultBackupInterval = 24 * time.Hour
)

// BackupResult describes one verified snapshot.
type BackupResult struct {
	Path         string
	Reservations int64
	Bytes        int64
}

// BackupService periodically snapshots the booking database and prunes old snapshots.
type BackupService struct {
	db     *DB
	config config.BackupConfig
	logger *zerolog.Logger
}

func NewBackupService(db *DB, cfg config.BackupConfig, logger *zerolog.Logger) *BackupService {
	return &BackupService{
		db:     db,
		config: cfg,
		logger: logging.Component(logger, "backup"),
	}
}

// Start blocks until ctx is done. The first snapshot is taken immediately.
func (s *BackupService) Start(ctx context.Context) {
	if !s.config.Enabled {
		s.logger.Info().Msg("Backup service is disabled")
		return
	}

	interval := config.ParseDuration(s.config.Schedule, defaultBackupInterval)
	s.logger.Info().Dur("interval", interval).Str("storage", s.config.StoragePath).Msg("Backup service started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *BackupService) runOnce(ctx context.Context) {
	res, err := s.PerformBackup(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error().Err(err).Msg("Backup failed")
		}
		return
	}
	s.logger.Info().
		Str("path", res.Path).
		Int64("reservations", res.Reservations).
		Int64("bytes", res.Bytes).
		Msg("Backup completed")

	if removed := s.CleanupOldBackups(); removed > 0 {
		s.logger.Info().Int("removed", removed).Msg("Old backups pruned")
	}
}

// PerformBackup writes a snapshot with VACUUM INTO and verifies it before reporting success.
// A snapshot that fails verification is removed.
func (s *BackupService) PerformBackup(ctx context.Context) (*BackupResult, error) {
	if err := os.MkdirAll(s.config.StoragePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}

	name := backupPrefix + time.Now().UTC().Format("20060102_150405.000") + backupSuffix
	path := filepath.Join(s.config.StoragePath, name)

	// VACUUM INTO идет через то же соединение, поэтому снимок согласован даже при активных бронированиях
	escaped := strings.ReplaceAll(path, "'", "''")
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("VACUUM INTO '%s'", escaped)); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("vacuum into %s: %w", path, err)
	}

	res, err := verifyBackup(ctx, path)
	if err != nil {
		_ = os.Remove(path)
		return nil, err
	}
	return res, nil
}

func verifyBackup(ctx context.Context, path string) (*BackupResult, error) {
	snapshot, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open backup: %w", err)
	}
	defer snapshot.Close()

	var check string
	if err := snapshot.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&check); err != nil {
		return nil, fmt.Errorf("integrity check: %w", err)
	}
	if check != "ok" {
		return nil, fmt.Errorf("backup %s is corrupted: %s", path, check)
	}

	res := &BackupResult{Path: path}
	if err := snapshot.QueryRowContext(ctx, "SELECT COUNT(*) FROM reservations").Scan(&res.Reservations); err != nil {
		return nil, fmt.Errorf("count reservations in backup: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	res.Bytes = info.Size()
	return res, nil
}

// CleanupOldBackups removes snapshots older than the retention period and returns how many were removed.
// Files not created by the service are left alone.
func (s *BackupService) CleanupOldBackups() int {
	if s.config.RetentionDays <= 0 {
		return 0
	}

	files, err := os.ReadDir(s.config.StoragePath)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to read backup directory for cleanup")
		return 0
	}

	cutoff := time.Now().AddDate(0, 0, -s.config.RetentionDays)
	removed := 0
	for _, file := range files {
		name := file.Name()
		if file.IsDir() || !strings.HasPrefix(name, backupPrefix) || !strings.HasSuffix(name, backupSuffix) {
			continue
		}

		info, err := file.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}

		if err := os.Remove(filepath.Join(s.config.StoragePath, name)); err != nil {
			s.logger.Warn().Err(err).Str("file", name).Msg("Failed to delete old backup")
			continue
		}
		removed++
	}
	return removed
}
