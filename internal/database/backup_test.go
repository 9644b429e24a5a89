package database

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cuebook/internal/config"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackupService_SnapshotContainsReservations(t *testing.T) {
	db := setupFileDB(t)
	defer db.Close()

	ctx := context.Background()
	for _, h := range []int{10, 12, 14} {
		start, end := slot(h, 0, h+1, 0)
		_, err := book(ctx, db, testTableID, 42, start, end)
		require.NoError(t, err)
	}

	storagePath := filepath.Join(t.TempDir(), "backups")
	logger := zerolog.Nop()
	s := NewBackupService(db, config.BackupConfig{Enabled: true, StoragePath: storagePath}, &logger)

	res, err := s.PerformBackup(ctx)
	require.NoError(t, err)
	assert.FileExists(t, res.Path)
	assert.Equal(t, int64(3), res.Reservations)
	assert.Positive(t, res.Bytes)
	assert.True(t, strings.HasPrefix(filepath.Base(res.Path), backupPrefix))

	// снимок независим от живой базы
	start, end := slot(16, 0, 17, 0)
	_, err = book(ctx, db, testTableID, 42, start, end)
	require.NoError(t, err)

	again, err := verifyBackup(ctx, res.Path)
	require.NoError(t, err)
	assert.Equal(t, int64(3), again.Reservations)
}

func TestBackupService_InMemory(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	logger := zerolog.Nop()
	s := NewBackupService(db, config.BackupConfig{Enabled: true, StoragePath: t.TempDir()}, &logger)

	res, err := s.PerformBackup(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Reservations)
}

func TestBackupService_CleanupOldBackups(t *testing.T) {
	storagePath := t.TempDir()
	logger := zerolog.Nop()
	s := NewBackupService(nil, config.BackupConfig{StoragePath: storagePath, RetentionDays: 1}, &logger)

	old := time.Now().AddDate(0, 0, -2)
	write := func(name string, mtime time.Time) {
		p := filepath.Join(storagePath, name)
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
		require.NoError(t, os.Chtimes(p, mtime, mtime))
	}
	write("cuebook_20260101_000000.000.db", old)
	write("cuebook_fresh.db", time.Now())
	write("notes.txt", old)

	assert.Equal(t, 1, s.CleanupOldBackups())

	files, err := os.ReadDir(storagePath)
	require.NoError(t, err)
	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, f.Name())
	}
	assert.ElementsMatch(t, []string{"cuebook_fresh.db", "notes.txt"}, names)
}

func TestBackupService_CleanupDisabled(t *testing.T) {
	logger := zerolog.Nop()
	s := NewBackupService(nil, config.BackupConfig{StoragePath: t.TempDir()}, &logger)
	assert.Zero(t, s.CleanupOldBackups())
}

func TestBackupService_Loop(t *testing.T) {
	db := setupFileDB(t)
	defer db.Close()

	cfg := config.BackupConfig{
		Enabled:     true,
		Schedule:    "10ms",
		StoragePath: filepath.Join(t.TempDir(), "backups_loop"),
	}
	logger := zerolog.Nop()
	s := NewBackupService(db, cfg, &logger)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	s.Start(ctx)

	files, _ := os.ReadDir(cfg.StoragePath)
	assert.NotEmpty(t, files)
}

func TestBackupService_Disabled(_ *testing.T) {
	logger := zerolog.Nop()
	s := NewBackupService(nil, config.BackupConfig{Enabled: false}, &logger)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.Start(ctx)
}

func TestBackupService_StorageIsAFile(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	// MkdirAll падает, если по пути лежит файл
	tmpFile := filepath.Join(t.TempDir(), "notadir")
	require.NoError(t, os.WriteFile(tmpFile, nil, 0o644))

	logger := zerolog.Nop()
	bs := NewBackupService(db, config.BackupConfig{Enabled: true, StoragePath: filepath.Join(tmpFile, "subdir")}, &logger)

	_, err := bs.PerformBackup(context.Background())
	assert.Error(t, err)
}

func TestVerifyBackup_NotADatabase(t *testing.T) {
	p := filepath.Join(t.TempDir(), "cuebook_broken.db")
	require.NoError(t, os.WriteFile(p, []byte("definitely not sqlite"), 0o644))

	_, err := verifyBackup(context.Background(), p)
	assert.Error(t, err)
}
