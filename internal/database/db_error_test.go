package database

import (
	"context"
	"io"
	"os"
	"testing"
	"time"

	"cuebook/internal/domain"
	"cuebook/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestDB_ErrorPaths(t *testing.T) {
	logger := zerolog.New(io.Discard)
	db, err := NewDB(":memory:", &logger)
	assert.NoError(t, err)
	db.Close() // Close the DB to trigger errors

	ctx := context.Background()
	now := time.Now()

	t.Run("IsOverlapping_Error", func(t *testing.T) {
		_, err := db.IsOverlapping(ctx, 1, now, now.Add(time.Hour), 0)
		assert.Error(t, err)
	})

	t.Run("GetReservation_Error", func(t *testing.T) {
		_, err := db.GetReservation(ctx, 1)
		assert.Error(t, err)
		assert.NotErrorIs(t, err, domain.ErrReservationNotFound)
	})

	t.Run("ListTableReservations_Error", func(t *testing.T) {
		_, err := db.ListTableReservations(ctx, 1, now, now)
		assert.Error(t, err)
	})

	t.Run("SyncCatalog_Error", func(t *testing.T) {
		err := db.SyncCatalog(ctx, []models.TableType{}, nil)
		assert.Error(t, err)
	})

	t.Run("InTx_Error", func(t *testing.T) {
		err := db.InTx(ctx, func(tx domain.BookingTx) error { return nil })
		assert.Error(t, err)
	})

	t.Run("InsertActivity_Error", func(t *testing.T) {
		err := db.InsertActivity(ctx, &models.ActivityRecord{})
		assert.Error(t, err)
	})

	t.Run("UpsertPromo_Error", func(t *testing.T) {
		err := db.UpsertPromo(ctx, &models.Promo{Code: "X"})
		assert.Error(t, err)
	})
}

func TestNewDB_Error(t *testing.T) {
	tmpDir, _ := os.MkdirTemp("", "db_err")
	defer os.RemoveAll(tmpDir)

	logger := zerolog.New(io.Discard)
	_, err := NewDB(tmpDir, &logger)
	assert.Error(t, err)
}
