package database

import (
	"context"
	"testing"

	"cuebook/internal/domain"
	"cuebook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetTable(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	table, err := db.GetTable(ctx, testTableID)
	require.NoError(t, err)
	assert.Equal(t, "Table 1", table.Name)
	assert.Equal(t, models.TableAvailable, table.Status)
	assert.True(t, table.Bookable())

	maint, err := db.GetTable(ctx, maintenanceID)
	require.NoError(t, err)
	assert.False(t, maint.Bookable())

	_, err = db.GetTable(ctx, 404)
	assert.ErrorIs(t, err, domain.ErrTableNotFound)

	tt, err := db.GetTableType(ctx, table.TableTypeID)
	require.NoError(t, err)
	assert.Equal(t, models.Money(50000), tt.HourlyRate)
}

func TestSyncCatalog_UpdatesCache(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	// warm the cache
	_, err := db.GetTableType(ctx, testTableTypeID)
	require.NoError(t, err)

	err = db.SyncCatalog(ctx,
		[]models.TableType{{ID: testTableTypeID, Name: "Pool", HourlyRate: 60000}},
		[]models.Table{{ID: testTableID, Name: "Table 1", TableTypeID: testTableTypeID, Status: models.TableOccupied}},
	)
	require.NoError(t, err)

	tt, err := db.GetTableType(ctx, testTableTypeID)
	require.NoError(t, err)
	assert.Equal(t, models.Money(60000), tt.HourlyRate)

	table, err := db.GetTable(ctx, testTableID)
	require.NoError(t, err)
	assert.Equal(t, models.TableOccupied, table.Status)
}

func TestUpdateTableStatus(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	_, err := db.GetTable(ctx, testTableID)
	require.NoError(t, err)

	require.NoError(t, db.UpdateTableStatus(ctx, testTableID, models.TableMaintenance))

	table, err := db.GetTable(ctx, testTableID)
	require.NoError(t, err)
	assert.Equal(t, models.TableMaintenance, table.Status)

	assert.ErrorIs(t, db.UpdateTableStatus(ctx, 404, models.TableAvailable), domain.ErrTableNotFound)
}
