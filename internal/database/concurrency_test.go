package database

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cuebook/internal/domain"
	"cuebook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcurrentBooking_SameTable(t *testing.T) {
	db := setupFileDB(t)
	defer db.Close()

	ctx := context.Background()
	start, end := slot(10, 0, 11, 0)

	const numGoroutines = 10
	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	results := make(chan error, numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer wg.Done()
			// every request overlaps every other one by at least 30 minutes
			offset := time.Duration(id%2) * 30 * time.Minute
			_, err := book(ctx, db, testTableID, int64(id), start.Add(offset), end.Add(offset))
			results <- err
		}(i)
	}

	wg.Wait()
	close(results)

	successCount := 0
	conflictCount := 0
	for err := range results {
		switch {
		case err == nil:
			successCount++
		case errors.Is(err, domain.ErrSlotUnavailable):
			conflictCount++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 1, successCount, "exactly one overlapping booking must win")
	assert.Equal(t, numGoroutines-1, conflictCount)

	list, err := db.ListTableReservations(ctx, testTableID, start.Add(-time.Hour), end.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestConcurrentBooking_DifferentTables(t *testing.T) {
	db := setupFileDB(t)
	defer db.Close()

	ctx := context.Background()
	start, end := slot(10, 0, 11, 0)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, tableID := range []int64{testTableID, otherTableID} {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			_, err := book(ctx, db, id, 1, start, end)
			errs <- err
		}(tableID)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestConcurrentPromoConsumption(t *testing.T) {
	db := setupFileDB(t)
	defer db.Close()

	ctx := context.Background()
	const maxUses = 3
	const attempts = 12
	promo := createPromo(t, db, "LIMITED", int64Ptr(maxUses))

	var wg sync.WaitGroup
	wg.Add(attempts)
	results := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		go func(id int) {
			defer wg.Done()
			// separate slots, so only the promo is contended
			start := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC).Add(time.Duration(id) * time.Hour)
			end := start.Add(time.Hour)
			err := db.InTableTx(ctx, testTableID, func(tx domain.BookingTx) error {
				if err := tx.ConsumePromo(ctx, promo.ID, "2026-03-10", 60); err != nil {
					return err
				}
				return tx.InsertReservation(ctx, &models.Reservation{
					TableID: testTableID, CustomerID: int64(id), PromoID: &promo.ID,
					StartAt: start, EndAt: end, DurationMinutes: 60,
					BaseCost: 100, Discount: 10, FinalCost: 90, Status: models.StatusPending,
				})
			})
			results <- err
		}(i)
	}

	wg.Wait()
	close(results)

	applied := 0
	for err := range results {
		if err == nil {
			applied++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrPromoExhausted)
	}

	stored, err := db.GetPromo(ctx, promo.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(maxUses), stored.CurrentUses)
	assert.Equal(t, maxUses, applied)
}
