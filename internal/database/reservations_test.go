package database

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"cuebook/internal/domain"
	"cuebook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsOverlapping_HalfOpen(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	start, end := slot(10, 0, 11, 0)
	existing, err := book(ctx, db, testTableID, 1, start, end)
	require.NoError(t, err)

	tests := []struct {
		name    string
		table   int64
		s, e    time.Time
		exclude int64
		want    bool
	}{
		{"identical", testTableID, start, end, 0, true},
		{"tail overlap", testTableID, start.Add(30 * time.Minute), end.Add(30 * time.Minute), 0, true},
		{"touching after", testTableID, end, end.Add(time.Hour), 0, false},
		{"touching before", testTableID, start.Add(-time.Hour), start, 0, false},
		{"other table", otherTableID, start, end, 0, false},
		{"excluded self", testTableID, start, end, existing.ID, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := db.IsOverlapping(ctx, tt.table, tt.s, tt.e, tt.exclude)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBook_BackToBackAllowed(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	s1, e1 := slot(10, 0, 11, 0)
	s2, e2 := slot(11, 0, 12, 0)

	_, err := book(ctx, db, testTableID, 1, s1, e1)
	require.NoError(t, err)
	_, err = book(ctx, db, testTableID, 2, s2, e2)
	require.NoError(t, err)

	_, err = book(ctx, db, testTableID, 3, s1.Add(30*time.Minute), e1.Add(30*time.Minute))
	assert.ErrorIs(t, err, domain.ErrSlotUnavailable)
}

func TestOverlapTrigger_TranslatesToSlotUnavailable(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	start, end := slot(10, 0, 12, 0)
	_, err := book(ctx, db, testTableID, 1, start, end)
	require.NoError(t, err)

	// insert without the availability check: the store must still refuse it
	err = db.InTx(ctx, func(tx domain.BookingTx) error {
		return tx.InsertReservation(ctx, &models.Reservation{
			TableID: testTableID, CustomerID: 2,
			StartAt: start.Add(time.Hour), EndAt: end.Add(time.Hour),
			DurationMinutes: 120, BaseCost: 1, FinalCost: 1, Status: models.StatusPending,
		})
	})
	assert.ErrorIs(t, err, domain.ErrSlotUnavailable)
}

func TestOverlapTrigger_BlocksReactivation(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	start, end := slot(10, 0, 11, 0)
	first, err := book(ctx, db, testTableID, 1, start, end)
	require.NoError(t, err)

	err = db.InTx(ctx, func(tx domain.BookingTx) error {
		return tx.UpdateReservationStatus(ctx, first.ID, first.Version, models.StatusCancelled)
	})
	require.NoError(t, err)

	_, err = book(ctx, db, testTableID, 2, start, end)
	require.NoError(t, err, "cancelled reservations never block")

	err = db.InTx(ctx, func(tx domain.BookingTx) error {
		return tx.UpdateReservationStatus(ctx, first.ID, first.Version+1, models.StatusPending)
	})
	assert.ErrorIs(t, err, domain.ErrSlotUnavailable)
}

func TestCompletedReservationDoesNotBlock(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	start, end := slot(10, 0, 11, 0)
	r, err := book(ctx, db, testTableID, 1, start, end)
	require.NoError(t, err)

	err = db.InTx(ctx, func(tx domain.BookingTx) error {
		if err := tx.UpdateReservationStatus(ctx, r.ID, 1, models.StatusConfirmed); err != nil {
			return err
		}
		return tx.UpdateReservationStatus(ctx, r.ID, 2, models.StatusCompleted)
	})
	require.NoError(t, err)

	overlap, err := db.IsOverlapping(ctx, testTableID, start, end, 0)
	require.NoError(t, err)
	assert.False(t, overlap)
}

func TestUpdateReservationStatus_StaleVersion(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	start, end := slot(10, 0, 11, 0)
	r, err := book(ctx, db, testTableID, 1, start, end)
	require.NoError(t, err)

	err = db.InTx(ctx, func(tx domain.BookingTx) error {
		return tx.UpdateReservationStatus(ctx, r.ID, r.Version+5, models.StatusConfirmed)
	})
	assert.ErrorIs(t, err, domain.ErrConcurrentModification)

	stored, err := db.GetReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, stored.Status)
	assert.Equal(t, int64(1), stored.Version)
}

func TestGetReservation_RoundTrip(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	start, end := slot(10, 0, 12, 0)
	r, err := book(ctx, db, testTableID, 42, start, end)
	require.NoError(t, err)

	stored, err := db.GetReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(42), stored.CustomerID)
	assert.True(t, stored.StartAt.Equal(start))
	assert.True(t, stored.EndAt.Equal(end))
	assert.Nil(t, stored.PromoID)
	assert.Equal(t, models.Money(1000), stored.FinalCost)

	_, err = db.GetReservation(ctx, 9999)
	assert.ErrorIs(t, err, domain.ErrReservationNotFound)
}

func TestIdempotencyKeyUnique(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	insert := func(customerID int64, start, end time.Time) error {
		return db.InTx(ctx, func(tx domain.BookingTx) error {
			return tx.InsertReservation(ctx, &models.Reservation{
				TableID: testTableID, CustomerID: customerID, StartAt: start, EndAt: end,
				DurationMinutes: 60, BaseCost: 1, FinalCost: 1, Status: models.StatusPending,
				IdempotencyKey: "req-1",
			})
		})
	}

	s1, e1 := slot(10, 0, 11, 0)
	s2, e2 := slot(12, 0, 13, 0)
	s3, e3 := slot(14, 0, 15, 0)

	require.NoError(t, insert(1, s1, e1))
	assert.ErrorIs(t, insert(1, s2, e2), domain.ErrDuplicateIdempotencyKey)
	assert.NoError(t, insert(2, s3, e3), "keys are scoped per customer")

	found, err := db.FindReservationByIdempotencyKey(ctx, 1, "req-1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.True(t, found.StartAt.Equal(s1))

	missing, err := db.FindReservationByIdempotencyKey(ctx, 1, "other")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestListTableReservations(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	s1, e1 := slot(14, 0, 15, 0)
	s2, e2 := slot(10, 0, 11, 0)
	s3, e3 := slot(20, 0, 21, 0)
	_, err := book(ctx, db, testTableID, 1, s1, e1)
	require.NoError(t, err)
	_, err = book(ctx, db, testTableID, 1, s2, e2)
	require.NoError(t, err)
	_, err = book(ctx, db, otherTableID, 1, s3, e3)
	require.NoError(t, err)

	from, to := slot(9, 0, 18, 0)
	list, err := db.ListTableReservations(ctx, testTableID, from, to)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.True(t, list[0].StartAt.Equal(s2), "ordered by start")
	assert.True(t, list[1].StartAt.Equal(s1))

	mine, err := db.GetCustomerReservations(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, mine, 3)
}

func TestNoDoubleBooking_RandomIntervals(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	rng := rand.New(rand.NewSource(7))
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	var booked []models.TimeRange
	for i := 0; i < 200; i++ {
		start := day.Add(time.Duration(rng.Intn(96)) * 15 * time.Minute)
		end := start.Add(time.Duration(2+rng.Intn(8)) * 15 * time.Minute)
		candidate := models.NewTimeRange(start, end)

		expectConflict := false
		for _, b := range booked {
			if b.Overlaps(candidate) {
				expectConflict = true
				break
			}
		}

		_, err := book(ctx, db, testTableID, int64(i), start, end)
		if expectConflict {
			require.ErrorIs(t, err, domain.ErrSlotUnavailable)
			continue
		}
		require.NoError(t, err)
		booked = append(booked, candidate)
	}

	list, err := db.ListTableReservations(ctx, testTableID, day, day.Add(48*time.Hour))
	require.NoError(t, err)
	for i := range list {
		for j := i + 1; j < len(list); j++ {
			assert.False(t, list[i].Range().Overlaps(list[j].Range()),
				"reservations %d and %d overlap", list[i].ID, list[j].ID)
		}
	}
}
