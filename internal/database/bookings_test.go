package database

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"coachdesk/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	logger := zerolog.New(os.Stdout)
	db, err := NewDB(":memory:", &logger)
	require.NoError(t, err)
	return db
}

func newTestBooking(date time.Time) *models.Booking {
	return &models.Booking{
		AthleteID:       101,
		AthleteName:     "Sasha Petrov",
		CoachName:       "Coach D",
		ParentPhone:     "+15550100",
		Date:            date,
		DurationMinutes: 60,
		IsMember:        true,
		Status:          models.BookingConfirmed,
		PaymentStatus:   models.PaymentReservationPaid,
		Attendance:      models.AttendanceConfirmed,
		AmountCents:     9000,
	}
}

func TestCreateAndGetBooking(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	date := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

	b := newTestBooking(date)
	require.NoError(t, db.CreateBooking(ctx, b))
	assert.NotZero(t, b.ID)
	assert.EqualValues(t, 1, b.Version)

	got, err := db.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.AthleteName, got.AthleteName)
	assert.Equal(t, models.PaymentReservationPaid, got.PaymentStatus)
	assert.Equal(t, "2026-03-14", got.Date.Format("2006-01-02"))
}

func TestGetBookingNotFound(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	_, err := db.GetBooking(context.Background(), 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateBookingStatusesWithVersion(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	b := newTestBooking(time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC))
	require.NoError(t, db.CreateBooking(ctx, b))

	err := db.UpdateBookingStatusesWithVersion(ctx, b.ID, b.Version,
		models.BookingCompleted, models.PaymentSessionPaid, models.AttendanceCompleted)
	require.NoError(t, err)

	got, err := db.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingCompleted, got.Status)
	assert.Equal(t, models.PaymentSessionPaid, got.PaymentStatus)
	assert.Equal(t, models.AttendanceCompleted, got.Attendance)
	assert.EqualValues(t, 2, got.Version)

	// Stale version loses
	err = db.UpdateBookingStatusesWithVersion(ctx, b.ID, b.Version,
		models.BookingCancelled, models.PaymentUnpaid, models.AttendanceCancelled)
	assert.ErrorIs(t, err, ErrConcurrentModification)
}

func TestConcurrentStatusUpdates(t *testing.T) {
	// File-backed DB: every pooled connection must see the same data
	logger := zerolog.New(zerolog.NewConsoleWriter())
	db, err := NewDB(filepath.Join(t.TempDir(), "concurrency.db"), &logger)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	b := newTestBooking(time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC))
	require.NoError(t, db.CreateBooking(ctx, b))

	const numGoroutines = 10
	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	results := make(chan error, numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			results <- db.UpdateBookingStatusesWithVersion(ctx, b.ID, 1,
				models.BookingCompleted, models.PaymentSessionPaid, models.AttendanceCompleted)
		}()
	}
	wg.Wait()
	close(results)

	var wins, losses int
	for err := range results {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, ErrConcurrentModification)
			losses++
		}
	}
	assert.Equal(t, 1, wins, "exactly one writer should win at a given version")
	assert.Equal(t, numGoroutines-1, losses)
}

func TestUpdatePaymentStatusIfCurrent(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	b := newTestBooking(time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC))
	b.PaymentStatus = models.PaymentReservationPending
	require.NoError(t, db.CreateBooking(ctx, b))

	updated, err := db.UpdatePaymentStatusIfCurrent(ctx, b.ID,
		models.PaymentReservationPending, models.PaymentReservationPaid)
	require.NoError(t, err)
	assert.True(t, updated)

	// Second swap from the same expected state is a no-op
	updated, err = db.UpdatePaymentStatusIfCurrent(ctx, b.ID,
		models.PaymentReservationPending, models.PaymentReservationFailed)
	require.NoError(t, err)
	assert.False(t, updated)

	got, err := db.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentReservationPaid, got.PaymentStatus)
}

func TestGetBookingsByBucket(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	date := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

	active := newTestBooking(date)
	require.NoError(t, db.CreateBooking(ctx, active))

	done := newTestBooking(date)
	done.Status = models.BookingCompleted
	done.Attendance = models.AttendanceCompleted
	require.NoError(t, db.CreateBooking(ctx, done))

	noShow := newTestBooking(date)
	noShow.Status = models.BookingCompleted
	noShow.Attendance = models.AttendanceNoShow
	require.NoError(t, db.CreateBooking(ctx, noShow))

	// Unpaid but still pending attendance stays active
	unpaid := newTestBooking(date)
	unpaid.PaymentStatus = models.PaymentUnpaid
	unpaid.Attendance = models.AttendancePending
	require.NoError(t, db.CreateBooking(ctx, unpaid))

	activeList, err := db.GetBookingsByBucket(ctx, false)
	require.NoError(t, err)
	assert.Len(t, activeList, 2)

	archivedList, err := db.GetBookingsByBucket(ctx, true)
	require.NoError(t, err)
	assert.Len(t, archivedList, 2)
	for _, b := range archivedList {
		assert.Contains(t,
			[]models.AttendanceStatus{models.AttendanceCompleted, models.AttendanceNoShow, models.AttendanceCancelled},
			b.Attendance)
	}
}

func TestGetBillableSessions(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()

	within := newTestBooking(time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC))
	within.Attendance = models.AttendanceCompleted
	require.NoError(t, db.CreateBooking(ctx, within))

	noShow := newTestBooking(time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC))
	noShow.Attendance = models.AttendanceNoShow
	require.NoError(t, db.CreateBooking(ctx, noShow))

	cancelled := newTestBooking(time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC))
	cancelled.Attendance = models.AttendanceCancelled
	require.NoError(t, db.CreateBooking(ctx, cancelled))

	// End date is exclusive
	boundary := newTestBooking(time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC))
	boundary.Attendance = models.AttendanceCompleted
	require.NoError(t, db.CreateBooking(ctx, boundary))

	sessions, err := db.GetBillableSessions(ctx,
		time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, within.ID, sessions[0].ID)
	assert.Equal(t, noShow.ID, sessions[1].ID)
}

func TestGetBookingsWithSession(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	date := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

	plain := newTestBooking(date)
	require.NoError(t, db.CreateBooking(ctx, plain))

	withSession := newTestBooking(date)
	withSession.StripeSessionID = "cs_test_123"
	require.NoError(t, db.CreateBooking(ctx, withSession))

	list, err := db.GetBookingsWithSession(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "cs_test_123", list[0].StripeSessionID)
}
