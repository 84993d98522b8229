package service

import (
	"context"
	"testing"
	"time"

	"coachdesk/internal/database"
	"coachdesk/internal/events"
	"coachdesk/internal/models"
	"coachdesk/internal/status"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockBookingStore struct {
	mock.Mock
}

func (m *mockBookingStore) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}
func (m *mockBookingStore) CreateBooking(ctx context.Context, b *models.Booking) error {
	return m.Called(ctx, b).Error(0)
}
func (m *mockBookingStore) UpdateBookingStatusesWithVersion(ctx context.Context, id, version int64,
	s models.BookingStatus, p models.PaymentStatus, a models.AttendanceStatus) error {
	return m.Called(ctx, id, version, s, p, a).Error(0)
}
func (m *mockBookingStore) UpdatePaymentStatusIfCurrent(ctx context.Context, id int64,
	from, to models.PaymentStatus) (bool, error) {
	args := m.Called(ctx, id, from, to)
	return args.Bool(0), args.Error(1)
}
func (m *mockBookingStore) GetBookingsWithSession(ctx context.Context) ([]*models.Booking, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Booking), args.Error(1)
}
func (m *mockBookingStore) GetBookingsByDateRange(ctx context.Context, s, e time.Time) ([]*models.Booking, error) {
	args := m.Called(ctx, s, e)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Booking), args.Error(1)
}
func (m *mockBookingStore) GetBookingsByBucket(ctx context.Context, archived bool) ([]*models.Booking, error) {
	args := m.Called(ctx, archived)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Booking), args.Error(1)
}
func (m *mockBookingStore) GetBillableSessions(ctx context.Context, s, e time.Time) ([]*models.Booking, error) {
	args := m.Called(ctx, s, e)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Booking), args.Error(1)
}

type mockSyncWorker struct {
	mock.Mock
}

func (m *mockSyncWorker) EnqueueBookingUpsert(ctx context.Context, b *models.Booking) error {
	return m.Called(ctx, b).Error(0)
}
func (m *mockSyncWorker) EnqueueStatusUpdate(ctx context.Context, b *models.Booking) error {
	return m.Called(ctx, b).Error(0)
}
func (m *mockSyncWorker) EnqueuePayoutRunSync(ctx context.Context, runID int64) error {
	return m.Called(ctx, runID).Error(0)
}

func storedBooking() *models.Booking {
	return &models.Booking{
		ID:            1,
		AthleteID:     101,
		AthleteName:   "Sasha Petrov",
		Date:          time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
		Status:        models.BookingConfirmed,
		PaymentStatus: models.PaymentReservationPaid,
		Attendance:    models.AttendanceConfirmed,
		Version:       3,
	}
}

func TestUpdateBookingStatusCascadePersistedTogether(t *testing.T) {
	store := &mockBookingStore{}
	logger := zerolog.Nop()
	svc := NewBookingService(store, events.NewEventBus(), nil, &logger)

	before := storedBooking()
	after := storedBooking()
	after.Status = models.BookingCompleted
	after.PaymentStatus = models.PaymentSessionPaid
	after.Attendance = models.AttendanceCompleted
	after.Version = 4

	store.On("GetBooking", mock.Anything, int64(1)).Return(before, nil).Once()
	store.On("UpdateBookingStatusesWithVersion", mock.Anything, int64(1), int64(3),
		models.BookingCompleted, models.PaymentSessionPaid, models.AttendanceCompleted).Return(nil)
	store.On("GetBooking", mock.Anything, int64(1)).Return(after, nil)

	result, err := svc.UpdateBookingStatus(context.Background(), 1, status.FieldAttendance, "completed")
	require.NoError(t, err)
	assert.Equal(t, models.BookingCompleted, result.Booking.Status)
	assert.Equal(t, models.PaymentSessionPaid, result.Booking.PaymentStatus)
	store.AssertExpectations(t)
}

func TestUpdateBookingStatusRejectsUnknownValue(t *testing.T) {
	store := &mockBookingStore{}
	logger := zerolog.Nop()
	svc := NewBookingService(store, nil, nil, &logger)

	store.On("GetBooking", mock.Anything, int64(1)).Return(storedBooking(), nil)

	_, err := svc.UpdateBookingStatus(context.Background(), 1, status.FieldAttendance, "vanished")
	var vErr *models.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "attendance_status", vErr.Field)
	store.AssertNotCalled(t, "UpdateBookingStatusesWithVersion",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestUpdateBookingStatusConcurrentConflict(t *testing.T) {
	store := &mockBookingStore{}
	logger := zerolog.Nop()
	svc := NewBookingService(store, nil, nil, &logger)

	store.On("GetBooking", mock.Anything, int64(1)).Return(storedBooking(), nil)
	store.On("UpdateBookingStatusesWithVersion", mock.Anything, int64(1), int64(3),
		mock.Anything, mock.Anything, mock.Anything).Return(database.ErrConcurrentModification)

	_, err := svc.UpdateBookingStatus(context.Background(), 1, status.FieldBooking, "cancelled")
	assert.ErrorIs(t, err, database.ErrConcurrentModification)
}

func TestUpdateBookingStatusEnqueuesSheetSync(t *testing.T) {
	store := &mockBookingStore{}
	worker := &mockSyncWorker{}
	logger := zerolog.Nop()
	svc := NewBookingService(store, nil, worker, &logger)

	before := storedBooking()
	store.On("GetBooking", mock.Anything, int64(1)).Return(before, nil)
	store.On("UpdateBookingStatusesWithVersion", mock.Anything, int64(1), int64(3),
		mock.Anything, mock.Anything, mock.Anything).Return(nil)
	worker.On("EnqueueStatusUpdate", mock.Anything, mock.Anything).Return(nil)

	_, err := svc.UpdateBookingStatus(context.Background(), 1, status.FieldAttendance, "no-show")
	require.NoError(t, err)
	worker.AssertCalled(t, "EnqueueStatusUpdate", mock.Anything, mock.Anything)
}

func TestCreateBookingDefaultsAndValidates(t *testing.T) {
	store := &mockBookingStore{}
	logger := zerolog.Nop()
	svc := NewBookingService(store, nil, nil, &logger)

	store.On("CreateBooking", mock.Anything, mock.Anything).Return(nil)

	b := &models.Booking{AthleteID: 101, AthleteName: "Sasha Petrov",
		Date: time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC), DurationMinutes: 60}
	require.NoError(t, svc.CreateBooking(context.Background(), b))
	assert.Equal(t, models.BookingPending, b.Status)
	assert.Equal(t, models.PaymentUnpaid, b.PaymentStatus)
	assert.Equal(t, models.AttendancePending, b.Attendance)

	bad := &models.Booking{Status: models.BookingCompleted, PaymentStatus: models.PaymentUnpaid,
		Attendance: models.AttendancePending}
	err := svc.CreateBooking(context.Background(), bad)
	var cErr *models.ConsistencyError
	assert.ErrorAs(t, err, &cErr)
}
