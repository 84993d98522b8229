package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	"coachdesk/internal/domain"
	"coachdesk/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}
func (m *mockStore) CreateBooking(ctx context.Context, b *models.Booking) error {
	return m.Called(ctx, b).Error(0)
}
func (m *mockStore) UpdateBookingStatusesWithVersion(ctx context.Context, id, version int64,
	s models.BookingStatus, p models.PaymentStatus, a models.AttendanceStatus) error {
	return m.Called(ctx, id, version, s, p, a).Error(0)
}
func (m *mockStore) UpdatePaymentStatusIfCurrent(ctx context.Context, id int64,
	from, to models.PaymentStatus) (bool, error) {
	args := m.Called(ctx, id, from, to)
	return args.Bool(0), args.Error(1)
}
func (m *mockStore) GetBookingsWithSession(ctx context.Context) ([]*models.Booking, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Booking), args.Error(1)
}
func (m *mockStore) GetBookingsByDateRange(ctx context.Context, s, e time.Time) ([]*models.Booking, error) {
	args := m.Called(ctx, s, e)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Booking), args.Error(1)
}
func (m *mockStore) GetBookingsByBucket(ctx context.Context, archived bool) ([]*models.Booking, error) {
	args := m.Called(ctx, archived)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Booking), args.Error(1)
}
func (m *mockStore) GetBillableSessions(ctx context.Context, s, e time.Time) ([]*models.Booking, error) {
	args := m.Called(ctx, s, e)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Booking), args.Error(1)
}

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) RetrieveSession(ctx context.Context, sessionID string) (*domain.PaymentSession, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PaymentSession), args.Error(1)
}

func newTestReconciler(store *mockStore, provider *mockProvider) *Reconciler {
	logger := zerolog.Nop()
	return NewReconciler(store, provider, time.Second, 2, &logger)
}

func sessionBooking(id int64, payment models.PaymentStatus) *models.Booking {
	return &models.Booking{
		ID:              id,
		StripeSessionID: "cs_test_1",
		PaymentStatus:   payment,
	}
}

func TestSyncBatchCompletedSession(t *testing.T) {
	store := &mockStore{}
	provider := &mockProvider{}

	booking := sessionBooking(1, models.PaymentReservationPending)
	store.On("GetBookingsWithSession", mock.Anything).Return([]*models.Booking{booking}, nil)
	provider.On("RetrieveSession", mock.Anything, "cs_test_1").
		Return(&domain.PaymentSession{ID: "cs_test_1", Status: "complete", PaymentStatus: "paid"}, nil)
	store.On("UpdatePaymentStatusIfCurrent", mock.Anything, int64(1),
		models.PaymentReservationPending, models.PaymentReservationPaid).Return(true, nil)

	result, err := newTestReconciler(store, provider).SyncBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, 0, result.Skipped)
	assert.Empty(t, result.Failures)
	store.AssertExpectations(t)
}

func TestSyncBatchNeverProducesSessionPaid(t *testing.T) {
	store := &mockStore{}
	provider := &mockProvider{}

	booking := sessionBooking(1, models.PaymentUnpaid)
	store.On("GetBookingsWithSession", mock.Anything).Return([]*models.Booking{booking}, nil)
	provider.On("RetrieveSession", mock.Anything, "cs_test_1").
		Return(&domain.PaymentSession{ID: "cs_test_1", Status: "complete", PaymentStatus: "paid"}, nil)
	store.On("UpdatePaymentStatusIfCurrent", mock.Anything, int64(1),
		models.PaymentUnpaid, models.PaymentReservationPaid).Return(true, nil)

	_, err := newTestReconciler(store, provider).SyncBatch(context.Background())
	require.NoError(t, err)

	// Checkout success proves the reservation only
	store.AssertNotCalled(t, "UpdatePaymentStatusIfCurrent", mock.Anything, int64(1),
		mock.Anything, models.PaymentSessionPaid)
}

func TestSyncBatchExpiredSession(t *testing.T) {
	store := &mockStore{}
	provider := &mockProvider{}

	booking := sessionBooking(2, models.PaymentReservationPending)
	store.On("GetBookingsWithSession", mock.Anything).Return([]*models.Booking{booking}, nil)
	provider.On("RetrieveSession", mock.Anything, "cs_test_1").
		Return(&domain.PaymentSession{ID: "cs_test_1", Status: "expired", PaymentStatus: "unpaid"}, nil)
	store.On("UpdatePaymentStatusIfCurrent", mock.Anything, int64(2),
		models.PaymentReservationPending, models.PaymentReservationFailed).Return(true, nil)

	result, err := newTestReconciler(store, provider).SyncBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Updated)
}

func TestSyncBatchSkipsSettled(t *testing.T) {
	store := &mockStore{}
	provider := &mockProvider{}

	store.On("GetBookingsWithSession", mock.Anything).Return([]*models.Booking{
		sessionBooking(1, models.PaymentSessionPaid),
		sessionBooking(2, models.PaymentSessionRefunded),
	}, nil)

	result, err := newTestReconciler(store, provider).SyncBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Skipped)
	provider.AssertNotCalled(t, "RetrieveSession", mock.Anything, mock.Anything)
}

func TestSyncBatchSkipsCompletedAttendance(t *testing.T) {
	store := &mockStore{}
	provider := &mockProvider{}

	// Lesson already happened; the payment dimension is frozen even though the
	// checkout was still transient when the lesson was marked complete.
	booking := sessionBooking(1, models.PaymentReservationPending)
	booking.Attendance = models.AttendanceCompleted
	store.On("GetBookingsWithSession", mock.Anything).Return([]*models.Booking{booking}, nil)

	result, err := newTestReconciler(store, provider).SyncBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Updated)
	assert.Equal(t, 1, result.Skipped)
	provider.AssertNotCalled(t, "RetrieveSession", mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "UpdatePaymentStatusIfCurrent",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSyncBatchSkipsOpenSession(t *testing.T) {
	store := &mockStore{}
	provider := &mockProvider{}

	booking := sessionBooking(1, models.PaymentReservationPending)
	store.On("GetBookingsWithSession", mock.Anything).Return([]*models.Booking{booking}, nil)
	provider.On("RetrieveSession", mock.Anything, "cs_test_1").
		Return(&domain.PaymentSession{ID: "cs_test_1", Status: "open", PaymentStatus: "unpaid"}, nil)

	result, err := newTestReconciler(store, provider).SyncBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)
	store.AssertNotCalled(t, "UpdatePaymentStatusIfCurrent",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSyncBatchNeverDowngrades(t *testing.T) {
	store := &mockStore{}
	provider := &mockProvider{}

	// Already paid; a late expiry report must not regress it
	booking := sessionBooking(1, models.PaymentReservationPaid)
	store.On("GetBookingsWithSession", mock.Anything).Return([]*models.Booking{booking}, nil)
	provider.On("RetrieveSession", mock.Anything, "cs_test_1").
		Return(&domain.PaymentSession{ID: "cs_test_1", Status: "expired", PaymentStatus: "unpaid"}, nil)

	result, err := newTestReconciler(store, provider).SyncBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)
	store.AssertNotCalled(t, "UpdatePaymentStatusIfCurrent",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSyncBatchPartialFailure(t *testing.T) {
	store := &mockStore{}
	provider := &mockProvider{}

	good := sessionBooking(1, models.PaymentReservationPending)
	bad := &models.Booking{ID: 2, StripeSessionID: "cs_test_bad", PaymentStatus: models.PaymentReservationPending}
	store.On("GetBookingsWithSession", mock.Anything).Return([]*models.Booking{good, bad}, nil)

	provider.On("RetrieveSession", mock.Anything, "cs_test_1").
		Return(&domain.PaymentSession{ID: "cs_test_1", Status: "complete", PaymentStatus: "paid"}, nil)
	provider.On("RetrieveSession", mock.Anything, "cs_test_bad").
		Return(nil, errors.New("stripe: rate limited"))
	store.On("UpdatePaymentStatusIfCurrent", mock.Anything, int64(1),
		models.PaymentReservationPending, models.PaymentReservationPaid).Return(true, nil)

	result, err := newTestReconciler(store, provider).SyncBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Updated)
	require.Len(t, result.Failures, 1)
	assert.EqualValues(t, 2, result.Failures[0].BookingID)
	assert.Contains(t, result.Failures[0].Reason, "rate limited")

	// Lookup was retried before giving up
	provider.AssertNumberOfCalls(t, "RetrieveSession", 3)
}

func TestSyncBatchConcurrentSwapLost(t *testing.T) {
	store := &mockStore{}
	provider := &mockProvider{}

	booking := sessionBooking(1, models.PaymentReservationPending)
	store.On("GetBookingsWithSession", mock.Anything).Return([]*models.Booking{booking}, nil)
	provider.On("RetrieveSession", mock.Anything, "cs_test_1").
		Return(&domain.PaymentSession{ID: "cs_test_1", Status: "complete", PaymentStatus: "paid"}, nil)
	store.On("UpdatePaymentStatusIfCurrent", mock.Anything, int64(1),
		models.PaymentReservationPending, models.PaymentReservationPaid).Return(false, nil)

	result, err := newTestReconciler(store, provider).SyncBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Updated)
	assert.Equal(t, 1, result.Skipped)
	assert.Empty(t, result.Failures)
}
