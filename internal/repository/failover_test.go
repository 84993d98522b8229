package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockSyncState struct {
	mock.Mock
}

func (m *mockSyncState) GetLastPaymentSync(ctx context.Context) (time.Time, error) {
	args := m.Called(ctx)
	return args.Get(0).(time.Time), args.Error(1)
}
func (m *mockSyncState) SetLastPaymentSync(ctx context.Context, at time.Time) error {
	return m.Called(ctx, at).Error(0)
}
func (m *mockSyncState) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	args := m.Called(ctx, key, limit, window)
	return args.Bool(0), args.Error(1)
}

func TestFailoverUsesPrimaryWhenHealthy(t *testing.T) {
	primary := &mockSyncState{}
	fallback := &mockSyncState{}
	logger := zerolog.Nop()
	repo := NewFailoverSyncStateRepository(primary, fallback, &logger)

	at := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	primary.On("GetLastPaymentSync", mock.Anything).Return(at, nil)

	got, err := repo.GetLastPaymentSync(context.Background())
	require.NoError(t, err)
	assert.True(t, got.Equal(at))
	fallback.AssertNotCalled(t, "GetLastPaymentSync", mock.Anything)
}

func TestFailoverFallsBackOnError(t *testing.T) {
	primary := &mockSyncState{}
	fallback := &mockSyncState{}
	logger := zerolog.Nop()
	repo := NewFailoverSyncStateRepository(primary, fallback, &logger)

	ctx := context.Background()
	primary.On("SetLastPaymentSync", mock.Anything, mock.Anything).Return(errors.New("connection refused"))
	fallback.On("SetLastPaymentSync", mock.Anything, mock.Anything).Return(nil)

	require.NoError(t, repo.SetLastPaymentSync(ctx, time.Now()))
	fallback.AssertCalled(t, "SetLastPaymentSync", mock.Anything, mock.Anything)

	// Primary stays skipped while marked down
	fallback.On("CheckRateLimit", mock.Anything, "k", 5, time.Minute).Return(true, nil)
	allowed, err := repo.CheckRateLimit(ctx, "k", 5, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed)
	primary.AssertNotCalled(t, "CheckRateLimit", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestFailoverRecoversAfterCooldown(t *testing.T) {
	primary := &mockSyncState{}
	fallback := &mockSyncState{}
	logger := zerolog.Nop()
	repo := NewFailoverSyncStateRepository(primary, fallback, &logger)

	ctx := context.Background()
	primary.On("GetLastPaymentSync", mock.Anything).Return(time.Time{}, errors.New("down")).Once()
	fallback.On("GetLastPaymentSync", mock.Anything).Return(time.Time{}, nil)

	_, err := repo.GetLastPaymentSync(ctx)
	require.NoError(t, err)

	// Age the failure past the cooldown; the next call probes the primary
	repo.lastCheck.Store(time.Now().Add(-2 * time.Minute).UnixNano())
	at := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	primary.On("GetLastPaymentSync", mock.Anything).Return(at, nil)

	got, err := repo.GetLastPaymentSync(ctx)
	require.NoError(t, err)
	assert.True(t, got.Equal(at))
	assert.False(t, repo.isDown.Load())
}

func TestMemorySyncStateRepository(t *testing.T) {
	repo := NewMemorySyncStateRepository()
	ctx := context.Background()

	got, err := repo.GetLastPaymentSync(ctx)
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	at := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	require.NoError(t, repo.SetLastPaymentSync(ctx, at))
	got, err = repo.GetLastPaymentSync(ctx)
	require.NoError(t, err)
	assert.True(t, got.Equal(at))

	for i := 0; i < 2; i++ {
		allowed, err := repo.CheckRateLimit(ctx, "k", 2, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed)
	}
	allowed, err := repo.CheckRateLimit(ctx, "k", 2, time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed)
}
