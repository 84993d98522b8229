package repository

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"coachdesk/internal/domain"
)

// FailoverSyncStateRepository prefers the primary store and degrades to the
// fallback when it errors, probing the primary again after a minute.
type FailoverSyncStateRepository struct {
	primary   domain.SyncStateRepository
	fallback  domain.SyncStateRepository
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
}

func NewFailoverSyncStateRepository(primary, fallback domain.SyncStateRepository, logger *zerolog.Logger) *FailoverSyncStateRepository {
	return &FailoverSyncStateRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverSyncStateRepository) markDown(err error) {
	r.logger.Error().Err(err).Msg("Primary sync state repository failed, falling back to memory")
	r.isDown.Store(true)
	r.lastCheck.Store(time.Now().UnixNano())
}

func (r *FailoverSyncStateRepository) shouldRetryPrimary() bool {
	return time.Since(time.Unix(0, r.lastCheck.Load())) > time.Minute
}

func (r *FailoverSyncStateRepository) GetLastPaymentSync(ctx context.Context) (time.Time, error) {
	if !r.isDown.Load() || r.shouldRetryPrimary() {
		at, err := r.primary.GetLastPaymentSync(ctx)
		if err == nil {
			r.isDown.Store(false)
			return at, nil
		}
		r.markDown(err)
	}
	return r.fallback.GetLastPaymentSync(ctx)
}

func (r *FailoverSyncStateRepository) SetLastPaymentSync(ctx context.Context, at time.Time) error {
	if !r.isDown.Load() || r.shouldRetryPrimary() {
		err := r.primary.SetLastPaymentSync(ctx, at)
		if err == nil {
			r.isDown.Store(false)
			return nil
		}
		r.markDown(err)
	}
	return r.fallback.SetLastPaymentSync(ctx, at)
}

func (r *FailoverSyncStateRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if !r.isDown.Load() || r.shouldRetryPrimary() {
		allowed, err := r.primary.CheckRateLimit(ctx, key, limit, window)
		if err == nil {
			r.isDown.Store(false)
			return allowed, nil
		}
		r.markDown(err)
	}
	return r.fallback.CheckRateLimit(ctx, key, limit, window)
}
