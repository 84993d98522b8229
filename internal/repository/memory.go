package repository

import (
	"context"
	"sync"
	"time"
)

// MemorySyncStateRepository is the in-process fallback used when Redis is
// unavailable. State is lost on restart, which is acceptable for sync
// bookkeeping: the next batch simply starts from zero.
type MemorySyncStateRepository struct {
	mu         sync.RWMutex
	lastSync   time.Time
	rateLimits sync.Map
}

func NewMemorySyncStateRepository() *MemorySyncStateRepository {
	return &MemorySyncStateRepository{}
}

func (r *MemorySyncStateRepository) GetLastPaymentSync(ctx context.Context) (time.Time, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastSync, nil
}

func (r *MemorySyncStateRepository) SetLastPaymentSync(ctx context.Context, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastSync = at
	return nil
}

type rateLimitEntry struct {
	mu        sync.Mutex
	count     int
	expiresAt time.Time
}

func (r *MemorySyncStateRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := time.Now()
	val, _ := r.rateLimits.LoadOrStore(key, &rateLimitEntry{})
	entry := val.(*rateLimitEntry)

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if now.After(entry.expiresAt) {
		entry.count = 1
		entry.expiresAt = now.Add(window)
	} else {
		entry.count++
	}

	return entry.count <= limit, nil
}
