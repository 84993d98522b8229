package domain

import (
	"context"
	"time"

	"coachdesk/internal/models"
)

type BookingStore interface {
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	CreateBooking(ctx context.Context, booking *models.Booking) error
	UpdateBookingStatusesWithVersion(ctx context.Context, id, version int64,
		status models.BookingStatus, payment models.PaymentStatus, attendance models.AttendanceStatus) error
	UpdatePaymentStatusIfCurrent(ctx context.Context, id int64,
		from, to models.PaymentStatus) (bool, error)
	GetBookingsWithSession(ctx context.Context) ([]*models.Booking, error)
	GetBookingsByDateRange(ctx context.Context, start, end time.Time) ([]*models.Booking, error)
	GetBookingsByBucket(ctx context.Context, archived bool) ([]*models.Booking, error)
	GetBillableSessions(ctx context.Context, start, end time.Time) ([]*models.Booking, error)
}

type RateStore interface {
	CreateRate(ctx context.Context, rate *models.PayoutRate) error
	RetireRate(ctx context.Context, id int64, at time.Time) error
	ResolveRate(ctx context.Context, durationMinutes int, isMember bool, at time.Time) (int64, error)
	GetRates(ctx context.Context) ([]*models.PayoutRate, error)
}

type RunStore interface {
	GetRun(ctx context.Context, id int64) (*models.PayoutRun, error)
	FindRunByPeriod(ctx context.Context, start, end time.Time) (*models.PayoutRun, error)
	UpsertRun(ctx context.Context, run *models.PayoutRun) error
	UpsertLineItem(ctx context.Context, item *models.PayoutLineItem) error
	PruneLineItems(ctx context.Context, runID int64, keepBookingIDs []int64) error
	UpdateLineItemAmounts(ctx context.Context, id, rateCents, owedCents int64) error
	GetLineItems(ctx context.Context, runID int64) ([]*models.PayoutLineItem, error)
	RecomputeRunTotals(ctx context.Context, runID int64) error
	LockRun(ctx context.Context, id int64) error
	DeleteRun(ctx context.Context, id int64) error
	GetRuns(ctx context.Context) ([]*models.PayoutRun, error)
	QueryLineItems(ctx context.Context, filter models.PayoutFilter) ([]*models.PayoutLineItem, error)
	SummarizeLineItems(ctx context.Context, filter models.PayoutFilter) (*models.PayoutSummary, error)
}

// SessionProvider is the external payment-session lookup consumed read-only by
// the reconciler.
type SessionProvider interface {
	RetrieveSession(ctx context.Context, sessionID string) (*PaymentSession, error)
}

// PaymentSession is the provider-side view of a checkout session.
type PaymentSession struct {
	ID            string
	Status        string // open, complete, expired
	PaymentStatus string // unpaid, paid, no_payment_required, failed
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type SyncWorker interface {
	EnqueueBookingUpsert(ctx context.Context, booking *models.Booking) error
	EnqueueStatusUpdate(ctx context.Context, booking *models.Booking) error
	EnqueuePayoutRunSync(ctx context.Context, runID int64) error
}

type SheetsWriter interface {
	UpsertBookingRow(ctx context.Context, booking *models.Booking) error
	UpdateBookingStatuses(ctx context.Context, booking *models.Booking) error
	ReplacePayoutRunSheet(ctx context.Context, run *models.PayoutRun, items []*models.PayoutLineItem) error
}

// SyncStateRepository keeps reconciliation bookkeeping and per-key API rate
// limit counters in redis, with an in-memory fallback behind it.
type SyncStateRepository interface {
	GetLastPaymentSync(ctx context.Context) (time.Time, error)
	SetLastPaymentSync(ctx context.Context, at time.Time) error
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
