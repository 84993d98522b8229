package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"coachdesk/internal/domain"
	"coachdesk/internal/models"
	"coachdesk/internal/status"
)

// Failure records one booking the sync batch could not reconcile.
type Failure struct {
	BookingID int64  `json:"booking_id"`
	Reason    string `json:"reason"`
}

// Result summarizes a sync batch. A batch with failures is still a batch that
// ran: completed lookups keep their outcome.
type Result struct {
	Updated  int       `json:"updated"`
	Skipped  int       `json:"skipped"`
	Failures []Failure `json:"failures,omitempty"`
}

// Reconciler pulls checkout session state from the payment provider and folds
// it into booking payment statuses.
type Reconciler struct {
	store       domain.BookingStore
	provider    domain.SessionProvider
	logger      *zerolog.Logger
	callTimeout time.Duration
	maxAttempts int
}

func NewReconciler(store domain.BookingStore, provider domain.SessionProvider,
	callTimeout time.Duration, maxAttempts int, logger *zerolog.Logger) *Reconciler {
	if callTimeout <= 0 {
		callTimeout = 10 * time.Second
	}
	if maxAttempts <= 0 {
		maxAttempts = 2
	}
	return &Reconciler{
		store:       store,
		provider:    provider,
		logger:      logger,
		callTimeout: callTimeout,
		maxAttempts: maxAttempts,
	}
}

// SyncBatch reconciles every booking that carries a checkout session. Settled
// bookings are skipped without a provider lookup, so repeated syncs converge
// and stay cheap.
func (r *Reconciler) SyncBatch(ctx context.Context) (*Result, error) {
	bookings, err := r.store.GetBookingsWithSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load bookings for payment sync: %w", err)
	}

	result := &Result{}
	for _, booking := range bookings {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		r.syncOne(ctx, booking, result)
	}

	r.logger.Info().
		Int("updated", result.Updated).
		Int("skipped", result.Skipped).
		Int("failed", len(result.Failures)).
		Msg("payment sync batch finished")
	return result, nil
}

func (r *Reconciler) syncOne(ctx context.Context, booking *models.Booking, result *Result) {
	// A completed lesson is settled regardless of where its payment stands;
	// the provider never overwrites a booking after the lesson happened.
	if booking.Attendance == models.AttendanceCompleted || status.PaymentSettled(booking.PaymentStatus) {
		result.Skipped++
		return
	}

	session, err := r.retrieveWithRetry(ctx, booking.StripeSessionID)
	if err != nil {
		r.logger.Warn().Err(err).
			Int64("booking_id", booking.ID).
			Str("session_id", booking.StripeSessionID).
			Msg("payment sync lookup failed")
		result.Failures = append(result.Failures, Failure{
			BookingID: booking.ID,
			Reason:    err.Error(),
		})
		return
	}

	target, ok := targetPaymentStatus(session)
	if !ok {
		result.Skipped++
		return
	}

	if !status.CanUpgradePayment(booking.PaymentStatus, target) {
		result.Skipped++
		return
	}

	updated, err := r.store.UpdatePaymentStatusIfCurrent(ctx, booking.ID, booking.PaymentStatus, target)
	if err != nil {
		result.Failures = append(result.Failures, Failure{
			BookingID: booking.ID,
			Reason:    err.Error(),
		})
		return
	}
	if !updated {
		// A concurrent sync already moved this booking
		result.Skipped++
		return
	}

	r.logger.Info().
		Int64("booking_id", booking.ID).
		Str("from", string(booking.PaymentStatus)).
		Str("to", string(target)).
		Msg("payment status reconciled")
	result.Updated++
}

// targetPaymentStatus maps provider session state onto the payment lattice. A
// completed checkout proves the reservation payment only, never the session
// fee, so the target is reservation-paid.
func targetPaymentStatus(session *domain.PaymentSession) (models.PaymentStatus, bool) {
	switch {
	case session.Status == "complete" || session.PaymentStatus == "paid":
		return models.PaymentReservationPaid, true
	case session.Status == "expired":
		return models.PaymentReservationFailed, true
	case session.PaymentStatus == "failed":
		return models.PaymentReservationFailed, true
	default:
		// Still open or unpaid: nothing to record yet
		return "", false
	}
}

func (r *Reconciler) retrieveWithRetry(ctx context.Context, sessionID string) (*domain.PaymentSession, error) {
	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
		session, err := r.provider.RetrieveSession(callCtx, sessionID)
		cancel()
		if err == nil {
			return session, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}
