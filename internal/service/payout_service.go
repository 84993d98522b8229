package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"coachdesk/internal/database"
	"coachdesk/internal/domain"
	"coachdesk/internal/events"
	"coachdesk/internal/models"
)

// GenerateFailure records one session the run could not price.
type GenerateFailure struct {
	BookingID int64  `json:"booking_id"`
	AthleteID int64  `json:"athlete_id"`
	Reason    string `json:"reason"`
}

// GenerateResult is the outcome of a generate or backfill pass. Failures do
// not abort the pass; every priceable session still lands.
type GenerateResult struct {
	Run      *models.PayoutRun `json:"run"`
	Priced   int               `json:"priced"`
	Failures []GenerateFailure `json:"failures,omitempty"`
}

type PayoutService struct {
	bookings     domain.BookingStore
	rates        domain.RateStore
	runs         domain.RunStore
	eventBus     domain.EventPublisher
	sheetsWorker domain.SyncWorker
	logger       *zerolog.Logger
}

func NewPayoutService(bookings domain.BookingStore, rates domain.RateStore, runs domain.RunStore,
	eventBus domain.EventPublisher, sheetsWorker domain.SyncWorker, logger *zerolog.Logger) *PayoutService {
	return &PayoutService{
		bookings:     bookings,
		rates:        rates,
		runs:         runs,
		eventBus:     eventBus,
		sheetsWorker: sheetsWorker,
		logger:       logger,
	}
}

// Generate builds or refreshes the payout run for a period. Line items are
// keyed by (booking, athlete), so regenerating updates rows in place and the
// run never accumulates duplicates.
func (s *PayoutService) Generate(ctx context.Context, periodStart, periodEnd time.Time) (*GenerateResult, error) {
	if !periodEnd.After(periodStart) {
		return nil, models.NewValidationError("period_end", periodEnd.Format("2006-01-02"))
	}

	existing, err := s.runs.FindRunByPeriod(ctx, periodStart, periodEnd)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		return nil, err
	}
	if existing != nil && existing.Status == models.RunLocked {
		return nil, database.ErrRunLocked
	}

	run := &models.PayoutRun{PeriodStart: periodStart, PeriodEnd: periodEnd}
	if err := s.runs.UpsertRun(ctx, run); err != nil {
		return nil, err
	}

	sessions, err := s.bookings.GetBillableSessions(ctx, periodStart, periodEnd)
	if err != nil {
		return nil, err
	}

	// Regeneration must also forget sessions that stopped qualifying, e.g. an
	// attendance corrected from completed to cancelled. Keep every currently
	// qualifying booking, even ones a rate gap leaves unpriced this pass.
	keep := make([]int64, 0, len(sessions))
	for _, b := range sessions {
		keep = append(keep, b.ID)
	}
	if err := s.runs.PruneLineItems(ctx, run.ID, keep); err != nil {
		return nil, err
	}

	result := &GenerateResult{Run: run}
	for _, b := range sessions {
		rate, err := s.rates.ResolveRate(ctx, b.DurationMinutes, b.IsMember, b.Date)
		if err != nil {
			result.Failures = append(result.Failures, GenerateFailure{
				BookingID: b.ID,
				AthleteID: b.AthleteID,
				Reason:    fmt.Sprintf("no payout rate for %dmin member=%t on %s", b.DurationMinutes, b.IsMember, b.Date.Format("2006-01-02")),
			})
			continue
		}

		item := &models.PayoutLineItem{
			RunID:            run.ID,
			BookingID:        b.ID,
			AthleteID:        b.AthleteID,
			AthleteName:      b.AthleteName,
			SessionDate:      b.Date,
			DurationMinutes:  b.DurationMinutes,
			IsMember:         b.IsMember,
			RateAppliedCents: rate,
			OwedCents:        rate,
		}
		if err := s.runs.UpsertLineItem(ctx, item); err != nil {
			result.Failures = append(result.Failures, GenerateFailure{
				BookingID: b.ID, AthleteID: b.AthleteID, Reason: err.Error(),
			})
			continue
		}
		result.Priced++
	}

	if err := s.runs.RecomputeRunTotals(ctx, run.ID); err != nil {
		return nil, err
	}
	if result.Run, err = s.runs.GetRun(ctx, run.ID); err != nil {
		return nil, err
	}

	s.logger.Info().
		Int64("run_id", run.ID).
		Str("period_start", periodStart.Format("2006-01-02")).
		Str("period_end", periodEnd.Format("2006-01-02")).
		Int("priced", result.Priced).
		Int("failed", len(result.Failures)).
		Msg("payout run generated")

	s.publishRunEvent(events.EventPayoutRunGenerated, result.Run, len(result.Failures))
	s.enqueueRunSync(ctx, run.ID)

	return result, nil
}

// Backfill reprices an existing draft run after a rate correction. Only the
// applied rate and owed amount move; session facts recorded at generate time
// stay as they were.
func (s *PayoutService) Backfill(ctx context.Context, runID int64) (*GenerateResult, error) {
	run, err := s.runs.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status == models.RunLocked {
		return nil, database.ErrRunLocked
	}

	items, err := s.runs.GetLineItems(ctx, runID)
	if err != nil {
		return nil, err
	}

	result := &GenerateResult{Run: run}
	for _, item := range items {
		rate, err := s.rates.ResolveRate(ctx, item.DurationMinutes, item.IsMember, item.SessionDate)
		if err != nil {
			result.Failures = append(result.Failures, GenerateFailure{
				BookingID: item.BookingID,
				AthleteID: item.AthleteID,
				Reason:    fmt.Sprintf("no payout rate for %dmin member=%t on %s", item.DurationMinutes, item.IsMember, item.SessionDate.Format("2006-01-02")),
			})
			continue
		}
		if err := s.runs.UpdateLineItemAmounts(ctx, item.ID, rate, rate); err != nil {
			result.Failures = append(result.Failures, GenerateFailure{
				BookingID: item.BookingID, AthleteID: item.AthleteID, Reason: err.Error(),
			})
			continue
		}
		result.Priced++
	}

	if err := s.runs.RecomputeRunTotals(ctx, runID); err != nil {
		return nil, err
	}
	if result.Run, err = s.runs.GetRun(ctx, runID); err != nil {
		return nil, err
	}

	s.logger.Info().
		Int64("run_id", runID).
		Int("repriced", result.Priced).
		Int("failed", len(result.Failures)).
		Msg("payout run backfilled")

	s.enqueueRunSync(ctx, runID)
	return result, nil
}

func (s *PayoutService) Lock(ctx context.Context, runID int64) (*models.PayoutRun, error) {
	if err := s.runs.LockRun(ctx, runID); err != nil {
		return nil, err
	}
	run, err := s.runs.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	s.logger.Info().Int64("run_id", runID).Msg("payout run locked")
	s.publishRunEvent(events.EventPayoutRunLocked, run, 0)
	s.enqueueRunSync(ctx, runID)
	return run, nil
}

func (s *PayoutService) Delete(ctx context.Context, runID int64) error {
	run, err := s.runs.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if err := s.runs.DeleteRun(ctx, runID); err != nil {
		return err
	}

	s.logger.Info().Int64("run_id", runID).Msg("payout run deleted")
	s.publishRunEvent(events.EventPayoutRunDeleted, run, 0)
	return nil
}

func (s *PayoutService) GetRun(ctx context.Context, runID int64) (*models.PayoutRun, []*models.PayoutLineItem, error) {
	run, err := s.runs.GetRun(ctx, runID)
	if err != nil {
		return nil, nil, err
	}
	items, err := s.runs.GetLineItems(ctx, runID)
	if err != nil {
		return nil, nil, err
	}
	return run, items, nil
}

// FindRun resolves the run covering a period, for period-addressed operations.
func (s *PayoutService) FindRun(ctx context.Context, periodStart, periodEnd time.Time) (*models.PayoutRun, error) {
	return s.runs.FindRunByPeriod(ctx, periodStart, periodEnd)
}

func (s *PayoutService) ListRuns(ctx context.Context) ([]*models.PayoutRun, error) {
	return s.runs.GetRuns(ctx)
}

func (s *PayoutService) ListLineItems(ctx context.Context, filter models.PayoutFilter) ([]*models.PayoutLineItem, error) {
	return s.runs.QueryLineItems(ctx, filter)
}

func (s *PayoutService) Summarize(ctx context.Context, filter models.PayoutFilter) (*models.PayoutSummary, error) {
	return s.runs.SummarizeLineItems(ctx, filter)
}

func (s *PayoutService) publishRunEvent(eventType string, run *models.PayoutRun, failed int) {
	if s.eventBus == nil {
		return
	}
	err := s.eventBus.PublishJSON(eventType, events.PayoutRunPayload{
		RunID:          run.ID,
		PeriodStart:    run.PeriodStart,
		PeriodEnd:      run.PeriodEnd,
		Status:         string(run.Status),
		TotalSessions:  run.TotalSessions,
		TotalOwedCents: run.TotalOwedCents,
		Failed:         failed,
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("event", eventType).Msg("failed to publish payout run event")
	}
}

func (s *PayoutService) enqueueRunSync(ctx context.Context, runID int64) {
	if s.sheetsWorker == nil {
		return
	}
	if err := s.sheetsWorker.EnqueuePayoutRunSync(ctx, runID); err != nil {
		s.logger.Warn().Err(err).Int64("run_id", runID).Msg("failed to enqueue payout run sync")
	}
}
