package service

import (
	"context"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"coachdesk/internal/domain"
	"coachdesk/internal/models"
)

type RateService struct {
	rates  domain.RateStore
	logger *zerolog.Logger
}

func NewRateService(rates domain.RateStore, logger *zerolog.Logger) *RateService {
	return &RateService{rates: rates, logger: logger}
}

// CreateRate activates a new rate version. The store retires any open rate for
// the same (duration, membership) key in the same transaction.
func (s *RateService) CreateRate(ctx context.Context, rate *models.PayoutRate) error {
	if rate.DurationMinutes <= 0 {
		return models.NewValidationError("duration_minutes", strconv.Itoa(rate.DurationMinutes))
	}
	if rate.RateCents <= 0 {
		return models.NewValidationError("rate_cents", strconv.FormatInt(rate.RateCents, 10))
	}

	if err := s.rates.CreateRate(ctx, rate); err != nil {
		return err
	}

	s.logger.Info().
		Int("duration_minutes", rate.DurationMinutes).
		Bool("is_member", rate.IsMember).
		Int64("rate_cents", rate.RateCents).
		Time("effective_from", rate.EffectiveFrom).
		Msg("payout rate created")
	return nil
}

// RetireRate closes a rate without a successor, leaving the key unpriced from
// that instant on.
func (s *RateService) RetireRate(ctx context.Context, id int64, at time.Time) error {
	if at.IsZero() {
		at = time.Now()
	}
	if err := s.rates.RetireRate(ctx, id, at); err != nil {
		return err
	}

	s.logger.Info().Int64("rate_id", id).Time("effective_to", at).Msg("payout rate retired")
	return nil
}

func (s *RateService) ListRates(ctx context.Context) ([]*models.PayoutRate, error) {
	return s.rates.GetRates(ctx)
}

func (s *RateService) ResolveRate(ctx context.Context, durationMinutes int, isMember bool, at time.Time) (int64, error) {
	return s.rates.ResolveRate(ctx, durationMinutes, isMember, at)
}
