package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"coachdesk/internal/domain"
	"coachdesk/internal/events"
	"coachdesk/internal/models"
	"coachdesk/internal/status"
)

// StatusUpdateResult is what a status edit returns to the caller: the booking
// as persisted plus any consistency warnings the edit surfaced.
type StatusUpdateResult struct {
	Booking  *models.Booking `json:"booking"`
	Warnings []string        `json:"warnings,omitempty"`
}

type BookingService struct {
	store        domain.BookingStore
	eventBus     domain.EventPublisher
	sheetsWorker domain.SyncWorker
	logger       *zerolog.Logger
}

func NewBookingService(store domain.BookingStore, eventBus domain.EventPublisher,
	sheetsWorker domain.SyncWorker, logger *zerolog.Logger) *BookingService {
	return &BookingService{
		store:        store,
		eventBus:     eventBus,
		sheetsWorker: sheetsWorker,
		logger:       logger,
	}
}

func (s *BookingService) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	return s.store.GetBooking(ctx, id)
}

func (s *BookingService) CreateBooking(ctx context.Context, booking *models.Booking) error {
	if booking.Status == "" {
		booking.Status = models.BookingPending
	}
	if booking.PaymentStatus == "" {
		booking.PaymentStatus = models.PaymentUnpaid
	}
	if booking.Attendance == "" {
		booking.Attendance = models.AttendancePending
	}

	if result := status.Validate(status.StateOf(booking)); !result.Valid {
		return &models.ConsistencyError{Problems: result.Errors}
	}

	if err := s.store.CreateBooking(ctx, booking); err != nil {
		return err
	}

	if s.sheetsWorker != nil {
		if err := s.sheetsWorker.EnqueueBookingUpsert(ctx, booking); err != nil {
			s.logger.Warn().Err(err).Int64("booking_id", booking.ID).Msg("failed to enqueue sheet upsert")
		}
	}
	return nil
}

// UpdateBookingStatus applies one status edit: the cascade runs over the full
// tri-status state and the resulting triple is persisted in a single
// version-guarded write.
func (s *BookingService) UpdateBookingStatus(ctx context.Context, id int64, field status.Field, value string) (*StatusUpdateResult, error) {
	booking, err := s.store.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}

	next, err := status.Synchronize(status.StateOf(booking), field, value)
	if err != nil {
		return nil, err
	}

	result := status.Validate(next)
	if !result.Valid {
		// The cascade always lands on a consistent state; reaching this
		// means the stored row was already broken.
		return nil, &models.ConsistencyError{Problems: result.Errors}
	}

	err = s.store.UpdateBookingStatusesWithVersion(ctx, booking.ID, booking.Version,
		next.Booking, next.Payment, next.Attendance)
	if err != nil {
		return nil, err
	}

	updated, err := s.store.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Int64("booking_id", id).
		Str("field", string(field)).
		Str("value", value).
		Str("status", string(updated.Status)).
		Str("payment_status", string(updated.PaymentStatus)).
		Str("attendance_status", string(updated.Attendance)).
		Msg("booking statuses updated")

	s.publishStatusEvent(updated, field, value, result.Warnings)

	if s.sheetsWorker != nil {
		if err := s.sheetsWorker.EnqueueStatusUpdate(ctx, updated); err != nil {
			s.logger.Warn().Err(err).Int64("booking_id", id).Msg("failed to enqueue status sync")
		}
	}

	return &StatusUpdateResult{Booking: updated, Warnings: result.Warnings}, nil
}

// ListBookings returns the active or archived bucket. The bucket follows
// attendance alone, so payment state never strands a finished booking.
func (s *BookingService) ListBookings(ctx context.Context, archived bool) ([]*models.Booking, error) {
	return s.store.GetBookingsByBucket(ctx, archived)
}

func (s *BookingService) ListBookingsByDateRange(ctx context.Context, start, end time.Time) ([]*models.Booking, error) {
	return s.store.GetBookingsByDateRange(ctx, start, end)
}

func (s *BookingService) publishStatusEvent(b *models.Booking, field status.Field, value string, warnings []string) {
	if s.eventBus == nil {
		return
	}
	err := s.eventBus.PublishJSON(events.EventBookingStatusChanged, events.BookingStatusPayload{
		BookingID:     b.ID,
		AthleteID:     b.AthleteID,
		AthleteName:   b.AthleteName,
		Field:         string(field),
		Value:         value,
		Status:        string(b.Status),
		PaymentStatus: string(b.PaymentStatus),
		Attendance:    string(b.Attendance),
		Date:          b.Date,
		Warnings:      warnings,
	})
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to publish booking status event")
	}
}
