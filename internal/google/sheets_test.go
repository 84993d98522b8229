package google

import (
	"testing"
	"time"

	"coachdesk/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestBookingRowValues(t *testing.T) {
	b := &models.Booking{
		ID:              7,
		AthleteID:       101,
		AthleteName:     "Sasha Petrov",
		CoachName:       "Coach D",
		Date:            time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
		DurationMinutes: 60,
		IsMember:        true,
		Status:          models.BookingCompleted,
		PaymentStatus:   models.PaymentSessionPaid,
		Attendance:      models.AttendanceCompleted,
		AmountCents:     9050,
	}

	row := bookingRowValues(b)
	assert.Len(t, row, 13)
	assert.Equal(t, int64(7), row[0])
	assert.Equal(t, "2026-03-14", row[4])
	assert.Equal(t, "completed", row[7])
	assert.Equal(t, "session-paid", row[8])
	assert.InDelta(t, 90.50, row[10], 0.001)
}

func TestRowCache(t *testing.T) {
	s := &SheetsService{rowCache: make(map[int64]int)}

	_, ok := s.getCachedRow(5)
	assert.False(t, ok)

	s.setCachedRow(5, 12)
	row, ok := s.getCachedRow(5)
	assert.True(t, ok)
	assert.Equal(t, 12, row)
}
