package models

import "time"

type Booking struct {
	ID              int64            `json:"id"`
	AthleteID       int64            `json:"athlete_id"`
	AthleteName     string           `json:"athlete_name"`
	CoachName       string           `json:"coach_name"`
	ParentPhone     string           `json:"parent_phone"`
	Date            time.Time        `json:"date"`
	DurationMinutes int              `json:"duration_minutes"`
	IsMember        bool             `json:"is_member"` // membership at booking time, never rewritten
	Status          BookingStatus    `json:"status"`
	PaymentStatus   PaymentStatus    `json:"payment_status"`
	Attendance      AttendanceStatus `json:"attendance_status"`
	StripeSessionID string           `json:"stripe_session_id,omitempty"`
	AmountCents     int64            `json:"amount_cents"`
	PaidAmountCents int64            `json:"paid_amount_cents"`
	Notes           string           `json:"notes,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
	Version         int64            `json:"version"`
}
