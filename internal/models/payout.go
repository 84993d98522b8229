package models

import "time"

// PayoutRate maps (duration, membership) to a per-session coach rate, versioned
// over time. EffectiveTo == nil marks the currently active row; at most one row
// per key may be open at any instant.
type PayoutRate struct {
	ID              int64      `json:"id"`
	DurationMinutes int        `json:"duration_minutes"`
	IsMember        bool       `json:"is_member"`
	RateCents       int64      `json:"rate_cents"`
	EffectiveFrom   time.Time  `json:"effective_from"`
	EffectiveTo     *time.Time `json:"effective_to,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// PayoutLineItem is one billable session inside a payout run. Duration and
// membership are copied from the booking as observed at booking time and are
// never rewritten by backfill.
type PayoutLineItem struct {
	ID               int64     `json:"id"`
	RunID            int64     `json:"run_id"`
	BookingID        int64     `json:"booking_id"`
	AthleteID        int64     `json:"athlete_id"`
	AthleteName      string    `json:"athlete_name"`
	SessionDate      time.Time `json:"session_date"`
	DurationMinutes  int       `json:"duration_minutes"`
	IsMember         bool      `json:"is_member"`
	RateAppliedCents int64     `json:"rate_applied_cents"`
	OwedCents        int64     `json:"owed_cents"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

type RunStatus string

const (
	RunDraft  RunStatus = "draft"
	RunLocked RunStatus = "locked"
)

type PayoutRun struct {
	ID             int64     `json:"id"`
	PeriodStart    time.Time `json:"period_start"`
	PeriodEnd      time.Time `json:"period_end"`
	Status         RunStatus `json:"status"`
	TotalSessions  int64     `json:"total_sessions"`
	TotalOwedCents int64     `json:"total_owed_cents"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// PayoutSummary aggregates line items for the read-only reporting endpoints.
type PayoutSummary struct {
	TotalSessions  int64 `json:"total_sessions"`
	TotalOwedCents int64 `json:"total_owed_cents"`
	MemberSessions int64 `json:"member_sessions"`
	DropInSessions int64 `json:"drop_in_sessions"`
}

// PayoutFilter narrows line-item queries for the list/summary/export endpoints.
type PayoutFilter struct {
	From            *time.Time
	To              *time.Time
	IsMember        *bool
	AthleteID       *int64
	Attendance      AttendanceStatus
	DurationMinutes int
}
