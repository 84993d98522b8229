package status

import (
	"fmt"

	"coachdesk/internal/models"
)

// Field identifies one of the three synchronized status dimensions.
type Field string

const (
	FieldBooking    Field = "status"
	FieldPayment    Field = "payment_status"
	FieldAttendance Field = "attendance_status"
)

// State is the tri-status snapshot the machine validates and cascades over.
// It carries no identity; callers lift it out of a Booking and write it back.
type State struct {
	Booking    models.BookingStatus    `json:"status"`
	Payment    models.PaymentStatus    `json:"payment_status"`
	Attendance models.AttendanceStatus `json:"attendance_status"`
}

func StateOf(b *models.Booking) State {
	return State{Booking: b.Status, Payment: b.PaymentStatus, Attendance: b.Attendance}
}

// Apply writes the state back onto the booking.
func Apply(b *models.Booking, s State) {
	b.Status = s.Booking
	b.PaymentStatus = s.Payment
	b.Attendance = s.Attendance
}

// Result is the outcome of Validate. Errors block persistence; Warnings are
// surfaced to the admin but never auto-corrected. Suggested, when non-nil, is
// the state the cascade rules would settle on.
type Result struct {
	Valid     bool     `json:"valid"`
	Errors    []string `json:"errors,omitempty"`
	Warnings  []string `json:"warnings,omitempty"`
	Suggested *State   `json:"suggested,omitempty"`
}

// transition applies the cascade for one field assignment. The assignment
// itself has already been written into the state.
type transition func(State) State

func noCascade(s State) State { return s }

// Transition tables. Every enum value of every field must have an entry, even
// when the entry is noCascade; the totality test in machine_test.go walks the
// enum universes against these maps.
var attendanceTransitions = map[models.AttendanceStatus]transition{
	models.AttendancePending:   noCascade,
	models.AttendanceConfirmed: noCascade,
	models.AttendanceManual:    noCascade,
	models.AttendanceCompleted: func(s State) State {
		s.Booking = models.BookingCompleted
		// Full payment is only confirmed after the lesson happens.
		if s.Payment == models.PaymentReservationPaid {
			s.Payment = models.PaymentSessionPaid
		}
		return s
	},
	models.AttendanceNoShow: func(s State) State {
		// No-show is a terminal, billable outcome. Payment is left untouched.
		s.Booking = models.BookingCompleted
		return s
	},
	models.AttendanceCancelled: func(s State) State {
		s.Booking = models.BookingCancelled
		return s
	},
}

var bookingTransitions = map[models.BookingStatus]transition{
	models.BookingPending:            noCascade,
	models.BookingPaid:               noCascade,
	models.BookingManual:             noCascade,
	models.BookingManualPaid:         noCascade,
	models.BookingFailed:             noCascade,
	models.BookingReservationPending: noCascade,
	models.BookingReservationPaid:    noCascade,
	models.BookingReservationFailed:  noCascade,
	models.BookingCompleted: func(s State) State {
		// A recorded no-show stays a no-show; completing the booking again
		// must not invent an attended lesson or its session payment.
		if s.Attendance == models.AttendanceNoShow {
			return s
		}
		s.Attendance = models.AttendanceCompleted
		if s.Payment == models.PaymentReservationPaid {
			s.Payment = models.PaymentSessionPaid
		}
		return s
	},
	models.BookingCancelled: func(s State) State {
		s.Attendance = models.AttendanceCancelled
		return s
	},
	models.BookingConfirmed: func(s State) State {
		// One-directional nudge; attendance never cascades back to booking.
		if s.Attendance == models.AttendancePending {
			s.Attendance = models.AttendanceConfirmed
		}
		return s
	},
	models.BookingNoShow: func(s State) State {
		// Legacy value: normalized to the completed/no-show pair.
		s.Booking = models.BookingCompleted
		s.Attendance = models.AttendanceNoShow
		return s
	},
}

// Payment changes never drive the other two dimensions; the table exists so
// the totality check covers all three fields uniformly.
var paymentTransitions = map[models.PaymentStatus]transition{
	models.PaymentUnpaid:              noCascade,
	models.PaymentReservationPending:  noCascade,
	models.PaymentReservationPaid:     noCascade,
	models.PaymentReservationFailed:   noCascade,
	models.PaymentSessionPaid:         noCascade,
	models.PaymentReservationRefunded: noCascade,
	models.PaymentSessionRefunded:     noCascade,
}

// Synchronize sets one field to a new value and applies the cascade rules.
// It is pure: the input state is not modified. An unknown field or enum value
// is a validation error; a known value with no table entry is a programming
// error surfaced loudly so an enum addition cannot silently no-op.
func Synchronize(s State, field Field, value string) (State, error) {
	switch field {
	case FieldBooking:
		v := models.BookingStatus(value)
		if !v.Valid() {
			return s, models.NewValidationError(string(field), value)
		}
		t, ok := bookingTransitions[v]
		if !ok {
			return s, fmt.Errorf("no transition defined for %s=%s", field, value)
		}
		s.Booking = v
		return t(s), nil
	case FieldPayment:
		v := models.PaymentStatus(value)
		if !v.Valid() {
			return s, models.NewValidationError(string(field), value)
		}
		t, ok := paymentTransitions[v]
		if !ok {
			return s, fmt.Errorf("no transition defined for %s=%s", field, value)
		}
		s.Payment = v
		return t(s), nil
	case FieldAttendance:
		v := models.AttendanceStatus(value)
		if !v.Valid() {
			return s, models.NewValidationError(string(field), value)
		}
		t, ok := attendanceTransitions[v]
		if !ok {
			return s, fmt.Errorf("no transition defined for %s=%s", field, value)
		}
		s.Attendance = v
		return t(s), nil
	default:
		return s, models.NewValidationError("field", string(field))
	}
}

// Validate checks the cascade rules without changing anything. Consistency
// breaches that the cascade rules can repair come back as errors with a
// Suggested state; payment oddities come back as warnings only.
func Validate(s State) Result {
	var res Result

	if !s.Booking.Valid() {
		res.Errors = append(res.Errors, fmt.Sprintf("unknown status %q", s.Booking))
	}
	if !s.Payment.Valid() {
		res.Errors = append(res.Errors, fmt.Sprintf("unknown payment_status %q", s.Payment))
	}
	if !s.Attendance.Valid() {
		res.Errors = append(res.Errors, fmt.Sprintf("unknown attendance_status %q", s.Attendance))
	}
	if len(res.Errors) > 0 {
		return res
	}

	suggested := s
	fixed := false

	switch s.Attendance {
	case models.AttendanceCompleted:
		if s.Booking != models.BookingCompleted {
			res.Errors = append(res.Errors, "attendance completed requires booking status completed")
			suggested.Booking = models.BookingCompleted
			fixed = true
		}
	case models.AttendanceNoShow:
		if s.Booking != models.BookingCompleted {
			res.Errors = append(res.Errors, "attendance no-show requires booking status completed")
			suggested.Booking = models.BookingCompleted
			fixed = true
		}
	case models.AttendanceCancelled:
		if s.Booking != models.BookingCancelled {
			res.Errors = append(res.Errors, "attendance cancelled requires booking status cancelled")
			suggested.Booking = models.BookingCancelled
			fixed = true
		}
	}

	switch s.Booking {
	case models.BookingCompleted:
		if s.Attendance != models.AttendanceCompleted && s.Attendance != models.AttendanceNoShow {
			res.Errors = append(res.Errors, "booking completed requires attendance completed")
			suggested.Attendance = models.AttendanceCompleted
			fixed = true
		}
	case models.BookingCancelled:
		if s.Attendance != models.AttendanceCancelled {
			res.Errors = append(res.Errors, "booking cancelled requires attendance cancelled")
			suggested.Attendance = models.AttendanceCancelled
			fixed = true
		}
	case models.BookingNoShow:
		res.Errors = append(res.Errors, "booking status no-show is retired; use completed with attendance no-show")
		suggested.Booking = models.BookingCompleted
		suggested.Attendance = models.AttendanceNoShow
		fixed = true
	case models.BookingConfirmed:
		if s.Attendance == models.AttendancePending {
			res.Warnings = append(res.Warnings, "booking confirmed but attendance still pending")
			suggested.Attendance = models.AttendanceConfirmed
			fixed = true
		}
	}

	completed := s.Booking == models.BookingCompleted || s.Attendance == models.AttendanceCompleted
	if completed && s.Payment == models.PaymentUnpaid {
		res.Warnings = append(res.Warnings, "completed session has no recorded payment")
	}
	if s.Payment == models.PaymentSessionPaid &&
		s.Booking != models.BookingConfirmed && s.Booking != models.BookingCompleted {
		res.Warnings = append(res.Warnings, "session-paid but booking is neither confirmed nor completed")
	}
	if s.Booking == models.BookingCancelled &&
		(s.Payment == models.PaymentSessionPaid || s.Payment == models.PaymentReservationPaid) {
		res.Warnings = append(res.Warnings, "cancelled booking retains a paid status; review for manual refund")
	}

	if fixed {
		res.Suggested = &suggested
	}
	res.Valid = len(res.Errors) == 0
	return res
}
