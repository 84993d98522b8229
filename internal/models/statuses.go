package models

// BookingStatus is the booking's overall lifecycle stage.
type BookingStatus string

const (
	BookingPending            BookingStatus = "pending"
	BookingPaid               BookingStatus = "paid"
	BookingConfirmed          BookingStatus = "confirmed"
	BookingManual             BookingStatus = "manual"
	BookingManualPaid         BookingStatus = "manual-paid"
	BookingCompleted          BookingStatus = "completed"
	BookingNoShow             BookingStatus = "no-show"
	BookingFailed             BookingStatus = "failed"
	BookingCancelled          BookingStatus = "cancelled"
	BookingReservationPending BookingStatus = "reservation-pending"
	BookingReservationPaid    BookingStatus = "reservation-paid"
	BookingReservationFailed  BookingStatus = "reservation-failed"
)

// PaymentStatus tracks monetary collection progress for a booking.
type PaymentStatus string

const (
	PaymentUnpaid              PaymentStatus = "unpaid"
	PaymentReservationPending  PaymentStatus = "reservation-pending"
	PaymentReservationPaid     PaymentStatus = "reservation-paid"
	PaymentReservationFailed   PaymentStatus = "reservation-failed"
	PaymentSessionPaid         PaymentStatus = "session-paid"
	PaymentReservationRefunded PaymentStatus = "reservation-refunded"
	PaymentSessionRefunded     PaymentStatus = "session-refunded"
)

// AttendanceStatus records whether and how the athlete attended.
// It is the sole signal for active/archived classification.
type AttendanceStatus string

const (
	AttendancePending   AttendanceStatus = "pending"
	AttendanceConfirmed AttendanceStatus = "confirmed"
	AttendanceCompleted AttendanceStatus = "completed"
	AttendanceCancelled AttendanceStatus = "cancelled"
	AttendanceNoShow    AttendanceStatus = "no-show"
	AttendanceManual    AttendanceStatus = "manual"
)

// Enum universes. The status state machine's totality test walks these, so a
// new value added here without a transition table entry fails tests instead of
// silently no-oping.
var (
	AllBookingStatuses = []BookingStatus{
		BookingPending, BookingPaid, BookingConfirmed, BookingManual,
		BookingManualPaid, BookingCompleted, BookingNoShow, BookingFailed,
		BookingCancelled, BookingReservationPending, BookingReservationPaid,
		BookingReservationFailed,
	}

	AllPaymentStatuses = []PaymentStatus{
		PaymentUnpaid, PaymentReservationPending, PaymentReservationPaid,
		PaymentReservationFailed, PaymentSessionPaid,
		PaymentReservationRefunded, PaymentSessionRefunded,
	}

	AllAttendanceStatuses = []AttendanceStatus{
		AttendancePending, AttendanceConfirmed, AttendanceCompleted,
		AttendanceCancelled, AttendanceNoShow, AttendanceManual,
	}
)

func (s BookingStatus) Valid() bool {
	for _, v := range AllBookingStatuses {
		if s == v {
			return true
		}
	}
	return false
}

func (s PaymentStatus) Valid() bool {
	for _, v := range AllPaymentStatuses {
		if s == v {
			return true
		}
	}
	return false
}

func (s AttendanceStatus) Valid() bool {
	for _, v := range AllAttendanceStatuses {
		if s == v {
			return true
		}
	}
	return false
}
