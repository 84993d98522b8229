package status

import "coachdesk/internal/models"

// IsArchived classifies a booking into the archived bucket. Attendance is the
// sole signal here; booking and payment status never participate.
func IsArchived(s State) bool {
	switch s.Attendance {
	case models.AttendanceCompleted, models.AttendanceNoShow, models.AttendanceCancelled:
		return true
	}
	return false
}

func IsActive(s State) bool { return !IsArchived(s) }

// ArchivedAttendanceStatuses lists the attendance values that close a booking,
// in the order the store uses them in IN clauses.
var ArchivedAttendanceStatuses = []models.AttendanceStatus{
	models.AttendanceCompleted,
	models.AttendanceNoShow,
	models.AttendanceCancelled,
}
