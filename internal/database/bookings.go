package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"coachdesk/internal/models"
)

const bookingColumns = `id, athlete_id, athlete_name, coach_name, parent_phone, date(date),
                 duration_minutes, is_member, status, payment_status, attendance_status,
                 stripe_session_id, amount_cents, paid_amount_cents, notes,
                 created_at, updated_at, version`

func scanBooking(row interface{ Scan(...any) error }) (*models.Booking, error) {
	b := &models.Booking{}
	var dateStr string
	err := row.Scan(
		&b.ID, &b.AthleteID, &b.AthleteName, &b.CoachName, &b.ParentPhone, &dateStr,
		&b.DurationMinutes, &b.IsMember, &b.Status, &b.PaymentStatus, &b.Attendance,
		&b.StripeSessionID, &b.AmountCents, &b.PaidAmountCents, &b.Notes,
		&b.CreatedAt, &b.UpdatedAt, &b.Version,
	)
	if err != nil {
		return nil, err
	}

	b.Date, err = time.Parse("2006-01-02", dateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse booking date %s: %w", dateStr, err)
	}
	return b, nil
}

func (db *DB) CreateBooking(ctx context.Context, booking *models.Booking) error {
	query := `INSERT INTO bookings (
				athlete_id, athlete_name, coach_name, parent_phone, date, duration_minutes,
				is_member, status, payment_status, attendance_status, stripe_session_id,
				amount_cents, paid_amount_cents, notes, created_at, updated_at, version
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now()
	result, err := db.ExecContext(ctx, query,
		booking.AthleteID,
		booking.AthleteName,
		booking.CoachName,
		booking.ParentPhone,
		booking.Date.Format("2006-01-02"),
		booking.DurationMinutes,
		booking.IsMember,
		booking.Status,
		booking.PaymentStatus,
		booking.Attendance,
		booking.StripeSessionID,
		booking.AmountCents,
		booking.PaidAmountCents,
		booking.Notes,
		now,
		now,
		1,
	)
	if err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	booking.ID = id
	booking.CreatedAt = now
	booking.UpdatedAt = now
	booking.Version = 1

	return nil
}

func (db *DB) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ?`
	booking, err := scanBooking(db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return booking, nil
}

// UpdateBookingStatusesWithVersion persists all three status dimensions in one
// write, guarded by the optimistic version counter. The cascaded triple always
// lands together; a concurrent editor loses the race cleanly instead of
// leaving a half-applied cascade behind.
func (db *DB) UpdateBookingStatusesWithVersion(ctx context.Context, id, fromVersion int64,
	status models.BookingStatus, payment models.PaymentStatus, attendance models.AttendanceStatus) error {
	query := `UPDATE bookings
              SET status = ?, payment_status = ?, attendance_status = ?,
                  version = version + 1, updated_at = ?
              WHERE id = ? AND version = ?`
	result, err := db.ExecContext(ctx, query, status, payment, attendance, time.Now(), id, fromVersion)
	if err != nil {
		return fmt.Errorf("failed to update booking statuses: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrConcurrentModification
	}
	return nil
}

// UpdatePaymentStatusIfCurrent is the reconciler's compare-and-swap write: the
// update only lands when payment_status still equals from, so overlapping sync
// runs converge instead of clobbering each other.
func (db *DB) UpdatePaymentStatusIfCurrent(ctx context.Context, id int64,
	from, to models.PaymentStatus) (bool, error) {
	query := `UPDATE bookings SET payment_status = ?, updated_at = ? WHERE id = ? AND payment_status = ?`
	result, err := db.ExecContext(ctx, query, to, time.Now(), id, from)
	if err != nil {
		return false, fmt.Errorf("failed to update payment status: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

func (db *DB) GetBookingsWithSession(ctx context.Context) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE stripe_session_id != '' ORDER BY date ASC`
	return db.queryBookings(ctx, query)
}

func (db *DB) GetBookingsByDateRange(ctx context.Context, startDate, endDate time.Time) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
              WHERE date(date) >= ? AND date(date) <= ? ORDER BY date ASC`
	return db.queryBookings(ctx, query, startDate.Format("2006-01-02"), endDate.Format("2006-01-02"))
}

// GetBookingsByBucket lists active or archived bookings. The bucket is derived
// from attendance status alone.
func (db *DB) GetBookingsByBucket(ctx context.Context, archived bool) ([]*models.Booking, error) {
	op := "NOT IN"
	if archived {
		op = "IN"
	}
	query := `SELECT ` + bookingColumns + ` FROM bookings
              WHERE attendance_status ` + op + ` (?, ?, ?) ORDER BY date ASC`
	return db.queryBookings(ctx, query,
		models.AttendanceCompleted, models.AttendanceNoShow, models.AttendanceCancelled)
}

// GetBillableSessions selects the sessions a payout run pays for: attendance
// completed or no-show, with date in [start, end).
func (db *DB) GetBillableSessions(ctx context.Context, start, end time.Time) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
              WHERE attendance_status IN (?, ?)
                AND date(date) >= ? AND date(date) < ?
              ORDER BY date ASC, id ASC`
	return db.queryBookings(ctx, query,
		models.AttendanceCompleted, models.AttendanceNoShow,
		start.Format("2006-01-02"), end.Format("2006-01-02"))
}

func (db *DB) queryBookings(ctx context.Context, query string, args ...any) ([]*models.Booking, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bookings: %w", err)
	}
	defer rows.Close()

	var bookings []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return bookings, nil
}
