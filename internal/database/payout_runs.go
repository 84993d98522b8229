package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"coachdesk/internal/models"
)

func scanRun(row interface{ Scan(...any) error }) (*models.PayoutRun, error) {
	r := &models.PayoutRun{}
	var startStr, endStr string
	err := row.Scan(&r.ID, &startStr, &endStr, &r.Status,
		&r.TotalSessions, &r.TotalOwedCents, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if r.PeriodStart, err = time.Parse("2006-01-02", startStr); err != nil {
		return nil, fmt.Errorf("failed to parse period start %s: %w", startStr, err)
	}
	if r.PeriodEnd, err = time.Parse("2006-01-02", endStr); err != nil {
		return nil, fmt.Errorf("failed to parse period end %s: %w", endStr, err)
	}
	return r, nil
}

const runColumns = `id, date(period_start), date(period_end), status, total_sessions, total_owed_cents, created_at, updated_at`

func (db *DB) GetRun(ctx context.Context, id int64) (*models.PayoutRun, error) {
	query := `SELECT ` + runColumns + ` FROM payout_runs WHERE id = ?`
	run, err := scanRun(db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payout run: %w", err)
	}
	return run, nil
}

func (db *DB) FindRunByPeriod(ctx context.Context, start, end time.Time) (*models.PayoutRun, error) {
	query := `SELECT ` + runColumns + ` FROM payout_runs WHERE date(period_start) = ? AND date(period_end) = ?`
	run, err := scanRun(db.QueryRowContext(ctx, query,
		start.Format("2006-01-02"), end.Format("2006-01-02")))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find payout run: %w", err)
	}
	return run, nil
}

// UpsertRun creates the run for a period or touches the existing one. The
// period pair is unique, so regenerating a period reuses its run row.
func (db *DB) UpsertRun(ctx context.Context, run *models.PayoutRun) error {
	now := time.Now()
	query := `INSERT INTO payout_runs (period_start, period_end, status, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?)
              ON CONFLICT(period_start, period_end) DO UPDATE SET updated_at = excluded.updated_at`
	if run.Status == "" {
		run.Status = models.RunDraft
	}
	_, err := db.ExecContext(ctx, query,
		run.PeriodStart.Format("2006-01-02"), run.PeriodEnd.Format("2006-01-02"),
		run.Status, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert payout run: %w", err)
	}

	existing, err := db.FindRunByPeriod(ctx, run.PeriodStart, run.PeriodEnd)
	if err != nil {
		return err
	}
	*run = *existing
	return nil
}

func (db *DB) UpsertLineItem(ctx context.Context, item *models.PayoutLineItem) error {
	now := time.Now()
	query := `INSERT INTO payout_line_items (
                run_id, booking_id, athlete_id, athlete_name, session_date,
                duration_minutes, is_member, rate_applied_cents, owed_cents,
                created_at, updated_at
              ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
              ON CONFLICT(run_id, booking_id, athlete_id) DO UPDATE SET
                athlete_name = excluded.athlete_name,
                session_date = excluded.session_date,
                rate_applied_cents = excluded.rate_applied_cents,
                owed_cents = excluded.owed_cents,
                updated_at = excluded.updated_at`
	_, err := db.ExecContext(ctx, query,
		item.RunID, item.BookingID, item.AthleteID, item.AthleteName,
		item.SessionDate.Format("2006-01-02"), item.DurationMinutes, item.IsMember,
		item.RateAppliedCents, item.OwedCents, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert line item: %w", err)
	}
	return nil
}

// PruneLineItems removes a run's line items whose booking is no longer in the
// qualifying set, so a refresh drops sessions whose attendance was corrected
// away from a billable outcome. An empty keep set clears the run.
func (db *DB) PruneLineItems(ctx context.Context, runID int64, keepBookingIDs []int64) error {
	query := `DELETE FROM payout_line_items WHERE run_id = ?`
	args := []any{runID}
	if len(keepBookingIDs) > 0 {
		query += ` AND booking_id NOT IN (?` + strings.Repeat(", ?", len(keepBookingIDs)-1) + `)`
		for _, id := range keepBookingIDs {
			args = append(args, id)
		}
	}
	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to prune line items: %w", err)
	}
	return nil
}

// UpdateLineItemAmounts is the backfill write path: only the resolved rate and
// owed amount move, never the recorded membership, duration or date.
func (db *DB) UpdateLineItemAmounts(ctx context.Context, id, rateCents, owedCents int64) error {
	query := `UPDATE payout_line_items SET rate_applied_cents = ?, owed_cents = ?, updated_at = ? WHERE id = ?`
	result, err := db.ExecContext(ctx, query, rateCents, owedCents, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update line item amounts: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

const lineItemColumns = `li.id, li.run_id, li.booking_id, li.athlete_id, li.athlete_name,
                date(li.session_date), li.duration_minutes, li.is_member,
                li.rate_applied_cents, li.owed_cents, li.created_at, li.updated_at`

func scanLineItem(row interface{ Scan(...any) error }) (*models.PayoutLineItem, error) {
	li := &models.PayoutLineItem{}
	var dateStr string
	err := row.Scan(&li.ID, &li.RunID, &li.BookingID, &li.AthleteID, &li.AthleteName,
		&dateStr, &li.DurationMinutes, &li.IsMember,
		&li.RateAppliedCents, &li.OwedCents, &li.CreatedAt, &li.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if li.SessionDate, err = time.Parse("2006-01-02", dateStr); err != nil {
		return nil, fmt.Errorf("failed to parse session date %s: %w", dateStr, err)
	}
	return li, nil
}

func (db *DB) GetLineItems(ctx context.Context, runID int64) ([]*models.PayoutLineItem, error) {
	query := `SELECT ` + lineItemColumns + ` FROM payout_line_items li
              WHERE li.run_id = ? ORDER BY li.session_date ASC, li.id ASC`
	return db.queryLineItems(ctx, query, runID)
}

// RecomputeRunTotals rebuilds the run aggregates from its line items in one
// statement, so total_sessions and total_owed_cents always move together.
func (db *DB) RecomputeRunTotals(ctx context.Context, runID int64) error {
	query := `UPDATE payout_runs SET
                total_sessions = (SELECT COUNT(*) FROM payout_line_items WHERE run_id = ?),
                total_owed_cents = (SELECT COALESCE(SUM(owed_cents), 0) FROM payout_line_items WHERE run_id = ?),
                updated_at = ?
              WHERE id = ?`
	result, err := db.ExecContext(ctx, query, runID, runID, time.Now(), runID)
	if err != nil {
		return fmt.Errorf("failed to recompute run totals: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (db *DB) LockRun(ctx context.Context, id int64) error {
	query := `UPDATE payout_runs SET status = ?, updated_at = ? WHERE id = ? AND status = ?`
	result, err := db.ExecContext(ctx, query, models.RunLocked, time.Now(), id, models.RunDraft)
	if err != nil {
		return fmt.Errorf("failed to lock payout run: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows > 0 {
		return nil
	}

	if _, err := db.GetRun(ctx, id); err != nil {
		return err
	}
	return ErrRunLocked
}

// DeleteRun removes a draft run and its line items. Locked runs are immutable.
func (db *DB) DeleteRun(ctx context.Context, id int64) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var status models.RunStatus
	err = tx.QueryRowContext(ctx, `SELECT status FROM payout_runs WHERE id = ?`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read run status: %w", err)
	}
	if status == models.RunLocked {
		return ErrRunLocked
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM payout_line_items WHERE run_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete line items: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM payout_runs WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete payout run: %w", err)
	}

	return tx.Commit()
}

func (db *DB) GetRuns(ctx context.Context) ([]*models.PayoutRun, error) {
	query := `SELECT ` + runColumns + ` FROM payout_runs ORDER BY period_start DESC`
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get payout runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.PayoutRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payout run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func buildLineItemFilter(filter models.PayoutFilter) (string, []any) {
	var conds []string
	var args []any

	if filter.From != nil {
		conds = append(conds, `date(li.session_date) >= ?`)
		args = append(args, filter.From.Format("2006-01-02"))
	}
	if filter.To != nil {
		conds = append(conds, `date(li.session_date) <= ?`)
		args = append(args, filter.To.Format("2006-01-02"))
	}
	if filter.IsMember != nil {
		conds = append(conds, `li.is_member = ?`)
		args = append(args, *filter.IsMember)
	}
	if filter.AthleteID != nil {
		conds = append(conds, `li.athlete_id = ?`)
		args = append(args, *filter.AthleteID)
	}
	if filter.Attendance != "" {
		conds = append(conds, `b.attendance_status = ?`)
		args = append(args, filter.Attendance)
	}
	if filter.DurationMinutes > 0 {
		conds = append(conds, `li.duration_minutes = ?`)
		args = append(args, filter.DurationMinutes)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// QueryLineItems serves the read-only payout views. The attendance filter
// joins through bookings; everything else lives on the line item itself.
func (db *DB) QueryLineItems(ctx context.Context, filter models.PayoutFilter) ([]*models.PayoutLineItem, error) {
	where, args := buildLineItemFilter(filter)
	query := `SELECT ` + lineItemColumns + ` FROM payout_line_items li
              JOIN bookings b ON b.id = li.booking_id` + where +
		` ORDER BY li.session_date ASC, li.id ASC`
	return db.queryLineItems(ctx, query, args...)
}

func (db *DB) SummarizeLineItems(ctx context.Context, filter models.PayoutFilter) (*models.PayoutSummary, error) {
	where, args := buildLineItemFilter(filter)
	query := `SELECT COUNT(*),
                     COALESCE(SUM(li.owed_cents), 0),
                     COALESCE(SUM(CASE WHEN li.is_member THEN 1 ELSE 0 END), 0),
                     COALESCE(SUM(CASE WHEN li.is_member THEN 0 ELSE 1 END), 0)
              FROM payout_line_items li
              JOIN bookings b ON b.id = li.booking_id` + where

	s := &models.PayoutSummary{}
	err := db.QueryRowContext(ctx, query, args...).Scan(
		&s.TotalSessions, &s.TotalOwedCents, &s.MemberSessions, &s.DropInSessions)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize line items: %w", err)
	}
	return s, nil
}

func (db *DB) queryLineItems(ctx context.Context, query string, args ...any) ([]*models.PayoutLineItem, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query line items: %w", err)
	}
	defer rows.Close()

	var items []*models.PayoutLineItem
	for rows.Next() {
		li, err := scanLineItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan line item: %w", err)
		}
		items = append(items, li)
	}
	return items, rows.Err()
}
