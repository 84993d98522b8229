package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"coachdesk/internal/models"
)

// CreateRate retires any open rate for the same (duration, membership) key and
// inserts the new one inside a single transaction. The transaction is the
// concurrency guard for the at-most-one-active invariant: a second concurrent
// create serializes behind the first and retires its row.
func (db *DB) CreateRate(ctx context.Context, rate *models.PayoutRate) error {
	if rate.EffectiveFrom.IsZero() {
		rate.EffectiveFrom = time.Now()
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	retire := `UPDATE payout_rates SET effective_to = ?
               WHERE duration_minutes = ? AND is_member = ? AND effective_to IS NULL`
	if _, err := tx.ExecContext(ctx, retire, rate.EffectiveFrom, rate.DurationMinutes, rate.IsMember); err != nil {
		return fmt.Errorf("failed to retire active rate: %w", err)
	}

	insert := `INSERT INTO payout_rates (duration_minutes, is_member, rate_cents, effective_from, effective_to, created_at)
               VALUES (?, ?, ?, ?, NULL, ?)`
	now := time.Now()
	result, err := tx.ExecContext(ctx, insert,
		rate.DurationMinutes, rate.IsMember, rate.RateCents, rate.EffectiveFrom, now)
	if err != nil {
		return fmt.Errorf("failed to insert rate: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit rate create: %w", err)
	}

	rate.ID = id
	rate.EffectiveTo = nil
	rate.CreatedAt = now
	return nil
}

// RetireRate closes a rate early without a replacement. Retiring a rate that
// is already closed is a conflict, not a no-op.
func (db *DB) RetireRate(ctx context.Context, id int64, at time.Time) error {
	query := `UPDATE payout_rates SET effective_to = ? WHERE id = ? AND effective_to IS NULL`
	result, err := db.ExecContext(ctx, query, at, id)
	if err != nil {
		return fmt.Errorf("failed to retire rate: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows > 0 {
		return nil
	}

	var exists int
	err = db.QueryRowContext(ctx, `SELECT COUNT(*) FROM payout_rates WHERE id = ?`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check rate existence: %w", err)
	}
	if exists == 0 {
		return ErrNotFound
	}
	return ErrRateRetired
}

// ResolveRate returns the rate covering the instant, i.e. the row with
// effective_from <= at < effective_to (open rows cover everything after
// effective_from). No match is ErrRateNotFound, never a zero default.
func (db *DB) ResolveRate(ctx context.Context, durationMinutes int, isMember bool, at time.Time) (int64, error) {
	query := `SELECT rate_cents FROM payout_rates
              WHERE duration_minutes = ? AND is_member = ?
                AND effective_from <= ?
                AND (effective_to IS NULL OR effective_to > ?)
              ORDER BY effective_from DESC LIMIT 1`

	var rateCents int64
	err := db.QueryRowContext(ctx, query, durationMinutes, isMember, at, at).Scan(&rateCents)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrRateNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to resolve rate: %w", err)
	}
	return rateCents, nil
}

func (db *DB) GetRates(ctx context.Context) ([]*models.PayoutRate, error) {
	query := `SELECT id, duration_minutes, is_member, rate_cents, effective_from, effective_to, created_at
              FROM payout_rates ORDER BY duration_minutes, is_member, effective_from DESC`
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get rates: %w", err)
	}
	defer rows.Close()

	var rates []*models.PayoutRate
	for rows.Next() {
		r := &models.PayoutRate{}
		if err := rows.Scan(&r.ID, &r.DurationMinutes, &r.IsMember, &r.RateCents,
			&r.EffectiveFrom, &r.EffectiveTo, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan rate: %w", err)
		}
		rates = append(rates, r)
	}
	return rates, rows.Err()
}

// CountOpenRates exists for invariant checks: the number of rows with
// effective_to IS NULL for one key.
func (db *DB) CountOpenRates(ctx context.Context, durationMinutes int, isMember bool) (int, error) {
	var n int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM payout_rates WHERE duration_minutes = ? AND is_member = ? AND effective_to IS NULL`,
		durationMinutes, isMember).Scan(&n)
	return n, err
}
