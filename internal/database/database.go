package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	_ "github.com/mattn/go-sqlite3"
)

type DB struct {
	*sql.DB
	logger *zerolog.Logger
}

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if path == ":memory:" {
		// Every sqlite connection to :memory: is its own database
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("database initialized")
	return &DB{DB: db, logger: logger}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS bookings (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            athlete_id INTEGER NOT NULL,
            athlete_name TEXT NOT NULL,
            coach_name TEXT NOT NULL DEFAULT '',
            parent_phone TEXT NOT NULL DEFAULT '',
            date DATETIME NOT NULL,
            duration_minutes INTEGER NOT NULL,
            is_member BOOLEAN NOT NULL DEFAULT 0,
            status TEXT NOT NULL DEFAULT 'pending',
            payment_status TEXT NOT NULL DEFAULT 'unpaid',
            attendance_status TEXT NOT NULL DEFAULT 'pending',
            stripe_session_id TEXT NOT NULL DEFAULT '',
            amount_cents INTEGER NOT NULL DEFAULT 0,
            paid_amount_cents INTEGER NOT NULL DEFAULT 0,
            notes TEXT NOT NULL DEFAULT '',
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            version INTEGER NOT NULL DEFAULT 1
        )`,

		`CREATE TABLE IF NOT EXISTS payout_rates (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            duration_minutes INTEGER NOT NULL,
            is_member BOOLEAN NOT NULL,
            rate_cents INTEGER NOT NULL,
            effective_from DATETIME NOT NULL,
            effective_to DATETIME,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,

		`CREATE TABLE IF NOT EXISTS payout_runs (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            period_start DATETIME NOT NULL,
            period_end DATETIME NOT NULL,
            status TEXT NOT NULL DEFAULT 'draft',
            total_sessions INTEGER NOT NULL DEFAULT 0,
            total_owed_cents INTEGER NOT NULL DEFAULT 0,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            UNIQUE(period_start, period_end)
        )`,

		`CREATE TABLE IF NOT EXISTS payout_line_items (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            run_id INTEGER NOT NULL REFERENCES payout_runs(id),
            booking_id INTEGER NOT NULL,
            athlete_id INTEGER NOT NULL,
            athlete_name TEXT NOT NULL,
            session_date DATETIME NOT NULL,
            duration_minutes INTEGER NOT NULL,
            is_member BOOLEAN NOT NULL,
            rate_applied_cents INTEGER NOT NULL,
            owed_cents INTEGER NOT NULL,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            UNIQUE(run_id, booking_id, athlete_id)
        )`,

		`CREATE TABLE IF NOT EXISTS sync_queue (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            task_type TEXT NOT NULL,
            booking_id INTEGER NOT NULL DEFAULT 0,
            run_id INTEGER NOT NULL DEFAULT 0,
            payload TEXT NOT NULL,
            status TEXT NOT NULL DEFAULT 'pending',
            retry_count INTEGER NOT NULL DEFAULT 0,
            last_error TEXT,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            processed_at DATETIME,
            next_retry_at DATETIME
        )`,

		`CREATE INDEX IF NOT EXISTS idx_bookings_date ON bookings(date)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_attendance ON bookings(attendance_status)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_payment ON bookings(payment_status)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_session ON bookings(stripe_session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_rates_key ON payout_rates(duration_minutes, is_member, effective_to)`,
		`CREATE INDEX IF NOT EXISTS idx_line_items_run ON payout_line_items(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_line_items_booking ON payout_line_items(booking_id)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_queue_status ON sync_queue(status)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}
