package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"coachdesk/internal/config"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

const snapshotPrefix = "coachdesk_"

// BackupService periodically snapshots the bookings database with VACUUM INTO,
// which copies a consistent image while the API keeps writing. Snapshots older
// than the retention window are pruned after each run.
type BackupService struct {
	dbPath   string
	dir      string
	interval time.Duration
	keepDays int
	logger   *zerolog.Logger
}

func NewBackupService(dbPath string, cfg config.BackupConfig, logger *zerolog.Logger) *BackupService {
	interval := 24 * time.Hour
	if cfg.Interval != "" {
		d, err := time.ParseDuration(cfg.Interval)
		if err != nil {
			logger.Warn().Err(err).Str("interval", cfg.Interval).Msg("invalid backup interval, keeping 24h")
		} else {
			interval = d
		}
	}
	return &BackupService{
		dbPath:   dbPath,
		dir:      cfg.StoragePath,
		interval: interval,
		keepDays: cfg.RetentionDays,
		logger:   logger,
	}
}

func (s *BackupService) Start(ctx context.Context) {
	s.logger.Info().Dur("interval", s.interval).Str("dir", s.dir).Msg("backup schedule started")

	if _, err := s.Snapshot(ctx); err != nil {
		s.logger.Error().Err(err).Msg("initial backup failed")
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Snapshot(ctx); err != nil {
				s.logger.Error().Err(err).Msg("scheduled backup failed")
				continue
			}
			s.prune()
		}
	}
}

// Snapshot writes one timestamped copy of the database and returns its path.
func (s *BackupService) Snapshot(ctx context.Context) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	name := snapshotPrefix + time.Now().Format("20060102_150405") + ".db"
	dest := filepath.Join(s.dir, name)

	db, err := sql.Open("sqlite3", s.dbPath)
	if err != nil {
		return "", fmt.Errorf("failed to open source database: %w", err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, fmt.Sprintf("VACUUM INTO '%s'", dest)); err != nil {
		os.Remove(dest)
		return "", fmt.Errorf("failed to snapshot database: %w", err)
	}

	s.logger.Info().Str("path", dest).Msg("backup written")
	return dest, nil
}

// prune deletes expired snapshots. Only files this service wrote are touched,
// so an operator can park unrelated files in the backup directory.
func (s *BackupService) prune() {
	if s.keepDays <= 0 {
		return
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to read backup directory")
		return
	}

	cutoff := time.Now().AddDate(0, 0, -s.keepDays)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), snapshotPrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			s.logger.Info().Str("file", entry.Name()).Msg("pruning expired backup")
			os.Remove(filepath.Join(s.dir, entry.Name()))
		}
	}
}
