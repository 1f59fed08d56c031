package queue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"streamgate/internal/database"
)

// ReclaimStale returns rows left in processing by a crashed worker to pending.
// Only call it while holding the worker lock.
func (s *Store) ReclaimStale(ctx context.Context) (int64, error) {
	res, err := s.db.Exec(ctx,
		`UPDATE content_files SET processing_status = ?, next_attempt_at = NULL, updated_at = ?
		 WHERE processing_status = ?`,
		StatusPending, database.FormatTime(s.now()), StatusProcessing)
	if err != nil {
		return 0, storeErr("reclaim", err)
	}
	return res.RowsAffected()
}

// Retry moves failed or dead jobs back to pending with a fresh attempt
// budget. With no ids every failed and dead job is retried.
func (s *Store) Retry(ctx context.Context, ids ...int64) (int64, error) {
	query := `UPDATE content_files
		SET processing_status = ?, attempts = 0, next_attempt_at = NULL, last_error = NULL, updated_at = ?
		WHERE processing_status IN (?, ?)`
	args := []any{StatusPending, database.FormatTime(s.now()), StatusFailed, StatusDead}
	if len(ids) > 0 {
		query += ` AND content_file_id IN (` + database.Placeholders(len(ids)) + `)`
		for _, id := range ids {
			args = append(args, id)
		}
	}
	res, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return 0, storeErr("retry", err)
	}
	return res.RowsAffected()
}

// Stats returns a count of jobs grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.Query(ctx, `SELECT processing_status, COUNT(1) FROM content_files GROUP BY processing_status`)
	if err != nil {
		return nil, storeErr("stats", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Health aggregates queue state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for status, count := range stats {
		health.Total += count
		switch status {
		case StatusPending:
			health.Pending += count
		case StatusProcessing:
			health.Processing += count
		case StatusReady:
			health.Ready += count
		case StatusFailed:
			health.Failed += count
		case StatusDead:
			health.Dead += count
		}
	}
	return health, nil
}

// CheckHealth returns diagnostic information about the queue database.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{DBPath: s.db.Path()}
	if health.DBPath == "" {
		return health, errors.New("queue database path is unknown")
	}

	info, err := os.Stat(health.DBPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return health, nil
		}
		return health, fmt.Errorf("stat queue database: %w", err)
	}
	if info.IsDir() {
		return health, fmt.Errorf("queue database path %q is a directory", health.DBPath)
	}
	health.DatabaseExists = true

	connCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := s.db.Ping(connCtx); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("ping queue database: %w", err)
	}
	health.DatabaseReadable = true

	status, err := s.db.Status()
	if err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("migration status: %w", err)
	}
	health.SchemaVersion = status.Version
	health.SchemaDirty = status.Dirty

	if err := s.db.QueryRow(connCtx, `SELECT COUNT(*) FROM content_files`).Scan(&health.TotalItems); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("count jobs: %w", err)
	}

	var integrityResult string
	if err := s.db.QueryRow(connCtx, `PRAGMA integrity_check`).Scan(&integrityResult); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("integrity check: %w", err)
	}
	health.IntegrityCheck = strings.EqualFold(integrityResult, "ok")
	return health, nil
}
