package queue

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"streamgate/internal/database"
)

// Store reads and transitions jobs.
type Store struct {
	db  *database.DB
	now func() time.Time
}

// NewStore wraps an open database.
func NewStore(db *database.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// WithClock overrides the time source. Intended for tests.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

const jobColumns = `f.content_file_id, f.content_id, c.content_title, f.original_path, f.processing_status,
	f.attempts, f.next_attempt_at, f.last_error, f.hls_path, f.preview_path, f.poster_path,
	f.created_at, f.updated_at`

const jobFrom = ` FROM content_files f JOIN content c ON c.content_id = f.content_id`

// Next returns the oldest claimable job whose backoff has elapsed, or nil.
func (s *Store) Next(ctx context.Context, now time.Time) (*Job, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+jobColumns+jobFrom+`
		 WHERE f.processing_status IN (?, ?)
		   AND (f.next_attempt_at IS NULL OR f.next_attempt_at <= ?)
		 ORDER BY f.created_at, f.content_file_id
		 LIMIT 1`,
		StatusPending, StatusFailed, database.FormatTime(now))
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("next", err)
	}
	return job, nil
}

// Get returns the job with id.
func (s *Store) Get(ctx context.Context, id int64) (*Job, error) {
	row := s.db.QueryRow(ctx, `SELECT `+jobColumns+jobFrom+` WHERE f.content_file_id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storeErr("get", err)
	}
	return job, nil
}

// List returns jobs in queue order, filtered to statuses when any are given.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]Job, error) {
	query := `SELECT ` + jobColumns + jobFrom
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += ` WHERE f.processing_status IN (` + database.Placeholders(len(statuses)) + `)`
		for _, status := range statuses {
			args = append(args, status)
		}
	}
	query += ` ORDER BY f.created_at, f.content_file_id`

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, storeErr("list", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, storeErr("scan", err)
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list", err)
	}
	return jobs, nil
}

func scanJob(scanner database.Scanner) (*Job, error) {
	var (
		job        Job
		status     string
		nextRaw    sql.NullString
		lastError  sql.NullString
		hls        sql.NullString
		preview    sql.NullString
		poster     sql.NullString
		createdRaw string
		updatedRaw string
	)
	if err := scanner.Scan(
		&job.ID, &job.ContentID, &job.Title, &job.OriginalPath, &status,
		&job.Attempts, &nextRaw, &lastError, &hls, &preview, &poster,
		&createdRaw, &updatedRaw,
	); err != nil {
		return nil, err
	}
	job.Status = Status(strings.TrimSpace(status))
	job.LastError = lastError.String
	job.HLSPath = hls.String
	job.PreviewPath = preview.String
	job.PosterPath = poster.String
	if nextRaw.Valid {
		if ts, err := database.ParseTime(nextRaw.String); err == nil {
			job.NextAttemptAt = &ts
		}
	}
	if ts, err := database.ParseTime(createdRaw); err == nil {
		job.CreatedAt = ts
	}
	if ts, err := database.ParseTime(updatedRaw); err == nil {
		job.UpdatedAt = ts
	}
	return &job, nil
}
