package queue

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"streamgate/internal/database"
)

// maxErrorLength bounds the stored failure message.
const maxErrorLength = 2000

// Claim moves a pending or failed job to processing. A row that changed
// status since it was read yields ErrNotClaimed.
func (s *Store) Claim(ctx context.Context, id int64) error {
	res, err := s.db.Exec(ctx,
		`UPDATE content_files SET processing_status = ?, updated_at = ?
		 WHERE content_file_id = ? AND processing_status IN (?, ?)`,
		StatusProcessing, database.FormatTime(s.now()), id, StatusPending, StatusFailed)
	if err != nil {
		return storeErr("claim", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotClaimed
	}
	return nil
}

// Complete persists all three rendition paths and marks the job ready in one
// statement.
func (s *Store) Complete(ctx context.Context, id int64, r Renditions) error {
	if !r.Complete() {
		return errors.New("complete job: all rendition paths are required")
	}
	res, err := s.db.Exec(ctx,
		`UPDATE content_files
		 SET processing_status = ?, hls_path = ?, preview_path = ?, poster_path = ?,
		     next_attempt_at = NULL, last_error = NULL, updated_at = ?
		 WHERE content_file_id = ? AND processing_status = ?`,
		StatusReady, r.HLS, r.Preview, r.Poster, database.FormatTime(s.now()), id, StatusProcessing)
	if err != nil {
		return storeErr("complete", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotClaimed
	}
	return nil
}

// Fail records cause against a processing job. The job becomes failed with a
// backoff deadline, or dead once policy's attempt budget is spent. The
// resulting status is returned.
func (s *Store) Fail(ctx context.Context, id int64, cause error, policy Policy, now time.Time) (Status, error) {
	message := "unknown error"
	if cause != nil {
		message = truncate(strings.TrimSpace(cause.Error()), maxErrorLength)
	}

	var final Status
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		var attempts int
		err := tx.QueryRowContext(ctx,
			`SELECT attempts FROM content_files WHERE content_file_id = ?`, id).Scan(&attempts)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return storeErr("fail", err)
		}
		attempts++

		var next any
		final = StatusFailed
		if policy.Exhausted(attempts) {
			final = StatusDead
		} else {
			next = database.FormatTime(now.Add(policy.Backoff(attempts)))
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE content_files
			 SET processing_status = ?, attempts = ?, next_attempt_at = ?, last_error = ?, updated_at = ?
			 WHERE content_file_id = ?`,
			final, attempts, next, message, database.FormatTime(now), id); err != nil {
			return storeErr("fail", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return final, nil
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit]
}
