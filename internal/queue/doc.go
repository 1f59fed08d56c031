// Package queue exposes the content_files table as the processing job queue.
//
// A content file is a job: ingestion inserts it pending, the worker claims it
// into processing and finishes it as ready, or records a failure with
// exponential backoff until the attempt budget is spent and the row goes dead.
// Dead rows only return to pending through an operator retry.
//
// Claims are conditional updates guarded by status so a lost race surfaces as
// ErrNotClaimed instead of double processing.
package queue
