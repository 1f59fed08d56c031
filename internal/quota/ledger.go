package quota

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"streamgate/internal/database"
	"streamgate/internal/services"
)

var (
	// ErrNotFound reports a user without a quota row. Callers treat it as zero entitlement.
	ErrNotFound = errors.New("quota row not found")
	// ErrQuotaExceeded reports a debit that would overrun the entitlement.
	ErrQuotaExceeded = services.ErrQuotaExceeded
)

const (
	bytesPerGB = 1 << 30
	bytesPerMB = 1 << 20
)

// Action tags a streaming log row.
type Action string

const (
	ActionStream   Action = "stream"
	ActionDownload Action = "download"
)

// Usage is a snapshot of a user's ledger row.
type Usage struct {
	UserID      int64
	TotalGB     float64
	UsedGB      float64
	RemainingGB float64
	LastUpdated time.Time
}

// CanUse reports whether any entitlement remains.
func (u Usage) CanUse() bool {
	return u.RemainingGB > 0
}

// UsedPercent is used/total clamped to 100, or 0 without entitlement.
func (u Usage) UsedPercent() float64 {
	if u.TotalGB <= 0 {
		return 0
	}
	return math.Min(100, u.UsedGB/u.TotalGB*100)
}

// Charge describes one authorized transfer.
type Charge struct {
	UserID        int64
	ContentFileID int64
	Bytes         int64
	Action        Action
}

// LogEntry is one streaming_logs row.
type LogEntry struct {
	ID            int64
	UserID        int64
	ContentFileID int64
	DataUsedMB    float64
	Action        Action
	CreatedAt     time.Time
}

// BytesToGB converts a byte count to ledger gigabytes.
func BytesToGB(bytes int64) float64 {
	return float64(bytes) / bytesPerGB
}

// BytesToMB converts a byte count to log megabytes.
func BytesToMB(bytes int64) float64 {
	return float64(bytes) / bytesPerMB
}

// Ledger reads and mutates user_quota and appends streaming_logs.
type Ledger struct {
	db  *database.DB
	now func() time.Time
}

// NewLedger returns a ledger over db.
func NewLedger(db *database.DB) *Ledger {
	return &Ledger{db: db, now: time.Now}
}

// WithClock overrides the timestamp source. Intended for tests.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

const usageQuery = `SELECT user_id, user_quota_total_gb, used_quota_gb, user_quota_last_updated
	FROM user_quota WHERE user_id = ?`

// CheckRemaining returns the user's current usage. Remaining is total - used,
// never clamped.
func (l *Ledger) CheckRemaining(ctx context.Context, userID int64) (Usage, error) {
	usage, err := scanUsage(l.db.QueryRow(ctx, usageQuery, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return Usage{UserID: userID}, ErrNotFound
	}
	if err != nil {
		return Usage{}, services.Wrap(services.ErrStoreUnavailable, "quota", "check remaining", "", err)
	}
	return usage, nil
}

// Debit atomically adds bytes to the user's usage if it fits.
func (l *Ledger) Debit(ctx context.Context, userID, bytes int64) error {
	return l.db.WithTx(ctx, func(tx *sql.Tx) error {
		return l.debitTx(ctx, tx, userID, bytes)
	})
}

// Consume debits the charge and appends its streaming log row in one
// transaction. On refusal nothing is written.
func (l *Ledger) Consume(ctx context.Context, charge Charge) (Usage, error) {
	if charge.Action != ActionStream && charge.Action != ActionDownload {
		return Usage{}, services.Wrap(services.ErrValidation, "quota", "consume", fmt.Sprintf("unknown action %q", charge.Action), nil)
	}
	var usage Usage
	err := l.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := l.debitTx(ctx, tx, charge.UserID, charge.Bytes); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO streaming_logs (user_id, content_file_id, data_used_mb, log_action, created_at)
			 VALUES (?, ?, ?, ?, ?)`,
			charge.UserID, charge.ContentFileID, BytesToMB(charge.Bytes), string(charge.Action), database.FormatTime(l.now()),
		); err != nil {
			return services.Wrap(services.ErrStoreUnavailable, "quota", "append log", "", err)
		}
		var err error
		usage, err = scanUsage(tx.QueryRowContext(ctx, usageQuery, charge.UserID))
		if err != nil {
			return services.Wrap(services.ErrStoreUnavailable, "quota", "read usage", "", err)
		}
		return nil
	})
	if err != nil {
		return Usage{}, err
	}
	return usage, nil
}

func (l *Ledger) debitTx(ctx context.Context, tx *sql.Tx, userID, bytes int64) error {
	if bytes < 0 {
		return services.Wrap(services.ErrValidation, "quota", "debit", "negative byte count", nil)
	}
	gb := BytesToGB(bytes)
	res, err := tx.ExecContext(ctx,
		`UPDATE user_quota
		 SET used_quota_gb = used_quota_gb + ?, user_quota_last_updated = ?
		 WHERE user_id = ? AND used_quota_gb + ? <= user_quota_total_gb`,
		gb, database.FormatTime(l.now()), userID, gb,
	)
	if err != nil {
		if database.IsBusy(err) {
			return err
		}
		return services.Wrap(services.ErrStoreUnavailable, "quota", "debit", "", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return services.Wrap(services.ErrStoreUnavailable, "quota", "debit", "rows affected", err)
	}
	if affected == 1 {
		return nil
	}

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM user_quota WHERE user_id = ?`, userID).Scan(&exists)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return ErrNotFound
	case err != nil:
		return services.Wrap(services.ErrStoreUnavailable, "quota", "debit", "lookup", err)
	default:
		return ErrQuotaExceeded
	}
}

// Credit raises the user's entitlement by gb.
func (l *Ledger) Credit(ctx context.Context, userID int64, gb float64) error {
	return l.db.WithTx(ctx, func(tx *sql.Tx) error {
		return CreditTx(ctx, tx, userID, gb, l.now())
	})
}

// CreditTx raises the user's entitlement inside an existing transaction.
func CreditTx(ctx context.Context, tx *sql.Tx, userID int64, gb float64, now time.Time) error {
	if gb <= 0 || math.IsNaN(gb) || math.IsInf(gb, 0) {
		return services.Wrap(services.ErrValidation, "quota", "credit", "amount must be positive", nil)
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE user_quota
		 SET user_quota_total_gb = user_quota_total_gb + ?, user_quota_last_updated = ?
		 WHERE user_id = ?`,
		gb, database.FormatTime(now), userID,
	)
	if err != nil {
		return services.Wrap(services.ErrStoreUnavailable, "quota", "credit", "", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Ensure creates the user's row with defaultGB entitlement if missing and
// returns the current usage.
func (l *Ledger) Ensure(ctx context.Context, userID int64, defaultGB float64) (Usage, error) {
	if defaultGB < 0 {
		return Usage{}, services.Wrap(services.ErrValidation, "quota", "ensure", "default must not be negative", nil)
	}
	if _, err := l.db.Exec(ctx,
		`INSERT OR IGNORE INTO user_quota (user_id, user_quota_total_gb, used_quota_gb, user_quota_last_updated)
		 VALUES (?, ?, 0, ?)`,
		userID, defaultGB, database.FormatTime(l.now()),
	); err != nil {
		return Usage{}, services.Wrap(services.ErrStoreUnavailable, "quota", "ensure", "", err)
	}
	return l.CheckRemaining(ctx, userID)
}

// RecentLogs returns the user's newest log rows first.
func (l *Ledger) RecentLogs(ctx context.Context, userID int64, limit int) ([]LogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.Query(ctx,
		`SELECT log_id, user_id, content_file_id, data_used_mb, log_action, created_at
		 FROM streaming_logs WHERE user_id = ? ORDER BY log_id DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, services.Wrap(services.ErrStoreUnavailable, "quota", "recent logs", "", err)
	}
	defer rows.Close()

	var entries []LogEntry
	for rows.Next() {
		var (
			entry      LogEntry
			action     string
			createdRaw sql.NullString
		)
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.ContentFileID, &entry.DataUsedMB, &action, &createdRaw); err != nil {
			return nil, services.Wrap(services.ErrStoreUnavailable, "quota", "scan log", "", err)
		}
		entry.Action = Action(action)
		if created, err := database.ParseTime(createdRaw.String); err == nil {
			entry.CreatedAt = created
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func scanUsage(scanner database.Scanner) (Usage, error) {
	var (
		usage   Usage
		updated sql.NullString
	)
	if err := scanner.Scan(&usage.UserID, &usage.TotalGB, &usage.UsedGB, &updated); err != nil {
		return Usage{}, err
	}
	usage.RemainingGB = usage.TotalGB - usage.UsedGB
	if ts, err := database.ParseTime(updated.String); err == nil {
		usage.LastUpdated = ts
	}
	return usage, nil
}
