// Package passcode issues and redeems single-use codes that top up a user's
// quota entitlement.
package passcode

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"math"
	"math/big"
	"strings"
	"time"

	"streamgate/internal/database"
	"streamgate/internal/quota"
	"streamgate/internal/services"
)

var (
	ErrInvalid     = errors.New("invalid passcode")
	ErrAlreadyUsed = errors.New("passcode already used")
	ErrExpired     = errors.New("passcode expired")
)

const (
	alphabet    = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	partLength  = 4
	separator   = "-"
	maxAttempts = 1000
)

// Passcode is one access_passcodes row.
type Passcode struct {
	ID        int64
	Code      string
	QuotaGB   float64
	IssuedBy  int64
	ExpiresAt *time.Time
	Used      bool
	UsedBy    int64
	UsedAt    *time.Time
	CreatedAt time.Time
}

// Redemption is the result of a successful Redeem.
type Redemption struct {
	Code    string
	QuotaGB float64
	Usage   quota.Usage
}

// Service issues and redeems passcodes.
type Service struct {
	db        *database.DB
	ledger    *quota.Ledger
	defaultGB float64
	now       func() time.Time
	random    io.Reader
}

// New returns a Service. Users redeeming without a quota row are provisioned
// with defaultGB first.
func New(db *database.DB, ledger *quota.Ledger, defaultGB float64) *Service {
	return &Service{db: db, ledger: ledger, defaultGB: defaultGB, now: time.Now, random: rand.Reader}
}

// WithClock overrides the time source. Intended for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Normalize trims and upper-cases user input.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Issue creates a new code worth quotaGB. A zero expiresIn means the code
// never expires.
func (s *Service) Issue(ctx context.Context, adminID int64, quotaGB float64, expiresIn time.Duration) (Passcode, error) {
	if quotaGB <= 0 || math.IsNaN(quotaGB) || math.IsInf(quotaGB, 0) {
		return Passcode{}, services.Wrap(services.ErrValidation, "passcode", "issue", "quota must be positive", nil)
	}
	if expiresIn < 0 {
		return Passcode{}, services.Wrap(services.ErrValidation, "passcode", "issue", "expiry must not be negative", nil)
	}

	now := s.now().UTC()
	issued := Passcode{QuotaGB: quotaGB, IssuedBy: adminID, CreatedAt: now}
	if expiresIn > 0 {
		expires := now.Add(expiresIn)
		issued.ExpiresAt = &expires
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		code, err := s.generate()
		if err != nil {
			return Passcode{}, fmt.Errorf("generate passcode: %w", err)
		}
		var exists int
		err = s.db.QueryRow(ctx, `SELECT 1 FROM access_passcodes WHERE access_passcode = ?`, code).Scan(&exists)
		if err == nil {
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return Passcode{}, services.Wrap(services.ErrStoreUnavailable, "passcode", "issue", "lookup", err)
		}

		res, err := s.db.Exec(ctx,
			`INSERT INTO access_passcodes (access_passcode, access_passcode_quota_gb, access_passcode_issued_by,
			   access_passcode_expires_at, created_at)
			 VALUES (?, ?, ?, ?, ?)`,
			code, quotaGB, adminID, database.NullableTime(issued.ExpiresAt), database.FormatTime(now))
		if err != nil {
			return Passcode{}, services.Wrap(services.ErrStoreUnavailable, "passcode", "issue", "insert", err)
		}
		issued.ID, _ = res.LastInsertId()
		issued.Code = code
		return issued, nil
	}
	return Passcode{}, errors.New("could not generate unique passcode")
}

func (s *Service) generate() (string, error) {
	var b strings.Builder
	limit := big.NewInt(int64(len(alphabet)))
	for i := 0; i < partLength*2; i++ {
		if i == partLength {
			b.WriteString(separator)
		}
		n, err := rand.Int(s.random, limit)
		if err != nil {
			return "", err
		}
		b.WriteByte(alphabet[n.Int64()])
	}
	return b.String(), nil
}

// Redeem consumes code for userID and credits its quota. Marking the code used
// and crediting happen in one transaction.
func (s *Service) Redeem(ctx context.Context, userID int64, code string) (Redemption, error) {
	code = Normalize(code)
	if code == "" {
		return Redemption{}, ErrInvalid
	}
	now := s.now().UTC()

	var redeemed Redemption
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		row, err := scanPasscode(tx.QueryRowContext(ctx, `SELECT `+passcodeColumns+` FROM access_passcodes WHERE access_passcode = ?`, code))
		if errors.Is(err, sql.ErrNoRows) {
			return ErrInvalid
		}
		if err != nil {
			return services.Wrap(services.ErrStoreUnavailable, "passcode", "redeem", "lookup", err)
		}
		if row.Used {
			return ErrAlreadyUsed
		}
		if row.ExpiresAt != nil && !now.Before(*row.ExpiresAt) {
			return ErrExpired
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE access_passcodes
			 SET access_passcode_is_used = 1, access_passcode_used_by = ?, access_passcode_used_at = ?
			 WHERE access_passcode_id = ? AND access_passcode_is_used = 0`,
			userID, database.FormatTime(now), row.ID)
		if err != nil {
			return services.Wrap(services.ErrStoreUnavailable, "passcode", "redeem", "mark used", err)
		}
		if affected, _ := res.RowsAffected(); affected != 1 {
			return ErrAlreadyUsed
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO user_quota (user_id, user_quota_total_gb, used_quota_gb, user_quota_last_updated)
			 VALUES (?, ?, 0, ?)`,
			userID, s.defaultGB, database.FormatTime(now)); err != nil {
			return services.Wrap(services.ErrStoreUnavailable, "passcode", "redeem", "provision quota", err)
		}
		if err := quota.CreditTx(ctx, tx, userID, row.QuotaGB, now); err != nil {
			return err
		}
		redeemed = Redemption{Code: code, QuotaGB: row.QuotaGB}
		return nil
	})
	if err != nil {
		return Redemption{}, err
	}

	usage, err := s.ledger.CheckRemaining(ctx, userID)
	if err != nil {
		return Redemption{}, err
	}
	redeemed.Usage = usage
	return redeemed, nil
}

// List returns the newest codes first.
func (s *Service) List(ctx context.Context, limit int) ([]Passcode, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx, `SELECT `+passcodeColumns+` FROM access_passcodes ORDER BY access_passcode_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, services.Wrap(services.ErrStoreUnavailable, "passcode", "list", "", err)
	}
	defer rows.Close()

	var codes []Passcode
	for rows.Next() {
		p, err := scanPasscode(rows)
		if err != nil {
			return nil, services.Wrap(services.ErrStoreUnavailable, "passcode", "scan", "", err)
		}
		codes = append(codes, p)
	}
	return codes, rows.Err()
}

const passcodeColumns = `access_passcode_id, access_passcode, access_passcode_quota_gb, access_passcode_issued_by,
	access_passcode_expires_at, access_passcode_is_used, access_passcode_used_by, access_passcode_used_at, created_at`

func scanPasscode(scanner database.Scanner) (Passcode, error) {
	var (
		p          Passcode
		expiresRaw sql.NullString
		used       int
		usedBy     sql.NullInt64
		usedAtRaw  sql.NullString
		createdRaw sql.NullString
	)
	if err := scanner.Scan(&p.ID, &p.Code, &p.QuotaGB, &p.IssuedBy, &expiresRaw, &used, &usedBy, &usedAtRaw, &createdRaw); err != nil {
		return Passcode{}, err
	}
	p.Used = used != 0
	p.UsedBy = usedBy.Int64
	if expiresRaw.Valid {
		if ts, err := database.ParseTime(expiresRaw.String); err == nil {
			p.ExpiresAt = &ts
		}
	}
	if usedAtRaw.Valid {
		if ts, err := database.ParseTime(usedAtRaw.String); err == nil {
			p.UsedAt = &ts
		}
	}
	if ts, err := database.ParseTime(createdRaw.String); err == nil {
		p.CreatedAt = ts
	}
	return p, nil
}
