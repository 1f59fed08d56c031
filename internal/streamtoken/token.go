// Package streamtoken issues and verifies the short-lived signed tokens that
// gate per-file stream access.
//
// A token is the standard base64 encoding of
// "<userId>:<contentFileId>:<issuedEpochMs>:<hexHmacSha256>" where the MAC
// covers the first three colon-joined fields. Tokens authorize identity only;
// quota is re-checked on every request.
package streamtoken

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

// ErrInvalid is returned for every rejected token. Callers cannot tell a
// forged token from an expired one.
var ErrInvalid = errors.New("invalid stream token")

const (
	// DefaultTTL is the validity window of an issued token.
	DefaultTTL = 10 * time.Minute
	// MaxClockSkew bounds how far in the future an issue time may lie.
	MaxClockSkew = 30 * time.Second
)

// Grant is the verified content of a token.
type Grant struct {
	UserID        int64
	ContentFileID int64
	IssuedAt      time.Time
}

// Codec signs and verifies tokens with a key fixed at construction.
type Codec struct {
	key []byte
	ttl time.Duration
}

// New returns a Codec. A non-positive ttl selects DefaultTTL.
func New(secret string, ttl time.Duration) (*Codec, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("stream token secret is empty")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Codec{key: []byte(secret), ttl: ttl}, nil
}

// TTL returns the validity window.
func (c *Codec) TTL() time.Duration {
	return c.ttl
}

// Issue creates a token for userID and contentFileID stamped at now.
func (c *Codec) Issue(userID, contentFileID int64, now time.Time) string {
	payload := strconv.FormatInt(userID, 10) + ":" +
		strconv.FormatInt(contentFileID, 10) + ":" +
		strconv.FormatInt(now.UnixMilli(), 10)
	return base64.StdEncoding.EncodeToString([]byte(payload + ":" + c.sign(payload)))
}

// Verify decodes token and checks its signature and age against now.
func (c *Codec) Verify(token string, now time.Time) (Grant, error) {
	raw, err := base64.StdEncoding.Strict().DecodeString(token)
	if err != nil || base64.StdEncoding.EncodeToString(raw) != token {
		return Grant{}, ErrInvalid
	}
	parts := strings.Split(string(raw), ":")
	if len(parts) != 4 {
		return Grant{}, ErrInvalid
	}

	userID, ok := parseDecimal(parts[0])
	if !ok {
		return Grant{}, ErrInvalid
	}
	contentFileID, ok := parseDecimal(parts[1])
	if !ok {
		return Grant{}, ErrInvalid
	}
	issuedMs, ok := parseDecimal(parts[2])
	if !ok {
		return Grant{}, ErrInvalid
	}

	// The signature must match the lowercase hex text exactly.
	want := c.sign(strings.Join(parts[:3], ":"))
	if !hmac.Equal([]byte(parts[3]), []byte(want)) {
		return Grant{}, ErrInvalid
	}

	issued := time.UnixMilli(issuedMs)
	age := now.Sub(issued)
	if age >= c.ttl || age < -MaxClockSkew {
		return Grant{}, ErrInvalid
	}

	return Grant{UserID: userID, ContentFileID: contentFileID, IssuedAt: issued}, nil
}

func (c *Codec) mac(payload string) []byte {
	h := hmac.New(sha256.New, c.key)
	h.Write([]byte(payload))
	return h.Sum(nil)
}

func (c *Codec) sign(payload string) string {
	return hex.EncodeToString(c.mac(payload))
}

// parseDecimal accepts only plain non-negative decimal digits.
func parseDecimal(value string) (int64, bool) {
	if value == "" {
		return 0, false
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
