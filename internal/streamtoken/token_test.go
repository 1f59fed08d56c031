package streamtoken_test

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	"streamgate/internal/streamtoken"
)

func newCodec(t *testing.T) *streamtoken.Codec {
	t.Helper()
	codec, err := streamtoken.New("test-stream-secret-123", 10*time.Minute)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return codec
}

func TestIssueVerifyRoundTrip(t *testing.T) {
	codec := newCodec(t)
	now := time.UnixMilli(1_700_000_000_000)

	token := codec.Issue(42, 7, now)
	grant, err := codec.Verify(token, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if grant.UserID != 42 || grant.ContentFileID != 7 {
		t.Fatalf("unexpected grant: %+v", grant)
	}
	if !grant.IssuedAt.Equal(now) {
		t.Fatalf("unexpected issued at: %v", grant.IssuedAt)
	}
}

func TestWireFormat(t *testing.T) {
	codec := newCodec(t)
	now := time.UnixMilli(1_700_000_000_000)

	raw, err := base64.StdEncoding.DecodeString(codec.Issue(1, 2, now))
	if err != nil {
		t.Fatalf("expected standard base64: %v", err)
	}
	parts := strings.Split(string(raw), ":")
	if len(parts) != 4 {
		t.Fatalf("expected four fields, got %q", raw)
	}
	if parts[0] != "1" || parts[1] != "2" || parts[2] != "1700000000000" {
		t.Fatalf("unexpected fields: %v", parts)
	}
	if len(parts[3]) != 64 {
		t.Fatalf("expected hex sha256 signature, got %q", parts[3])
	}
}

func TestVerifyTTLBoundary(t *testing.T) {
	codec := newCodec(t)
	now := time.UnixMilli(1_700_000_000_000)
	token := codec.Issue(1, 1, now)

	if _, err := codec.Verify(token, now.Add(10*time.Minute-time.Millisecond)); err != nil {
		t.Fatalf("expected token valid just before ttl: %v", err)
	}
	if _, err := codec.Verify(token, now.Add(10*time.Minute)); !errors.Is(err, streamtoken.ErrInvalid) {
		t.Fatalf("expected token invalid at exactly ttl, got %v", err)
	}
}

func TestVerifyRejectsFutureTokens(t *testing.T) {
	codec := newCodec(t)
	now := time.UnixMilli(1_700_000_000_000)

	if _, err := codec.Verify(codec.Issue(1, 1, now.Add(10*time.Second)), now); err != nil {
		t.Fatalf("expected small skew accepted: %v", err)
	}
	if _, err := codec.Verify(codec.Issue(1, 1, now.Add(time.Minute)), now); !errors.Is(err, streamtoken.ErrInvalid) {
		t.Fatalf("expected future token rejected, got %v", err)
	}
}

func TestVerifyRejectsSingleCharacterTamper(t *testing.T) {
	codec := newCodec(t)
	now := time.UnixMilli(1_700_000_000_000)
	raw, _ := base64.StdEncoding.DecodeString(codec.Issue(5, 9, now))

	for i := range raw {
		if raw[i] == ':' {
			continue
		}
		mutated := []byte(string(raw))
		if mutated[i] == '1' {
			mutated[i] = '2'
		} else {
			mutated[i] = '1'
		}
		token := base64.StdEncoding.EncodeToString(mutated)
		if _, err := codec.Verify(token, now); !errors.Is(err, streamtoken.ErrInvalid) {
			t.Fatalf("byte %d tamper %q accepted", i, mutated)
		}
	}
}

func TestVerifyRejectsAnyTokenCharacterChange(t *testing.T) {
	codec := newCodec(t)
	now := time.UnixMilli(1_700_000_000_000)
	token := codec.Issue(5, 9, now)
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/="

	for i := range len(token) {
		for _, r := range alphabet {
			if byte(r) == token[i] {
				continue
			}
			mutated := token[:i] + string(r) + token[i+1:]
			if _, err := codec.Verify(mutated, now); !errors.Is(err, streamtoken.ErrInvalid) {
				t.Fatalf("position %d changed to %q accepted: %s", i, r, mutated)
			}
		}
	}

	for _, variant := range []string{token + "\n", token[:4] + "\r\n" + token[4:], " " + token} {
		if _, err := codec.Verify(variant, now); !errors.Is(err, streamtoken.ErrInvalid) {
			t.Fatalf("non-canonical variant %q accepted", variant)
		}
	}
}

func TestVerifyRejectsSignatureCaseChange(t *testing.T) {
	codec := newCodec(t)
	now := time.UnixMilli(1_700_000_000_000)
	raw, _ := base64.StdEncoding.DecodeString(codec.Issue(5, 9, now))
	sigStart := strings.LastIndex(string(raw), ":") + 1

	changed := 0
	for i := sigStart; i < len(raw); i++ {
		if raw[i] < 'a' || raw[i] > 'f' {
			continue
		}
		mutated := []byte(string(raw))
		mutated[i] -= 'a' - 'A'
		token := base64.StdEncoding.EncodeToString(mutated)
		if _, err := codec.Verify(token, now); !errors.Is(err, streamtoken.ErrInvalid) {
			t.Fatalf("uppercased signature %q accepted", mutated)
		}
		changed++
	}
	if changed == 0 {
		t.Fatal("expected the signature to contain hex letters")
	}
}

func TestVerifyRejectsMalformed(t *testing.T) {
	codec := newCodec(t)
	now := time.UnixMilli(1_700_000_000_000)
	valid, _ := base64.StdEncoding.DecodeString(codec.Issue(5, 9, now))
	parts := strings.Split(string(valid), ":")

	cases := map[string]string{
		"not base64":      "%%%",
		"empty":           "",
		"three fields":    base64.StdEncoding.EncodeToString([]byte("1:2:3")),
		"five fields":     base64.StdEncoding.EncodeToString([]byte(string(valid) + ":x")),
		"signed negative": base64.StdEncoding.EncodeToString([]byte("-5:" + strings.Join(parts[1:], ":"))),
		"non decimal ts":  base64.StdEncoding.EncodeToString([]byte("5:9:abc:" + parts[3])),
	}
	for name, token := range cases {
		if _, err := codec.Verify(token, now); !errors.Is(err, streamtoken.ErrInvalid) {
			t.Fatalf("%s: expected ErrInvalid, got %v", name, err)
		}
	}
}

func TestVerifyRejectsOtherKey(t *testing.T) {
	codec := newCodec(t)
	other, err := streamtoken.New("a-different-secret-456", 0)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if other.TTL() != streamtoken.DefaultTTL {
		t.Fatalf("expected default ttl, got %s", other.TTL())
	}
	now := time.Now()
	if _, err := other.Verify(codec.Issue(1, 1, now), now); !errors.Is(err, streamtoken.ErrInvalid) {
		t.Fatalf("expected rejection under different key, got %v", err)
	}
}

func TestNewRejectsEmptySecret(t *testing.T) {
	if _, err := streamtoken.New("  ", time.Minute); err == nil {
		t.Fatal("expected error for empty secret")
	}
}
