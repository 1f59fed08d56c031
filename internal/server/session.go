package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"streamgate/internal/services"
)

// ErrNoSession reports a request without a verifiable session.
var ErrNoSession = errors.New("no valid session")

// SessionClaims are the claims streamgate reads from a login session token.
// The user id is taken from user_id, falling back to a numeric subject.
type SessionClaims struct {
	UserID int64 `json:"user_id,omitempty"`
	jwt.RegisteredClaims
}

// SessionVerifier checks HS256 session tokens from the login service.
type SessionVerifier struct {
	secret     []byte
	cookieName string
	parser     *jwt.Parser
}

// NewSessionVerifier returns a verifier for tokens signed with secret.
func NewSessionVerifier(secret, cookieName string) *SessionVerifier {
	return &SessionVerifier{
		secret:     []byte(secret),
		cookieName: cookieName,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(30*time.Second),
		),
	}
}

// Verify parses a raw token and returns the session user id.
func (v *SessionVerifier) Verify(raw string) (int64, error) {
	if strings.TrimSpace(raw) == "" {
		return 0, ErrNoSession
	}
	claims := &SessionClaims{}
	_, err := v.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrNoSession, err)
	}
	userID := claims.UserID
	if userID == 0 && claims.Subject != "" {
		if parsed, err := strconv.ParseInt(claims.Subject, 10, 64); err == nil {
			userID = parsed
		}
	}
	if userID <= 0 {
		return 0, fmt.Errorf("%w: token carries no user id", ErrNoSession)
	}
	return userID, nil
}

// FromRequest reads the session token from the Authorization header or the
// session cookie, in that order.
func (v *SessionVerifier) FromRequest(r *http.Request) (int64, error) {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return v.Verify(strings.TrimSpace(strings.TrimPrefix(auth, "Bearer ")))
	}
	if v.cookieName != "" {
		if cookie, err := r.Cookie(v.cookieName); err == nil {
			return v.Verify(cookie.Value)
		}
	}
	return 0, ErrNoSession
}

// Middleware rejects requests without a valid session and stores the user id
// on the request context.
func (v *SessionVerifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		userID, err := v.FromRequest(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r.WithContext(services.WithUserID(r.Context(), userID)))
	})
}

// IssueSession signs a session token. The login service owns issuance in
// production; this is used by tests and the operator CLI.
func IssueSession(secret string, userID int64, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := SessionClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
