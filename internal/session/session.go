package session

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrLoginRequired is returned when no usable bearer token is available.
// Callers must stop before issuing any data request.
var ErrLoginRequired = errors.New("login required: no valid token")

// Source describes where the bearer token comes from.
type Source struct {
	// Value is an inline token provided via flags or environment.
	Value string
	// File points to a file containing the token. When set it takes
	// precedence over Value.
	File string
}

// Session carries the credentials for authenticated backend calls.
type Session struct {
	token     string
	expiresAt time.Time
}

var now = time.Now

// Load resolves the token from src and checks it is still usable.
func Load(src Source) (*Session, error) {
	value := src.Value

	file := strings.TrimSpace(src.File)
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("reading token from file %q: %w", file, err)
		}
		value = string(data)
	}

	return New(value)
}

// New builds a session from a raw token. JWT tokens are inspected without
// signature verification, only to detect expiry early. Opaque tokens are
// accepted as they are.
func New(token string) (*Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrLoginRequired
	}

	s := &Session{token: token}

	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return s, nil
	}

	if claims.ExpiresAt != nil {
		s.expiresAt = claims.ExpiresAt.Time
		if !s.expiresAt.After(now()) {
			return nil, fmt.Errorf("%w: token expired at %s", ErrLoginRequired, s.expiresAt.Format(time.RFC3339))
		}
	}

	return s, nil
}

// Token returns the bearer token.
func (s *Session) Token() string {
	if s == nil {
		return ""
	}
	return s.token
}

// ExpiresAt returns the token expiry, zero when unknown.
func (s *Session) ExpiresAt() time.Time {
	if s == nil {
		return time.Time{}
	}
	return s.expiresAt
}
