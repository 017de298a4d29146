package rest

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/UrielMangisto/ShoppingWebsite-sub000/pkg/errors"
)

// TokenSource supplies the bearer token attached to every backend request.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticTokenSource returns the same token on every call, with no local
// validation. Useful for opaque API keys and tests.
type StaticTokenSource string

// Token implements TokenSource.
func (s StaticTokenSource) Token(ctx context.Context) (string, error) {
	return string(s), nil
}

// SessionTokenSource holds a session JWT and checks its expiry locally before
// every request. The signature is NOT verified here (the backend does that);
// the local check only exists so an expired session fails fast with an
// authorization error instead of burning a network round trip.
type SessionTokenSource struct {
	raw string
	// now is overridable in tests.
	now func() time.Time
}

// NewSessionTokenSource creates a token source for the given session JWT.
func NewSessionTokenSource(raw string) *SessionTokenSource {
	return &SessionTokenSource{raw: raw, now: time.Now}
}

// Token implements TokenSource. It returns an unauthorized error if the JWT
// carries an exp claim in the past.
func (s *SessionTokenSource) Token(ctx context.Context) (string, error) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(s.raw, claims); err != nil {
		return "", apperrors.Unauthorized(fmt.Sprintf("malformed session token: %v", err))
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return "", apperrors.Unauthorized("session token has an invalid exp claim")
	}
	if exp != nil && exp.Before(s.now()) {
		return "", apperrors.Unauthorized("session token expired")
	}

	return s.raw, nil
}
