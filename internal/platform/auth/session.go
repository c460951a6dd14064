package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type contextKey string

const sessionKey contextKey = "session"

// Session identifies the caller of a request. It is resolved once by the
// auth middleware and passed down explicitly through the request context.
type Session struct {
	UserID    string `json:"user_id"`
	ProfileID string `json:"profile_id"`
	Role      Role   `json:"role"`
	Email     string `json:"email"`
}

// WithSession returns a copy of ctx carrying s.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

// SessionFromContext returns the session stored by the auth middleware.
func SessionFromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionKey).(Session)
	return s, ok
}

type Claims struct {
	jwt.RegisteredClaims
	ProfileID string `json:"profile_id"`
	Role      Role   `json:"role"`
	Email     string `json:"email"`
}

func (c *Claims) Session() Session {
	return Session{UserID: c.Subject, ProfileID: c.ProfileID, Role: c.Role, Email: c.Email}
}

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrRevokedToken = errors.New("token revoked")
)

// Tokens issues and verifies HS256 session tokens.
type Tokens struct {
	key     []byte
	ttl     time.Duration
	revoked *Revocations
	now     func() time.Time
}

// NewTokens creates a token service. revoked may be nil.
func NewTokens(key []byte, ttl time.Duration, revoked *Revocations) *Tokens {
	return &Tokens{key: key, ttl: ttl, revoked: revoked, now: time.Now}
}

// TTL is the lifetime of issued tokens.
func (t *Tokens) TTL() time.Duration { return t.ttl }

// Issue signs a token for s and returns it with its expiry.
func (t *Tokens) Issue(s Session) (string, time.Time, error) {
	now := t.now()
	exp := now.Add(t.ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   s.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		ProfileID: s.ProfileID,
		Role:      s.Role,
		Email:     s.Email,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// Verify parses tokenStr, checks signature, expiry, role and revocation.
func (t *Tokens) Verify(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
		return t.key, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithTimeFunc(t.now))
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" || !claims.Role.Valid() {
		return nil, ErrInvalidToken
	}
	if t.revoked != nil && t.revoked.IsRevoked(claims.ID) {
		return nil, ErrRevokedToken
	}
	return claims, nil
}

// Recheck reports whether claims verified earlier still authorize: it
// returns ErrInvalidToken once they expired and ErrRevokedToken after
// sign-out. Long-lived connections call it periodically.
func (t *Tokens) Recheck(claims *Claims) error {
	if claims.ExpiresAt != nil && !t.now().Before(claims.ExpiresAt.Time) {
		return ErrInvalidToken
	}
	if t.revoked != nil && t.revoked.IsRevoked(claims.ID) {
		return ErrRevokedToken
	}
	return nil
}

// Revoke invalidates the token described by claims until it would have expired.
func (t *Tokens) Revoke(claims *Claims) {
	if t.revoked == nil || claims == nil || claims.ID == "" {
		return
	}
	exp := t.now().Add(t.ttl)
	if claims.ExpiresAt != nil {
		exp = claims.ExpiresAt.Time
	}
	t.revoked.Revoke(claims.ID, claims.Subject, exp)
}
