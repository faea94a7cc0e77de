// Package auth issues and verifies the signed session tokens that guard both
// the HTTP API and the realtime handshake. Verification is stateless apart
// from the user lookup; tokens are never stored.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jobtrackhq/jobtrack/internal/app/domain/user"
	"github.com/jobtrackhq/jobtrack/internal/app/storage"
)

var (
	// ErrTokenMalformed indicates the token could not be parsed or decoded.
	ErrTokenMalformed = errors.New("token malformed")
	// ErrTokenInvalid indicates the signature check failed, the token is
	// expired, or the referenced user no longer exists.
	ErrTokenInvalid = errors.New("token invalid")
)

// Claims carried in a session token.
type Claims struct {
	UserID string    `json:"user_id"`
	Email  string    `json:"email,omitempty"`
	Role   user.Role `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Issuer creates signed session tokens.
type Issuer struct {
	secret []byte
	ttl    time.Duration
}

// NewIssuer constructs an issuer. A non-positive ttl defaults to 24 hours.
func NewIssuer(secret string, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Issuer{secret: []byte(secret), ttl: ttl}
}

// Issue signs a token binding the user's identity for the configured TTL.
func (i *Issuer) Issue(u user.User) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: u.ID,
		Email:  u.Email,
		Role:   u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
			Subject:   u.ID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verifier validates session tokens and resolves them to user records. The
// same verifier guards HTTP requests and realtime handshakes with identical
// semantics.
type Verifier struct {
	secret []byte
	users  storage.UserStore
}

// NewVerifier constructs a verifier over the shared signing secret and the
// user store used to resolve token subjects.
func NewVerifier(secret string, users storage.UserStore) *Verifier {
	return &Verifier{secret: []byte(secret), users: users}
}

// Verify checks the token signature and expiry, then resolves the referenced
// user. It has no side effects.
func (v *Verifier) Verify(ctx context.Context, token string) (user.User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return user.User{}, ErrTokenMalformed
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenMalformed) {
			return user.User{}, ErrTokenMalformed
		}
		return user.User{}, ErrTokenInvalid
	}
	if !parsed.Valid {
		return user.User{}, ErrTokenInvalid
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || claims.UserID == "" {
		return user.User{}, ErrTokenInvalid
	}

	u, err := v.users.GetUser(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return user.User{}, ErrTokenInvalid
		}
		return user.User{}, err
	}
	return u, nil
}

// IsAuthError reports whether the error belongs to the token taxonomy.
// Callers surface both kinds as a generic authentication failure.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrTokenMalformed) || errors.Is(err, ErrTokenInvalid)
}
