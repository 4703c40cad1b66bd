package core

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenClaims carries the decoded identity of a verified bearer token.
type TokenClaims struct {
	Subject string
	Role    string
}

type jwtClaims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// TokenCodec issues and verifies signed, time-limited bearer tokens.
// It holds no mutable state; output depends only on secret, lifetime and clock.
type TokenCodec struct {
	secret   []byte
	lifetime time.Duration
	now      func() time.Time
}

// NewTokenCodec builds a codec with the given HMAC secret and token lifetime.
func NewTokenCodec(secret string, lifetime time.Duration) *TokenCodec {
	return &TokenCodec{
		secret:   []byte(secret),
		lifetime: lifetime,
		now:      time.Now,
	}
}

// WithClock overrides the codec clock. Test hook.
func (tc *TokenCodec) WithClock(now func() time.Time) *TokenCodec {
	tc.now = now
	return tc
}

// Issue produces a signed token for subjectID expiring after the configured lifetime.
func (tc *TokenCodec) Issue(subjectID, role string) (string, error) {
	if subjectID == "" {
		return "", errors.New("empty subject id")
	}
	now := tc.now()
	claims := jwtClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tc.lifetime)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(tc.secret)
}

// Verify validates signature and expiry, returning the decoded claims.
// Malformed or wrongly-signed tokens yield ErrInvalidToken; a correctly
// signed but expired token yields ErrExpiredToken.
func (tc *TokenCodec) Verify(token string) (TokenClaims, error) {
	var claims jwtClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return tc.secret, nil
	}, jwt.WithTimeFunc(tc.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return TokenClaims{}, ErrExpiredToken
		}
		return TokenClaims{}, ErrInvalidToken
	}
	if !parsed.Valid || claims.Subject == "" {
		return TokenClaims{}, ErrInvalidToken
	}
	return TokenClaims{Subject: claims.Subject, Role: claims.Role}, nil
}
