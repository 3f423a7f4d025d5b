package api

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoExpiry is returned when a token carries no exp claim.
var ErrNoExpiry = errors.New("token has no expiry claim")

// TokenExpiry reads the exp claim of a bearer token without verifying its
// signature. The client has no signing key; this exists only to warn the
// user when a timed attempt would outlive the token.
func TokenExpiry(raw string) (time.Time, error) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err != nil {
		return time.Time{}, fmt.Errorf("parse token: %w", err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, ErrNoExpiry
	}
	return claims.ExpiresAt.Time, nil
}

// TokenOutlastedBy reports whether the token expires before a time limit of
// the given length, starting now, would elapse.
func TokenOutlastedBy(raw string, limit time.Duration) bool {
	exp, err := TokenExpiry(raw)
	if err != nil {
		return false
	}
	return time.Until(exp) < limit
}
