package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Verifier validates an opaque bearer credential and returns the caller's
// stable identity (an email address).
type Verifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// Claims are the ID token claims the service relies on.
type Claims struct {
	jwt.RegisteredClaims
	Email         string `json:"email,omitempty"`
	EmailVerified *bool  `json:"email_verified,omitempty"`
}

var (
	errMissingIdentity = errors.New("token carries no email identity")
	errUnverifiedEmail = errors.New("token email is not verified")
)

func identityFromClaims(claims *Claims, allowSubject bool) (string, error) {
	if claims.EmailVerified != nil && !*claims.EmailVerified {
		return "", errUnverifiedEmail
	}
	if email := strings.TrimSpace(claims.Email); email != "" {
		return strings.ToLower(email), nil
	}
	if allowSubject && strings.TrimSpace(claims.Subject) != "" {
		return claims.Subject, nil
	}
	return "", errMissingIdentity
}
