package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// HMACVerifier validates HS256 tokens signed with a shared secret. It is meant
// for local development and tests where no identity provider is reachable.
type HMACVerifier struct {
	secret   []byte
	audience string
}

// NewHMACVerifier creates a verifier for the given secret and optional audience.
func NewHMACVerifier(secret, audience string) *HMACVerifier {
	return &HMACVerifier{
		secret:   []byte(strings.TrimSpace(secret)),
		audience: strings.TrimSpace(audience),
	}
}

// Verify returns the email claim, falling back to the subject.
func (v *HMACVerifier) Verify(_ context.Context, tokenString string) (string, error) {
	if len(v.secret) == 0 {
		return "", errors.New("missing JWT secret")
	}

	opts := []jwt.ParserOption{jwt.WithExpirationRequired()}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return v.secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return "", errors.New("invalid token")
	}
	return identityFromClaims(claims, true)
}

var _ Verifier = (*HMACVerifier)(nil)
