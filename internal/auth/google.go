package auth

import (
	"context"
	"fmt"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// GoogleIssuers are the issuer values Google uses for ID tokens.
var GoogleIssuers = []string{"accounts.google.com", "https://accounts.google.com"}

// GoogleVerifier validates Google-issued ID tokens against Google's JWKS.
type GoogleVerifier struct {
	keyfunc  func(ctx context.Context) jwt.Keyfunc
	audience string
}

// NewGoogleVerifier fetches the JWKS at jwksURL and keeps it refreshed in the
// background for the lifetime of ctx. audience is the OAuth client id; when
// empty the audience is not checked.
func NewGoogleVerifier(ctx context.Context, jwksURL, audience string) (*GoogleVerifier, error) {
	jwks, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("failed to create JWKS client for %s: %w", jwksURL, err)
	}
	return &GoogleVerifier{keyfunc: jwks.KeyfuncCtx, audience: audience}, nil
}

// Verify checks signature, issuer, audience and expiry, then returns the
// token's email.
func (v *GoogleVerifier) Verify(ctx context.Context, tokenString string) (string, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, v.keyfunc(ctx), opts...)
	if err != nil {
		return "", fmt.Errorf("token validation failed: %w", err)
	}
	if !token.Valid {
		return "", fmt.Errorf("token validation failed")
	}
	if !validIssuer(claims.Issuer) {
		return "", fmt.Errorf("unauthorized issuer: %s", claims.Issuer)
	}
	return identityFromClaims(claims, false)
}

func validIssuer(issuer string) bool {
	for _, iss := range GoogleIssuers {
		if issuer == iss {
			return true
		}
	}
	return false
}

var _ Verifier = (*GoogleVerifier)(nil)
