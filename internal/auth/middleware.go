package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/scenecheck/internal/apperrors"
	"github.com/example/scenecheck/internal/logging"
)

type contextKey string

const identityKey contextKey = "authIdentity"

// GetIdentity retrieves the authenticated identity from context.
func GetIdentity(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	if value, ok := ctx.Value(identityKey).(string); ok && value != "" {
		return value, true
	}
	return "", false
}

// WithIdentity returns a copy of ctx carrying identity.
func WithIdentity(ctx context.Context, identity string) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// Middleware validates bearer tokens with verifier and injects the caller's
// identity. Every failure is answered with the same generic 401; the verifier's
// detail only reaches the log.
func Middleware(verifier Verifier, timeout time.Duration, logger *zap.Logger) gin.HandlerFunc {
	logger = logger.Named("auth")

	return func(c *gin.Context) {
		tokenString, err := extractBearerToken(c.GetHeader("Authorization"))
		if err != nil {
			unauthorized(c, err)
			return
		}

		ctx := c.Request.Context()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		identity, err := verifier.Verify(ctx, tokenString)
		if err == nil && ctx.Err() != nil {
			err = ctx.Err()
		}
		if err != nil {
			logging.WithOperation(logger, "auth.verify", logging.RequestIDFromContext(c.Request.Context())).
				Info("credential rejected", zap.Error(err))
			unauthorized(c, err)
			return
		}

		c.Request = c.Request.WithContext(WithIdentity(c.Request.Context(), identity))
		c.Set(string(identityKey), identity)

		c.Next()
	}
}

func extractBearerToken(header string) (string, error) {
	if header == "" {
		return "", errors.New("authorization header required")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization header")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("token missing")
	}
	return token, nil
}

func unauthorized(c *gin.Context, cause error) {
	appErr := apperrors.Unauthorized(cause)
	c.AbortWithStatusJSON(apperrors.HTTPStatus(appErr), gin.H{
		"error":      appErr.Message,
		"code":       appErr.Kind,
		"request_id": logging.RequestIDFromContext(c.Request.Context()),
	})
}
