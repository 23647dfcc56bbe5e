package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/scenecheck/internal/logging"
)

// AccessLog writes one structured line per request. The query string is not
// logged because image URLs may carry signed tokens.
func AccessLog(logger *zap.Logger) gin.HandlerFunc {
	logger = logger.Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if id := logging.RequestIDFromContext(c.Request.Context()); id != "" {
			fields = append(fields, zap.String("request_id", id))
		}

		switch status := c.Writer.Status(); {
		case status >= 500:
			logger.Error("request completed", fields...)
		case status >= 400:
			logger.Warn("request completed", fields...)
		default:
			logger.Info("request completed", fields...)
		}
	}
}

// Recovery converts panics into a JSON 500 and logs them.
func Recovery(logger *zap.Logger) gin.HandlerFunc {
	logger = logger.Named("http")
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.Error("panic recovered",
			zap.Any("panic", recovered),
			zap.String("request_id", logging.RequestIDFromContext(c.Request.Context())),
		)
		c.AbortWithStatusJSON(500, gin.H{
			"error":      "internal server error",
			"code":       "internal_error",
			"request_id": logging.RequestIDFromContext(c.Request.Context()),
		})
	})
}
