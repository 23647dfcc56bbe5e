// Package middleware contains the Gin middleware shared by all routes.
package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/example/scenecheck/internal/logging"
)

// HeaderRequestID carries the correlation id in requests and responses.
const HeaderRequestID = "X-Request-ID"

const maxRequestIDLen = 128

// RequestID propagates a client supplied X-Request-ID or generates one, and
// stores it on the request context.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(HeaderRequestID))
		if id == "" || len(id) > maxRequestIDLen {
			id = uuid.NewString()
		}
		c.Writer.Header().Set(HeaderRequestID, id)
		c.Request = c.Request.WithContext(logging.ContextWithRequestID(c.Request.Context(), id))
		c.Next()
	}
}
