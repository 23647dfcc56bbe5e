package handlers

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/example/scenecheck/internal/middleware"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	Service        ValidationService
	AuthMiddleware gin.HandlerFunc
	CORSOrigins    []string
	Logger         *zap.Logger
}

// NewRouter builds the engine with the shared middleware chain, the API routes
// and the Prometheus endpoint.
func NewRouter(opts RouterOptions) *gin.Engine {
	r := gin.New()
	r.Use(
		middleware.RequestID(),
		middleware.AccessLog(opts.Logger),
		middleware.Recovery(opts.Logger),
		middleware.Metrics(),
	)

	if len(opts.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     opts.CORSOrigins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders:     []string{"Authorization", "Content-Type", middleware.HeaderRequestID},
			ExposeHeaders:    []string{middleware.HeaderRequestID},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Successful validations embed the whole image as base64.
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	RegisterRoutes(r, opts.Service, opts.AuthMiddleware, opts.Logger)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found", "code": "not_found"})
	})
	return r
}
