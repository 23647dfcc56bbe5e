package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/scenecheck/internal/apperrors"
	"github.com/example/scenecheck/internal/auth"
	"github.com/example/scenecheck/internal/logging"
	"github.com/example/scenecheck/internal/usecase"
)

// MaxRequestBodySize caps the JSON body of POST /validate.
const MaxRequestBodySize = 64 << 10

// ValidationService is the subset of the use case the handlers depend on.
type ValidationService interface {
	Validate(ctx context.Context, owner, sourceURL string) (*usecase.ValidationResult, error)
	History(ctx context.Context, owner string) ([]usecase.HistoryEntry, error)
}

// ValidateRequest is the body of POST /validate.
type ValidateRequest struct {
	ImageURL string `json:"image_url" binding:"required,url"`
}

type handler struct {
	svc    ValidationService
	logger *zap.Logger
}

// RegisterRoutes wires the HTTP handlers to the Gin router. authMiddleware
// guards every route that touches user data.
func RegisterRoutes(router *gin.Engine, svc ValidationService, authMiddleware gin.HandlerFunc, logger *zap.Logger) {
	h := &handler{svc: svc, logger: logger.Named("handlers")}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.POST("/validate", authMiddleware, h.validate)
	router.GET("/history", authMiddleware, h.history)
}

func (h *handler) validate(c *gin.Context) {
	owner, ok := auth.GetIdentity(c.Request.Context())
	if !ok {
		h.fail(c, apperrors.Unauthorized(nil))
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxRequestBodySize)
	var req ValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, apperrors.New(apperrors.KindBadRequest, "request body must be {\"image_url\": <absolute url>}", err))
		return
	}

	result, err := h.svc.Validate(c.Request.Context(), owner, req.ImageURL)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *handler) history(c *gin.Context) {
	owner, ok := auth.GetIdentity(c.Request.Context())
	if !ok {
		h.fail(c, apperrors.Unauthorized(nil))
		return
	}

	entries, err := h.svc.History(c.Request.Context(), owner)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

// fail writes the error envelope. Only the public message of err is rendered.
func (h *handler) fail(c *gin.Context, err error) {
	status := apperrors.HTTPStatus(err)
	requestID := logging.RequestIDFromContext(c.Request.Context())

	if status >= http.StatusInternalServerError {
		logging.WithOperation(h.logger, "handlers."+c.Request.Method+" "+c.FullPath(), requestID).
			Error("request failed", zap.Int("status", status), zap.Error(err))
	}

	c.AbortWithStatusJSON(status, gin.H{
		"error":      apperrors.PublicMessage(err),
		"code":       apperrors.KindOf(err),
		"request_id": requestID,
	})
}
