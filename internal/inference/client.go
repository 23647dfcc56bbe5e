package inference

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/example/scenecheck/internal/apperrors"
	"github.com/example/scenecheck/internal/logging"
)

const releaseTimeout = 10 * time.Second

// Client turns image bytes into a Judgement using a Provider.
type Client struct {
	provider   Provider
	model      string
	prompt     string
	stagingDir string
	timeout    time.Duration
	logger     *zap.Logger
}

// Options configures a Client. An empty StagingDir uses os.TempDir.
type Options struct {
	Model      string
	Prompt     string
	StagingDir string
	Timeout    time.Duration
}

// NewClient constructs a new inference client.
func NewClient(provider Provider, opts Options, logger *zap.Logger) *Client {
	return &Client{
		provider:   provider,
		model:      opts.Model,
		prompt:     opts.Prompt,
		stagingDir: opts.StagingDir,
		timeout:    opts.Timeout,
		logger:     logger.Named("inference_client"),
	}
}

// Judge stages data in a temporary file, uploads it, asks the model for a
// verdict and parses the answer. The staged file is removed on every path.
func (c *Client) Judge(ctx context.Context, data []byte, contentType string) (*Judgement, error) {
	requestID := logging.RequestIDFromContext(ctx)
	opLogger := logging.WithOperation(c.logger, "inference.judge", requestID)

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	path, cleanup, err := c.stage(data)
	if err != nil {
		wrapped := logging.NewOperationError("inference.stage", requestID, err)
		opLogger.Error("failed to stage image", zap.Error(wrapped))
		return nil, wrapped
	}
	defer cleanup()

	ref, err := c.provider.Upload(ctx, path, contentType)
	if err != nil {
		opLogger.Error("upload failed", zap.Error(err))
		return nil, apperrors.Inference(logging.NewOperationError("inference.upload", requestID, err))
	}
	defer c.release(ref, opLogger)

	text, err := c.provider.Generate(ctx, c.model, c.prompt, ref)
	if err != nil {
		opLogger.Error("generation failed", zap.Error(err), zap.String("model", c.model))
		return nil, apperrors.Inference(logging.NewOperationError("inference.generate", requestID, err))
	}

	judgement, err := ParseJudgement(text)
	if err != nil {
		opLogger.Warn("model returned malformed judgement", zap.Error(err), zap.Int("response_length", len(text)))
		return nil, apperrors.MalformedResponse(err)
	}
	return judgement, nil
}

func (c *Client) stage(data []byte) (string, func(), error) {
	file, err := os.CreateTemp(c.stagingDir, "scenecheck-*.img")
	if err != nil {
		return "", nil, err
	}
	cleanup := func() {
		_ = file.Close()
		if err := os.Remove(file.Name()); err != nil && !os.IsNotExist(err) {
			c.logger.Warn("failed to remove staged image", zap.String("path", file.Name()), zap.Error(err))
		}
	}
	if _, err := file.Write(data); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("write staged image: %w", err)
	}
	if err := file.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("close staged image: %w", err)
	}
	return file.Name(), cleanup, nil
}

// release deletes the remote file on a context detached from the request so a
// cancelled request still cleans up.
func (c *Client) release(ref FileRef, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	if err := c.provider.Delete(ctx, ref); err != nil {
		logger.Warn("failed to release uploaded file", zap.String("file", ref.Name), zap.Error(err))
	}
}
