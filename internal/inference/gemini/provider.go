// Package gemini implements inference.Provider with the Gemini Developer API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/example/scenecheck/internal/inference"
	"github.com/example/scenecheck/internal/logging"
)

// ErrEmptyResponse is returned when the model produced no text.
var ErrEmptyResponse = errors.New("model returned no text")

// Config configures the Gemini client. BaseURL and HTTPClient are optional.
type Config struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

// Provider adapts a genai.Client to the upload-then-reference protocol.
type Provider struct {
	client *genai.Client
	logger *zap.Logger
}

// NewProvider creates a Gemini API client.
func NewProvider(ctx context.Context, cfg Config, logger *zap.Logger) (*Provider, error) {
	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions.BaseURL = cfg.BaseURL
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		wrapped := logging.NewOperationError("gemini.new_client", "", err)
		logger.Error("failed to create gemini client", zap.Error(wrapped))
		return nil, wrapped
	}
	return &Provider{client: client, logger: logger.Named("gemini")}, nil
}

// Upload sends the staged file to the Files API.
func (p *Provider) Upload(ctx context.Context, path, contentType string) (inference.FileRef, error) {
	file, err := p.client.Files.UploadFromPath(ctx, path, &genai.UploadFileConfig{
		MIMEType:    contentType,
		DisplayName: "scenecheck-" + uuid.NewString(),
	})
	if err != nil {
		return inference.FileRef{}, fmt.Errorf("upload file: %w", err)
	}
	mimeType := file.MIMEType
	if mimeType == "" {
		mimeType = contentType
	}
	return inference.FileRef{Name: file.Name, URI: file.URI, MIMEType: mimeType}, nil
}

// Generate asks model for a JSON answer about the referenced file.
func (p *Provider) Generate(ctx context.Context, model, prompt string, file inference.FileRef) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(prompt),
			genai.NewPartFromURI(file.URI, file.MIMEType),
		}, genai.RoleUser),
	}
	resp, err := p.client.Models.GenerateContent(ctx, model, contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// Delete removes the uploaded file.
func (p *Provider) Delete(ctx context.Context, file inference.FileRef) error {
	if file.Name == "" {
		return nil
	}
	if _, err := p.client.Files.Delete(ctx, file.Name, nil); err != nil {
		return fmt.Errorf("delete file %s: %w", file.Name, err)
	}
	return nil
}

var _ inference.Provider = (*Provider)(nil)
