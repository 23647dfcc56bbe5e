// Package inference asks a multimodal model for a structured judgement about
// an image.
package inference

import "context"

// FileRef identifies a file uploaded to the provider.
type FileRef struct {
	Name     string
	URI      string
	MIMEType string
}

// Provider is the upload-then-reference protocol of the inference service.
type Provider interface {
	// Upload sends the file at path and returns a reference usable in Generate.
	Upload(ctx context.Context, path, contentType string) (FileRef, error)
	// Generate runs prompt against model with the referenced file and returns
	// the raw response text.
	Generate(ctx context.Context, model, prompt string, file FileRef) (string, error)
	// Delete releases the uploaded file.
	Delete(ctx context.Context, file FileRef) error
}
