package interfaces

import (
	"context"

	"github.com/ternarybob/nomad/internal/models"
)

// LLMService is the narrow contract with the external inference service.
type LLMService interface {
	// Generate streams a completion for the prompt. onChunk is called once
	// per response chunk in arrival order; returning false stops the stream.
	Generate(ctx context.Context, model, prompt string, onChunk func(chunk string) bool) error

	// Embed requests an embedding for the text. Any transport or shape
	// problem is an error; callers degrade to the local algorithm.
	Embed(ctx context.Context, text string) ([]float32, error)

	// ListModels reports the models the service exposes, matched against the
	// curated catalog.
	ListModels(ctx context.Context) ([]models.ModelInfo, error)

	// DefaultModel returns the configured fallback model id.
	DefaultModel() string
}
