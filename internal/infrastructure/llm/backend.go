package llm

import (
	"context"

	"docgen/internal/domain/entity"
)

// GenerationParams are the sampling parameters forwarded to the provider.
type GenerationParams struct {
	Temperature     float32
	TopP            float32
	TopK            int
	MaxOutputTokens int
}

// BackendRequest is one provider call.
type BackendRequest struct {
	Model             string
	Prompt            string
	SystemInstruction string
	Kind              entity.ContentKind
	Schema            *entity.Schema
	Params            GenerationParams
}

type BackendResponse struct {
	Text         string
	FinishReason string
	Model        string
	Usage        entity.TokenUsage
}

// Backend performs a single provider call without retrying.
// Implementations should return *entity.ClientError for failures they can classify.
type Backend interface {
	Name() string
	Generate(ctx context.Context, req BackendRequest) (BackendResponse, error)
}
