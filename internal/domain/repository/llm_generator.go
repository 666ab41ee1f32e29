package repository

import (
	"context"

	"docgen/internal/domain/entity"
)

// LLMGenerator submits one prompt to the AI provider with its own bounded retry.
// Failures are always *entity.ClientError.
type LLMGenerator interface {
	Call(ctx context.Context, prompt entity.Prompt, kind entity.ContentKind, schema *entity.Schema) (entity.LLMResponse, error)
}
