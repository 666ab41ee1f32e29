package repository

import (
	"context"

	"docgen/internal/domain/entity"
)

// GenerationRepository persists generation records, one per target.
type GenerationRepository interface {
	// GetByTargetID returns nil, nil when the target has no record yet.
	GetByTargetID(ctx context.Context, targetID string) (*entity.GenerationRecord, error)
	// Create inserts a pending record with the given placeholder content.
	// If a record already exists for the target it is returned unchanged.
	Create(ctx context.Context, targetID string, placeholder entity.Content) (*entity.GenerationRecord, error)
	Save(ctx context.Context, record *entity.GenerationRecord) error
}

// TargetRepository resolves target identifiers against the owning system.
type TargetRepository interface {
	Exists(ctx context.Context, targetID string) (bool, error)
}
