package filesystem

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"docgen/internal/domain/entity"
)

const (
	contentFileName  = "explanation.json"
	metadataFileName = "metadata.json"
)

// ContentArchive keeps a local copy of every completed explanation,
// one directory per target.
type ContentArchive struct {
	basePath string
}

type archiveMetadata struct {
	TargetID      string             `json:"target_id"`
	RecordID      string             `json:"record_id"`
	ExternalJobID string             `json:"external_job_id,omitempty"`
	Model         string             `json:"model,omitempty"`
	Attempts      int                `json:"attempts"`
	Usage         *entity.TokenUsage `json:"usage,omitempty"`
	CompletedAt   *time.Time         `json:"completed_at,omitempty"`
	ArchivedAt    time.Time          `json:"archived_at"`
}

func NewContentArchive(basePath string) (*ContentArchive, error) {
	info, err := os.Stat(basePath)
	if os.IsNotExist(err) {
		if mkErr := os.MkdirAll(basePath, 0o755); mkErr != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", basePath, mkErr)
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to check directory %s: %w", basePath, err)
	} else if !info.IsDir() {
		return nil, fmt.Errorf("path %s exists but is not a directory", basePath)
	}

	return &ContentArchive{basePath: basePath}, nil
}

func (a *ContentArchive) BasePath() string {
	return a.basePath
}

// Save writes the record's content and a metadata sidecar. Only completed records are archived.
func (a *ContentArchive) Save(ctx context.Context, record *entity.GenerationRecord) error {
	if record == nil || !record.HasGeneratedContent() {
		return fmt.Errorf("record for target is not completed")
	}
	dir, err := a.targetDir(record.TargetID)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create target directory: %w", err)
	}

	contentData, err := json.MarshalIndent(record.Content, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal content: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(dir, contentFileName), contentData); err != nil {
		return fmt.Errorf("failed to write content: %w", err)
	}

	meta := archiveMetadata{
		TargetID:    record.TargetID,
		RecordID:    record.ID,
		Model:       record.Model,
		Attempts:    record.Attempts,
		Usage:       record.Usage,
		CompletedAt: record.CompletedAt,
		ArchivedAt:  time.Now().UTC(),
	}
	if record.ExternalJobID != nil {
		meta.ExternalJobID = *record.ExternalJobID
	}
	metaData, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(dir, metadataFileName), metaData); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}

	return nil
}

// Load returns the archived content, or entity.ErrRecordNotFound.
func (a *ContentArchive) Load(_ context.Context, targetID string) (entity.Content, error) {
	dir, err := a.targetDir(targetID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, contentFileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: archive for target %s", entity.ErrRecordNotFound, targetID)
		}
		return nil, fmt.Errorf("failed to read content: %w", err)
	}

	var content entity.Content
	if err := json.Unmarshal(data, &content); err != nil {
		return nil, fmt.Errorf("failed to unmarshal content: %w", err)
	}
	return content, nil
}

// targetDir rejects ids that would escape the base directory.
func (a *ContentArchive) targetDir(targetID string) (string, error) {
	if targetID == "" || targetID == "." || targetID == ".." || strings.ContainsAny(targetID, `/\`) {
		return "", fmt.Errorf("invalid target id %q", targetID)
	}
	return filepath.Join(a.basePath, targetID), nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
