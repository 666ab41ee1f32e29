package entity

import (
	"time"

	"github.com/google/uuid"
)

type JobKind string

const (
	JobKindGenerate JobKind = "generate"
	JobKindRetry    JobKind = "retry"
)

// GenerationJob is one queued background generation. Its ID becomes the
// record's external job id.
type GenerationJob struct {
	ID         string            `json:"id"`
	Kind       JobKind           `json:"kind"`
	TargetID   string            `json:"target_id"`
	Request    GenerationRequest `json:"-"`
	EnqueuedAt time.Time         `json:"enqueued_at"`
}

func NewGenerationJob(kind JobKind, targetID string, req GenerationRequest) GenerationJob {
	job := GenerationJob{
		ID:         uuid.New().String(),
		Kind:       kind,
		TargetID:   targetID,
		Request:    req,
		EnqueuedAt: time.Now(),
	}
	job.Request.ExternalJobID = job.ID
	return job
}

func (k JobKind) Valid() bool {
	return k == JobKindGenerate || k == JobKindRetry
}
