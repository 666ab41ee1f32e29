package entity

import (
	"time"

	"github.com/google/uuid"
)

type GenerationStatus string

const (
	GenerationStatusPending    GenerationStatus = "pending"
	GenerationStatusInProgress GenerationStatus = "in_progress"
	GenerationStatusCompleted  GenerationStatus = "completed"
	GenerationStatusFailed     GenerationStatus = "failed"
)

// TokenUsage holds the provider token counters of a single response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens" bson:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens" bson:"completion_tokens"`
	TotalTokens      int `json:"total_tokens" bson:"total_tokens"`
}

// GenerationRecord tracks the generation lifecycle of one target.
type GenerationRecord struct {
	ID            string           `json:"id"`
	TargetID      string           `json:"target_id"`
	Status        GenerationStatus `json:"status"`
	Content       Content          `json:"content"`
	StartedAt     *time.Time       `json:"started_at,omitempty"`
	CompletedAt   *time.Time       `json:"completed_at,omitempty"`
	Error         *string          `json:"error,omitempty"`
	ExternalJobID *string          `json:"external_job_id,omitempty"`
	Attempts      int              `json:"attempts"`
	Model         string           `json:"model,omitempty"`
	Usage         *TokenUsage      `json:"usage,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

func NewGenerationRecord(targetID string) *GenerationRecord {
	now := time.Now().UTC()
	return &GenerationRecord{
		ID:        uuid.New().String(),
		TargetID:  targetID,
		Status:    GenerationStatusPending,
		Content:   NewPlaceholderContent(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// HasGeneratedContent reports whether the record already holds a finished document.
func (r *GenerationRecord) HasGeneratedContent() bool {
	return r.Status == GenerationStatusCompleted && len(r.Content) > 0 && !r.Content.IsPlaceholder()
}

func (r *GenerationRecord) MarkInProgress(now time.Time, externalJobID string) {
	r.Status = GenerationStatusInProgress
	r.StartedAt = &now
	r.CompletedAt = nil
	r.Error = nil
	r.Attempts = 0
	if externalJobID != "" {
		r.ExternalJobID = &externalJobID
	}
	r.UpdatedAt = now
}

func (r *GenerationRecord) MarkCompleted(now time.Time, content Content, attempts int, model string, usage TokenUsage) {
	r.Status = GenerationStatusCompleted
	r.Content = content
	r.Attempts = attempts
	r.Model = model
	r.Usage = &usage
	r.Error = nil
	r.CompletedAt = completionTime(r.StartedAt, now)
	r.UpdatedAt = now
}

func (r *GenerationRecord) MarkFailed(now time.Time, cause error, attempts int) {
	msg := cause.Error()
	r.Status = GenerationStatusFailed
	r.Error = &msg
	r.Attempts = attempts
	r.CompletedAt = completionTime(r.StartedAt, now)
	r.UpdatedAt = now
}

// ResetToPending re-arms a failed record. Content is reset to a fresh placeholder.
func (r *GenerationRecord) ResetToPending(now time.Time) {
	r.Status = GenerationStatusPending
	r.Error = nil
	r.StartedAt = nil
	r.CompletedAt = nil
	r.Attempts = 0
	r.Content = NewPlaceholderContent()
	r.UpdatedAt = now
}

// Clone returns a deep copy, so stores never share maps with callers.
func (r *GenerationRecord) Clone() *GenerationRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.Content = r.Content.Clone()
	c.StartedAt = cloneTime(r.StartedAt)
	c.CompletedAt = cloneTime(r.CompletedAt)
	if r.Error != nil {
		e := *r.Error
		c.Error = &e
	}
	if r.ExternalJobID != nil {
		j := *r.ExternalJobID
		c.ExternalJobID = &j
	}
	if r.Usage != nil {
		u := *r.Usage
		c.Usage = &u
	}
	return &c
}

// completedAt must never precede startedAt, even with a skewed clock.
func completionTime(startedAt *time.Time, now time.Time) *time.Time {
	if startedAt != nil && now.Before(*startedAt) {
		now = *startedAt
	}
	return &now
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
