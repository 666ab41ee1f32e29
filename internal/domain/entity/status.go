package entity

import "time"

const (
	StatusNotFound = "not_found"

	// EstimatedGenerationSeconds is the display budget used for progress hints.
	EstimatedGenerationSeconds = 180
)

// StatusView is the pollable progress shape of a generation.
type StatusView struct {
	Status                    string     `json:"status"`
	StartedAt                 *time.Time `json:"started_at,omitempty"`
	CompletedAt               *time.Time `json:"completed_at,omitempty"`
	Error                     *string    `json:"error,omitempty"`
	EstimatedSecondsRemaining *int       `json:"estimated_seconds_remaining,omitempty"`
}

func NotFoundStatus() StatusView {
	return StatusView{Status: StatusNotFound}
}

// NewStatusView projects a record onto the status shape as of now.
func NewStatusView(r *GenerationRecord, now time.Time) StatusView {
	v := StatusView{
		Status:      string(r.Status),
		StartedAt:   cloneTime(r.StartedAt),
		CompletedAt: cloneTime(r.CompletedAt),
	}
	switch r.Status {
	case GenerationStatusFailed:
		if r.Error != nil {
			e := *r.Error
			v.Error = &e
		}
	case GenerationStatusInProgress:
		remaining := EstimatedGenerationSeconds
		if r.StartedAt != nil {
			remaining -= int(now.Sub(*r.StartedAt).Seconds())
		}
		remaining = max(remaining, 0)
		v.EstimatedSecondsRemaining = &remaining
	}
	return v
}

func (v StatusView) IsTerminal() bool {
	switch v.Status {
	case string(GenerationStatusCompleted), string(GenerationStatusFailed), StatusNotFound:
		return true
	default:
		return false
	}
}
