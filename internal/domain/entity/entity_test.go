package entity

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlaceholderIsFreshPerCall(t *testing.T) {
	a := NewPlaceholderContent()
	b := NewPlaceholderContent()

	a[SectionOverview].(map[string]any)["title"] = "changed"
	a[SectionConcepts].(map[string]any)["concepts"] = []any{"x"}

	assert.Equal(t, "Overview", b[SectionOverview].(map[string]any)["title"])
	assert.Empty(t, b[SectionConcepts].(map[string]any)["concepts"])
	assert.True(t, b.IsPlaceholder())
	for _, key := range RequiredSections {
		assert.Contains(t, b, key)
	}
}

func TestContentCloneIsDeep(t *testing.T) {
	c := Content{"chapter2": map[string]any{"concepts": []any{map[string]any{"name": "a"}}}}
	clone := c.Clone()

	clone["chapter2"].(map[string]any)["concepts"].([]any)[0].(map[string]any)["name"] = "b"
	assert.Equal(t, "a", c["chapter2"].(map[string]any)["concepts"].([]any)[0].(map[string]any)["name"])
	assert.Nil(t, Content(nil).Clone())
}

func TestRecordLifecycle(t *testing.T) {
	r := NewGenerationRecord("t1")
	assert.Equal(t, GenerationStatusPending, r.Status)
	assert.NotEmpty(t, r.ID)
	assert.False(t, r.HasGeneratedContent())

	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	r.MarkInProgress(start, "job-1")
	require.NotNil(t, r.ExternalJobID)
	assert.Equal(t, "job-1", *r.ExternalJobID)

	r.MarkFailed(start.Add(time.Minute), errors.New("boom"), 4)
	assert.Equal(t, GenerationStatusFailed, r.Status)
	require.NotNil(t, r.Error)
	assert.Equal(t, "boom", *r.Error)
	assert.True(t, r.Content.IsPlaceholder())

	r.ResetToPending(start.Add(2 * time.Minute))
	assert.Equal(t, GenerationStatusPending, r.Status)
	assert.Nil(t, r.Error)
	assert.Nil(t, r.StartedAt)
	assert.Nil(t, r.CompletedAt)

	r.MarkInProgress(start, "")
	// a clock that went backwards still yields completedAt >= startedAt
	r.MarkCompleted(start.Add(-time.Second), Content{"chapter1": map[string]any{}}, 1, "m", TokenUsage{TotalTokens: 3})
	assert.True(t, r.HasGeneratedContent())
	assert.Equal(t, *r.StartedAt, *r.CompletedAt)
}

func TestRecordCloneDoesNotShare(t *testing.T) {
	r := NewGenerationRecord("t1")
	r.MarkInProgress(time.Now(), "job-1")
	c := r.Clone()

	*c.ExternalJobID = "other"
	c.Content[SectionOverview].(map[string]any)["title"] = "x"

	assert.Equal(t, "job-1", *r.ExternalJobID)
	assert.Equal(t, "Overview", r.Content[SectionOverview].(map[string]any)["title"])
	assert.Nil(t, (*GenerationRecord)(nil).Clone())
}

func TestStatusView(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	r := NewGenerationRecord("t1")
	r.MarkInProgress(start, "")

	v := NewStatusView(r, start.Add(200*time.Second))
	require.NotNil(t, v.EstimatedSecondsRemaining)
	assert.Equal(t, 0, *v.EstimatedSecondsRemaining)
	assert.False(t, v.IsTerminal())

	r.MarkFailed(start.Add(time.Second), errors.New("filtered"), 1)
	v = NewStatusView(r, start.Add(2*time.Second))
	assert.Nil(t, v.EstimatedSecondsRemaining)
	require.NotNil(t, v.Error)
	assert.Equal(t, "filtered", *v.Error)
	assert.True(t, v.IsTerminal())
}

func TestClientErrorRetryable(t *testing.T) {
	assert.True(t, NewClientError(ClientErrorRateLimited, "x", nil).Retryable())
	assert.True(t, NewClientError(ClientErrorTimedOut, "x", nil).Retryable())
	assert.True(t, NewClientError(ClientErrorOther, "x", nil).Retryable())
	assert.False(t, NewClientError(ClientErrorContentFiltered, "x", nil).Retryable())
	assert.False(t, NewClientError(ClientErrorInvalidRequest, "x", nil).Retryable())

	wrapped := &GenerationFailedError{TargetID: "t1", Attempts: 2, Err: NewClientError(ClientErrorOther, "x", ErrPrecondition)}
	assert.ErrorIs(t, wrapped, ErrPrecondition)
	assert.Contains(t, wrapped.Error(), "after 2 attempt(s)")
}

func TestNewGenerationJob(t *testing.T) {
	job := NewGenerationJob(JobKindRetry, "t1", GenerationRequest{Code: "x"})

	assert.NotEmpty(t, job.ID)
	assert.Equal(t, job.ID, job.Request.ExternalJobID)
	assert.True(t, job.Kind.Valid())
	assert.False(t, JobKind("deploy").Valid())
}
