package llm

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docgen/internal/domain/entity"
)

type step struct {
	resp BackendResponse
	err  error
}

// scriptedBackend replays steps in order; the last step repeats.
type scriptedBackend struct {
	mu    sync.Mutex
	steps []step
	calls int
	reqs  []BackendRequest
}

func (b *scriptedBackend) Name() string { return "scripted" }

func (b *scriptedBackend) Generate(_ context.Context, req BackendRequest) (BackendResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	i := min(b.calls, len(b.steps)-1)
	b.calls++
	b.reqs = append(b.reqs, req)
	return b.steps[i].resp, b.steps[i].err
}

func (b *scriptedBackend) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(b Backend, rec *sleepRecorder, cfg ClientConfig) *Client {
	if cfg.BaseDelay == 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	cfg.Model = "test-model"
	return NewClient(b, cfg, discardLogger(), WithSleeper(rec.sleep))
}

var testPrompt = entity.Prompt{System: "system", User: "explain"}

func TestCallSuccessFirstAttempt(t *testing.T) {
	b := &scriptedBackend{steps: []step{{resp: BackendResponse{
		Text:         `{"chapter1":{"title":"x"}}`,
		FinishReason: "STOP",
		Usage:        entity.TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}}}}
	rec := &sleepRecorder{}
	c := newTestClient(b, rec, ClientConfig{Params: GenerationParams{Temperature: 0.7, TopP: 0.9, TopK: 40, MaxOutputTokens: 8192}})

	resp, err := c.Call(context.Background(), testPrompt, entity.ContentKindJSON, entity.ExplanationSchema())

	require.NoError(t, err)
	assert.Equal(t, 1, b.Calls())
	assert.Empty(t, rec.delays)
	assert.Equal(t, "STOP", resp.FinishReason)
	assert.Equal(t, "test-model", resp.Model)
	assert.Equal(t, 15, resp.Usage.TotalTokens)
	assert.Contains(t, resp.JSON, "chapter1")

	req := b.reqs[0]
	assert.Equal(t, "explain", req.Prompt)
	assert.Equal(t, "system", req.SystemInstruction)
	assert.Equal(t, entity.ContentKindJSON, req.Kind)
	assert.NotNil(t, req.Schema)
	assert.Equal(t, 40, req.Params.TopK)
}

func TestCallTextKindHasNoJSONView(t *testing.T) {
	b := &scriptedBackend{steps: []step{{resp: BackendResponse{Text: `{"a":1}`}}}}
	c := newTestClient(b, &sleepRecorder{}, ClientConfig{})

	resp, err := c.Call(context.Background(), testPrompt, entity.ContentKindText, nil)

	require.NoError(t, err)
	assert.Nil(t, resp.JSON)
}

func TestCallRetriesTransientErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "rate limited", err: entity.NewClientError(entity.ClientErrorRateLimited, "slow down", nil)},
		{name: "timed out", err: entity.NewClientError(entity.ClientErrorTimedOut, "late", nil)},
		{name: "unclassified", err: errors.New("connection reset")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &scriptedBackend{steps: []step{{err: tt.err}, {err: tt.err}, {resp: BackendResponse{Text: "ok"}}}}
			rec := &sleepRecorder{}
			c := newTestClient(b, rec, ClientConfig{})

			resp, err := c.Call(context.Background(), testPrompt, entity.ContentKindText, nil)

			require.NoError(t, err)
			assert.Equal(t, "ok", resp.Text)
			assert.Equal(t, 3, b.Calls())
			assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, rec.delays)
		})
	}
}

func TestCallExhaustsBudget(t *testing.T) {
	b := &scriptedBackend{steps: []step{{err: entity.NewClientError(entity.ClientErrorRateLimited, "quota", nil)}}}
	rec := &sleepRecorder{}
	c := newTestClient(b, rec, ClientConfig{MaxRetries: 3})

	_, err := c.Call(context.Background(), testPrompt, entity.ContentKindText, nil)

	var cerr *entity.ClientError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, entity.ClientErrorRateLimited, cerr.Kind)
	assert.Equal(t, 4, b.Calls())
	// no wait after the final attempt
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, rec.delays)
}

func TestCallWrapsUnknownErrorsAsOther(t *testing.T) {
	b := &scriptedBackend{steps: []step{{err: errors.New("boom")}}}
	c := newTestClient(b, &sleepRecorder{}, ClientConfig{MaxRetries: 1})

	_, err := c.Call(context.Background(), testPrompt, entity.ContentKindText, nil)

	var cerr *entity.ClientError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, entity.ClientErrorOther, cerr.Kind)
	assert.ErrorContains(t, err, "boom")
	assert.Equal(t, 2, b.Calls())
}

func TestCallDoesNotRetryFatalErrors(t *testing.T) {
	for _, kind := range []entity.ClientErrorKind{entity.ClientErrorContentFiltered, entity.ClientErrorInvalidRequest} {
		t.Run(kind.String(), func(t *testing.T) {
			b := &scriptedBackend{steps: []step{{err: entity.NewClientError(kind, "nope", nil)}}}
			rec := &sleepRecorder{}
			c := newTestClient(b, rec, ClientConfig{})

			_, err := c.Call(context.Background(), testPrompt, entity.ContentKindText, nil)

			var cerr *entity.ClientError
			require.ErrorAs(t, err, &cerr)
			assert.Equal(t, kind, cerr.Kind)
			assert.Equal(t, 1, b.Calls())
			assert.Empty(t, rec.delays)
		})
	}
}

// hangingBackend ignores cancellation until released.
type hangingBackend struct {
	release chan struct{}
}

func (b *hangingBackend) Name() string { return "hanging" }

func (b *hangingBackend) Generate(context.Context, BackendRequest) (BackendResponse, error) {
	<-b.release
	return BackendResponse{Text: "too late"}, nil
}

func TestCallAbandonsAttemptAtTimeout(t *testing.T) {
	b := &hangingBackend{release: make(chan struct{})}
	defer close(b.release)
	c := NewClient(b, ClientConfig{Timeout: 20 * time.Millisecond, MaxRetries: 1, BaseDelay: time.Millisecond, MaxConcurrent: 2}, discardLogger())

	start := time.Now()
	_, err := c.Call(context.Background(), testPrompt, entity.ContentKindText, nil)

	var cerr *entity.ClientError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, entity.ClientErrorTimedOut, cerr.Kind)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestCallTimesOutWaitingForBusyPool(t *testing.T) {
	b := &hangingBackend{release: make(chan struct{})}
	defer close(b.release)
	c := NewClient(b, ClientConfig{Timeout: 50 * time.Millisecond, MaxRetries: 0, MaxConcurrent: 1}, discardLogger())

	// the first call times out but its abandoned attempt keeps the only slot
	_, err := c.Call(context.Background(), testPrompt, entity.ContentKindText, nil)
	var cerr *entity.ClientError
	require.ErrorAs(t, err, &cerr)
	require.Equal(t, entity.ClientErrorTimedOut, cerr.Kind)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	start := time.Now()
	_, err = c.Call(ctx, testPrompt, entity.ContentKindText, nil)

	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, entity.ClientErrorTimedOut, cerr.Kind)
	assert.Less(t, time.Since(start), time.Second)
	assert.NoError(t, ctx.Err())
}

func TestCallStopsWhenContextCanceled(t *testing.T) {
	b := &scriptedBackend{steps: []step{{err: entity.NewClientError(entity.ClientErrorRateLimited, "quota", nil)}}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := NewClient(b, ClientConfig{MaxRetries: 3, BaseDelay: time.Millisecond}, discardLogger())

	_, err := c.Call(ctx, testPrompt, entity.ContentKindText, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.LessOrEqual(t, b.Calls(), 1)
}

func TestBackoffDoubles(t *testing.T) {
	c := NewClient(&scriptedBackend{steps: []step{{}}}, ClientConfig{BaseDelay: 500 * time.Millisecond}, discardLogger())

	assert.Equal(t, 500*time.Millisecond, c.Backoff(0))
	assert.Equal(t, time.Second, c.Backoff(1))
	assert.Equal(t, 2*time.Second, c.Backoff(2))
	assert.Equal(t, 4*time.Second, c.Backoff(3))
}

func TestNewClientDefaults(t *testing.T) {
	c := NewClient(&scriptedBackend{steps: []step{{}}}, ClientConfig{}, nil)

	assert.Equal(t, DefaultTimeout, c.cfg.Timeout)
	assert.Equal(t, int64(DefaultMaxConcurrent), c.cfg.MaxConcurrent)
}
