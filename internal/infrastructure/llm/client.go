package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"docgen/internal/domain/entity"
	"docgen/internal/domain/repository"
	"docgen/internal/infrastructure/metrics"
)

const (
	DefaultTimeout       = 180 * time.Second
	DefaultMaxRetries    = 3
	DefaultBaseDelay     = time.Second
	DefaultMaxConcurrent = 4
)

type ClientConfig struct {
	Model         string
	Timeout       time.Duration
	MaxRetries    int
	BaseDelay     time.Duration
	MaxConcurrent int64
	Params        GenerationParams
}

// Client wraps a Backend with per-attempt timeouts, bounded retry and a bounded worker pool.
// It holds no mutable state besides the pool and is safe for concurrent use.
type Client struct {
	backend Backend
	cfg     ClientConfig
	pool    *semaphore.Weighted
	logger  *slog.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

type ClientOption func(*Client)

// WithSleeper replaces the backoff wait, mostly for tests.
func WithSleeper(fn func(ctx context.Context, d time.Duration) error) ClientOption {
	return func(c *Client) { c.sleep = fn }
}

var _ repository.LLMGenerator = (*Client)(nil)

func NewClient(backend Backend, cfg ClientConfig, logger *slog.Logger, opts ...ClientOption) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay < 0 {
		cfg.BaseDelay = 0
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		backend: backend,
		cfg:     cfg,
		pool:    semaphore.NewWeighted(cfg.MaxConcurrent),
		logger:  logger.With("component", "llm_client", "backend", backend.Name(), "model", cfg.Model),
		sleep:   sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Model() string { return c.cfg.Model }

// Call submits the prompt, retrying transient failures up to MaxRetries times.
func (c *Client) Call(ctx context.Context, prompt entity.Prompt, kind entity.ContentKind, schema *entity.Schema) (entity.LLMResponse, error) {
	req := BackendRequest{
		Model:             c.cfg.Model,
		Prompt:            prompt.User,
		SystemInstruction: prompt.System,
		Kind:              kind,
		Schema:            schema,
		Params:            c.cfg.Params,
	}

	for attempt := 0; ; attempt++ {
		start := time.Now()
		resp, err := c.attempt(ctx, req)
		latency := time.Since(start)

		if err == nil {
			metrics.IncLLMRequest(c.cfg.Model, "success")
			metrics.ObserveLLMLatency(c.cfg.Model, latency)
			metrics.AddTokens(c.cfg.Model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
			c.logger.Debug("llm call succeeded", "attempt", attempt, "latency", latency, "finish_reason", resp.FinishReason)
			return toLLMResponse(resp, kind, c.cfg.Model, latency), nil
		}

		if ctx.Err() != nil {
			metrics.IncLLMRequest(c.cfg.Model, "canceled")
			return entity.LLMResponse{}, entity.NewClientError(entity.ClientErrorOther, "call canceled", ctx.Err())
		}

		cerr := c.classify(err)
		metrics.IncLLMRequest(c.cfg.Model, cerr.Kind.String())
		if !cerr.Retryable() {
			c.logger.Warn("llm call failed, not retrying", "attempt", attempt, "kind", cerr.Kind.String(), "err", cerr)
			return entity.LLMResponse{}, cerr
		}
		if attempt >= c.cfg.MaxRetries {
			c.logger.Error("llm call failed, retries exhausted", "attempts", attempt+1, "kind", cerr.Kind.String(), "err", cerr)
			return entity.LLMResponse{}, cerr
		}

		delay := c.Backoff(attempt)
		metrics.IncRetry("inner", cerr.Kind.String())
		c.logger.Warn("llm call failed, retrying", "attempt", attempt, "kind", cerr.Kind.String(), "delay", delay, "err", cerr)
		if err := c.sleep(ctx, delay); err != nil {
			return entity.LLMResponse{}, entity.NewClientError(entity.ClientErrorOther, "retry wait interrupted", err)
		}
	}
}

// Backoff returns the wait before the retry that follows the given attempt.
func (c *Client) Backoff(attempt int) time.Duration {
	return c.cfg.BaseDelay * time.Duration(1<<attempt)
}

// attempt dispatches one backend call onto the pool and abandons it at the timeout
// even if the backend does not honour context cancellation.
func (c *Client) attempt(ctx context.Context, req BackendRequest) (BackendResponse, error) {
	// the timeout covers waiting for a slot too; abandoned attempts may still hold theirs
	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	if err := c.pool.Acquire(attemptCtx, 1); err != nil {
		if ctx.Err() != nil {
			return BackendResponse{}, ctx.Err()
		}
		return BackendResponse{}, entity.NewClientError(entity.ClientErrorTimedOut,
			fmt.Sprintf("no worker slot within %s", c.cfg.Timeout), err)
	}

	type result struct {
		resp BackendResponse
		err  error
	}
	done := make(chan result, 1)
	go func() {
		defer c.pool.Release(1)
		resp, err := c.backend.Generate(attemptCtx, req)
		done <- result{resp: resp, err: err}
	}()

	select {
	case r := <-done:
		return r.resp, r.err
	case <-attemptCtx.Done():
		if ctx.Err() != nil {
			return BackendResponse{}, ctx.Err()
		}
		return BackendResponse{}, entity.NewClientError(entity.ClientErrorTimedOut,
			fmt.Sprintf("no response within %s", c.cfg.Timeout), attemptCtx.Err())
	}
}

func (c *Client) classify(err error) *entity.ClientError {
	var cerr *entity.ClientError
	if errors.As(err, &cerr) {
		return cerr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return entity.NewClientError(entity.ClientErrorTimedOut, "provider call timed out", err)
	}
	return entity.NewClientError(entity.ClientErrorOther, "provider call failed", err)
}

func toLLMResponse(resp BackendResponse, kind entity.ContentKind, model string, latency time.Duration) entity.LLMResponse {
	out := entity.LLMResponse{
		Text:         resp.Text,
		Usage:        resp.Usage,
		Model:        resp.Model,
		FinishReason: resp.FinishReason,
		Latency:      latency,
	}
	if out.Model == "" {
		out.Model = model
	}
	if kind == entity.ContentKindJSON {
		var parsed map[string]any
		if err := json.Unmarshal([]byte(strings.TrimSpace(resp.Text)), &parsed); err == nil {
			out.JSON = parsed
		}
	}
	return out
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
