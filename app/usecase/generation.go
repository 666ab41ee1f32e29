package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"docgen/internal/domain/entity"
	"docgen/internal/domain/repository"
	"docgen/internal/infrastructure/metrics"
	"docgen/internal/infrastructure/validator"
)

const (
	DefaultOuterMaxRetries = 3
	DefaultOuterBaseDelay  = 2 * time.Second
	DefaultOuterMaxDelay   = 30 * time.Second
)

// ContentValidator checks a parsed document and returns it unchanged when valid.
type ContentValidator interface {
	Validate(content entity.Content) (entity.Content, error)
}

// ContentArchive receives a copy of every completed record. Failures are logged only.
type ContentArchive interface {
	Save(ctx context.Context, record *entity.GenerationRecord) error
}

// ErrStateNotPersisted is joined into a GenerationFailedError when the failed state
// could not be written and the stored record is still in_progress.
var ErrStateNotPersisted = errors.New("terminal state not persisted")

type GenerationConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	// MaxDelay caps the rate-limit backoff.
	MaxDelay time.Duration
}

type GenerationUsecase interface {
	Generate(ctx context.Context, targetID string, req entity.GenerationRequest) (*entity.GenerationRecord, error)
	RetryFailed(ctx context.Context, targetID string, req entity.GenerationRequest) (*entity.GenerationRecord, error)
	GetStatus(ctx context.Context, targetID string) (entity.StatusView, error)
	GetRecord(ctx context.Context, targetID string) (*entity.GenerationRecord, error)
	CheckGenerate(ctx context.Context, targetID string) error
	CheckRetry(ctx context.Context, targetID string) error
}

var _ GenerationUsecase = (*GenerationService)(nil)

// GenerationService drives one target's record through
// pending -> in_progress -> completed|failed, retrying whole generations on top of the client's own retries.
type GenerationService struct {
	generations repository.GenerationRepository
	targets     repository.TargetRepository
	llm         repository.LLMGenerator
	prompts     PromptAssembler
	validator   ContentValidator
	archive     ContentArchive
	schema      *entity.Schema

	logger *slog.Logger
	cfg    GenerationConfig

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

type GenerationOption func(*GenerationService)

func WithArchive(a ContentArchive) GenerationOption {
	return func(s *GenerationService) { s.archive = a }
}

func WithClock(now func() time.Time) GenerationOption {
	return func(s *GenerationService) { s.now = now }
}

func WithGenerationSleeper(fn func(ctx context.Context, d time.Duration) error) GenerationOption {
	return func(s *GenerationService) { s.sleep = fn }
}

func NewGenerationService(
	gr repository.GenerationRepository,
	tr repository.TargetRepository,
	llm repository.LLMGenerator,
	prompts PromptAssembler,
	val ContentValidator,
	logger *slog.Logger,
	cfg GenerationConfig,
	opts ...GenerationOption,
) *GenerationService {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay < 0 {
		cfg.BaseDelay = 0
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultOuterMaxDelay
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &GenerationService{
		generations: gr,
		targets:     tr,
		llm:         llm,
		prompts:     prompts,
		validator:   val,
		schema:      entity.ExplanationSchema(),
		logger:      logger.With("component", "generation"),
		cfg:         cfg,
		now:         func() time.Time { return time.Now().UTC() },
		sleep:       sleepContext,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Generate runs a full generation for the target and returns the completed record.
// On failure the record is persisted as failed and a *entity.GenerationFailedError is returned.
func (s *GenerationService) Generate(ctx context.Context, targetID string, req entity.GenerationRequest) (*entity.GenerationRecord, error) {
	if err := s.ensureTarget(ctx, targetID); err != nil {
		return nil, err
	}

	record, err := s.generations.GetByTargetID(ctx, targetID)
	if err != nil {
		return nil, fmt.Errorf("get generation record: %w", err)
	}
	if record == nil {
		record, err = s.generations.Create(ctx, targetID, entity.NewPlaceholderContent())
		if err != nil {
			return nil, fmt.Errorf("create generation record: %w", err)
		}
		s.logger.Debug("generation record ready", "target_id", targetID, "record_id", record.ID)
	}
	if err := checkStartable(targetID, record); err != nil {
		return nil, err
	}

	from := record.Status
	record.MarkInProgress(s.now(), req.ExternalJobID)
	if err := s.generations.Save(ctx, record); err != nil {
		return nil, fmt.Errorf("mark generation in progress: %w", err)
	}
	metrics.IncGenerationStatusChange(string(from), string(record.Status))
	metrics.IncActiveGenerations()
	defer metrics.DecActiveGenerations()

	start := time.Now()
	s.logger.Info("generation started", "target_id", targetID, "external_job_id", req.ExternalJobID)

	content, resp, attempts, genErr := s.runWithRetry(ctx, targetID, req)

	// the terminal state is written even when the caller has gone away
	persistCtx := context.WithoutCancel(ctx)

	if genErr != nil {
		return nil, s.persistFailure(persistCtx, record, attempts, genErr, start)
	}

	record.MarkCompleted(s.now(), content, attempts, resp.Model, resp.Usage)
	if err := s.generations.Save(persistCtx, record); err != nil {
		// a document that could not be stored counts as a failed generation
		metrics.IncError("generation", "persist_completed")
		return nil, s.persistFailure(persistCtx, record, attempts, fmt.Errorf("persist completed generation: %w", err), start)
	}
	metrics.IncGenerationStatusChange(string(entity.GenerationStatusInProgress), string(record.Status))
	metrics.ObserveGenerationDuration(string(record.Status), time.Since(start))

	if s.archive != nil {
		if err := s.archive.Save(persistCtx, record); err != nil {
			metrics.IncError("generation", "archive_failed")
			s.logger.Error("archive generated content failed", "target_id", targetID, "err", err)
		}
	}

	s.logger.Info("generation completed",
		"target_id", targetID,
		"attempts", attempts,
		"model", resp.Model,
		"total_tokens", resp.Usage.TotalTokens,
		"duration", time.Since(start),
	)
	return record, nil
}

// persistFailure marks the record failed, writes it and builds the caller's error.
// If even that write fails the record is left in_progress and the error says so.
func (s *GenerationService) persistFailure(ctx context.Context, record *entity.GenerationRecord, attempts int, cause error, start time.Time) error {
	targetID := record.TargetID
	record.Content = entity.NewPlaceholderContent()
	record.MarkFailed(s.now(), cause, attempts)
	metrics.IncGenerationStatusChange(string(entity.GenerationStatusInProgress), string(record.Status))
	metrics.ObserveGenerationDuration(string(record.Status), time.Since(start))
	s.logger.Error("generation failed", "target_id", targetID, "attempts", attempts, "err", cause)

	if err := s.generations.Save(ctx, record); err != nil {
		metrics.IncError("generation", "persist_failed")
		s.logger.Error("failed to persist failed generation", "target_id", targetID, "err", err)
		cause = errors.Join(cause, fmt.Errorf("%w: %w", ErrStateNotPersisted, err))
	}
	return &entity.GenerationFailedError{TargetID: targetID, Attempts: attempts, Err: cause}
}

// RetryFailed re-arms a failed record and runs Generate again.
func (s *GenerationService) RetryFailed(ctx context.Context, targetID string, req entity.GenerationRequest) (*entity.GenerationRecord, error) {
	record, err := s.failedRecord(ctx, targetID)
	if err != nil {
		return nil, err
	}

	record.ResetToPending(s.now())
	if err := s.generations.Save(ctx, record); err != nil {
		return nil, fmt.Errorf("reset generation to pending: %w", err)
	}
	metrics.IncGenerationStatusChange(string(entity.GenerationStatusFailed), string(record.Status))
	s.logger.Info("generation reset for retry", "target_id", targetID)

	return s.Generate(ctx, targetID, req)
}

// GetStatus never fails for a missing record; it reports "not_found" instead.
func (s *GenerationService) GetStatus(ctx context.Context, targetID string) (entity.StatusView, error) {
	record, err := s.generations.GetByTargetID(ctx, targetID)
	if err != nil {
		return entity.StatusView{}, fmt.Errorf("get generation record: %w", err)
	}
	if record == nil {
		return entity.NotFoundStatus(), nil
	}
	return entity.NewStatusView(record, s.now()), nil
}

func (s *GenerationService) GetRecord(ctx context.Context, targetID string) (*entity.GenerationRecord, error) {
	record, err := s.generations.GetByTargetID(ctx, targetID)
	if err != nil {
		return nil, fmt.Errorf("get generation record: %w", err)
	}
	if record == nil {
		return nil, fmt.Errorf("%w: target %s", entity.ErrRecordNotFound, targetID)
	}
	return record, nil
}

// CheckGenerate reports the errors Generate would fail with before doing any work.
func (s *GenerationService) CheckGenerate(ctx context.Context, targetID string) error {
	if err := s.ensureTarget(ctx, targetID); err != nil {
		return err
	}
	record, err := s.generations.GetByTargetID(ctx, targetID)
	if err != nil {
		return fmt.Errorf("get generation record: %w", err)
	}
	if record == nil {
		return nil
	}
	return checkStartable(targetID, record)
}

// checkStartable rejects completed records and failed ones, which only RetryFailed may re-arm.
func checkStartable(targetID string, record *entity.GenerationRecord) error {
	switch {
	case record.HasGeneratedContent():
		return fmt.Errorf("%w: target %s", entity.ErrAlreadyExists, targetID)
	case record.Status == entity.GenerationStatusFailed:
		return fmt.Errorf("%w: target %s failed, use retry", entity.ErrPrecondition, targetID)
	default:
		return nil
	}
}

func (s *GenerationService) CheckRetry(ctx context.Context, targetID string) error {
	_, err := s.failedRecord(ctx, targetID)
	return err
}

func (s *GenerationService) failedRecord(ctx context.Context, targetID string) (*entity.GenerationRecord, error) {
	record, err := s.generations.GetByTargetID(ctx, targetID)
	if err != nil {
		return nil, fmt.Errorf("get generation record: %w", err)
	}
	if record == nil {
		return nil, fmt.Errorf("%w: target %s has no generation record", entity.ErrPrecondition, targetID)
	}
	if record.Status != entity.GenerationStatusFailed {
		return nil, fmt.Errorf("%w: target %s is %s, not failed", entity.ErrPrecondition, targetID, record.Status)
	}
	return record, nil
}

func (s *GenerationService) ensureTarget(ctx context.Context, targetID string) error {
	ok, err := s.targets.Exists(ctx, targetID)
	if err != nil {
		return fmt.Errorf("check target: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", entity.ErrTargetNotFound, targetID)
	}
	return nil
}

// runWithRetry performs up to MaxRetries+1 full generate-parse-validate attempts.
func (s *GenerationService) runWithRetry(ctx context.Context, targetID string, req entity.GenerationRequest) (entity.Content, entity.LLMResponse, int, error) {
	prompt := s.prompts.Assemble(req)

	for attempt := 0; ; attempt++ {
		content, resp, err := s.attemptOnce(ctx, prompt)
		if err == nil {
			return content, resp, attempt + 1, nil
		}

		if ctx.Err() != nil {
			return nil, entity.LLMResponse{}, attempt + 1, err
		}
		delay, retry := s.retryDelay(attempt, err)
		if !retry {
			s.logger.Warn("generation attempt failed, not retrying", "target_id", targetID, "attempt", attempt, "err", err)
			return nil, entity.LLMResponse{}, attempt + 1, err
		}
		if attempt >= s.cfg.MaxRetries {
			return nil, entity.LLMResponse{}, attempt + 1, err
		}

		metrics.IncRetry("outer", retryReason(err))
		s.logger.Warn("generation attempt failed, retrying",
			"target_id", targetID, "attempt", attempt, "delay", delay, "err", err)
		if serr := s.sleep(ctx, delay); serr != nil {
			return nil, entity.LLMResponse{}, attempt + 1, err
		}
	}
}

func (s *GenerationService) attemptOnce(ctx context.Context, prompt entity.Prompt) (entity.Content, entity.LLMResponse, error) {
	resp, err := s.llm.Call(ctx, prompt, entity.ContentKindJSON, s.schema)
	if err != nil {
		return nil, entity.LLMResponse{}, err
	}

	parsed, err := validator.ParseResponse(resp.Text)
	if err != nil {
		metrics.IncValidationRun("parse_error")
		return nil, entity.LLMResponse{}, err
	}
	content, err := s.validator.Validate(parsed)
	if err != nil {
		metrics.IncValidationRun("structural_error")
		return nil, entity.LLMResponse{}, err
	}
	metrics.IncValidationRun("pass")
	return content, resp, nil
}

// retryDelay decides whether a failed attempt is retried and how long to wait first.
func (s *GenerationService) retryDelay(attempt int, err error) (time.Duration, bool) {
	var (
		structErr *entity.StructuralError
		parseErr  *entity.ParseError
		clientErr *entity.ClientError
	)
	switch {
	case errors.As(err, &structErr):
		return 0, false
	case errors.As(err, &parseErr):
		return s.cfg.BaseDelay, true
	case errors.As(err, &clientErr):
		switch clientErr.Kind {
		case entity.ClientErrorContentFiltered:
			return 0, false
		case entity.ClientErrorRateLimited:
			return rateLimitDelay(s.cfg.BaseDelay, s.cfg.MaxDelay, attempt), true
		case entity.ClientErrorTimedOut, entity.ClientErrorInvalidRequest, entity.ClientErrorOther:
			return exponentialDelay(s.cfg.BaseDelay, attempt), true
		}
	}
	return exponentialDelay(s.cfg.BaseDelay, attempt), true
}

func rateLimitDelay(base, maxDelay time.Duration, attempt int) time.Duration {
	d := base
	for i := 0; i < attempt && d < maxDelay; i++ {
		d *= 3
	}
	return min(d, maxDelay)
}

func exponentialDelay(base time.Duration, attempt int) time.Duration {
	return base * time.Duration(1<<attempt)
}

func retryReason(err error) string {
	var (
		parseErr  *entity.ParseError
		clientErr *entity.ClientError
	)
	switch {
	case errors.As(err, &parseErr):
		return "parse_error"
	case errors.As(err, &clientErr):
		return clientErr.Kind.String()
	default:
		return "other"
	}
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
