package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"docgen/internal/domain/entity"
	"docgen/internal/infrastructure/metrics"
)

var (
	ErrQueueFull         = errors.New("generation queue is full")
	ErrDispatcherStopped = errors.New("generation dispatcher stopped")
)

const (
	DefaultDispatcherWorkers   = 4
	DefaultDispatcherQueueSize = 64
)

// Dispatcher runs generations in the background on its own context,
// so they outlive the HTTP request that asked for them.
type Dispatcher struct {
	generations GenerationUsecase
	logger      *slog.Logger

	workers int
	jobs    chan entity.GenerationJob

	// control
	mu      sync.RWMutex
	closed  bool
	stop    chan struct{}
	wg      sync.WaitGroup
	stopped sync.Once
}

func NewDispatcher(gen GenerationUsecase, workers, queueSize int, logger *slog.Logger) *Dispatcher {
	if workers <= 0 {
		workers = DefaultDispatcherWorkers
	}
	if queueSize <= 0 {
		queueSize = DefaultDispatcherQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		generations: gen,
		logger:      logger.With("component", "dispatcher"),
		workers:     workers,
		jobs:        make(chan entity.GenerationJob, queueSize),
		stop:        make(chan struct{}),
	}
}

func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx, i)
	}
	d.logger.Info("Dispatcher started", "workers", d.workers, "queue_size", cap(d.jobs))
}

// Stop stops accepting jobs and waits for running generations to finish.
// Jobs still queued are dropped; their records stay pending and can be submitted again.
func (d *Dispatcher) Stop() {
	d.stopped.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.stop)
		d.mu.Unlock()
	})
	d.wg.Wait()
	if n := len(d.jobs); n > 0 {
		d.logger.Warn("dropping queued generation jobs", "count", n)
	}
	d.logger.Info("Dispatcher fully stopped")
}

// Submit runs the pre-flight checks synchronously and queues the job.
// The returned id is stored on the record as its external job id.
func (d *Dispatcher) Submit(ctx context.Context, kind entity.JobKind, targetID string, req entity.GenerationRequest) (string, error) {
	if !kind.Valid() {
		return "", fmt.Errorf("unknown job kind %q", kind)
	}

	check := d.generations.CheckGenerate
	if kind == entity.JobKindRetry {
		check = d.generations.CheckRetry
	}
	if err := check(ctx, targetID); err != nil {
		return "", err
	}

	job := entity.NewGenerationJob(kind, targetID, req)

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return "", ErrDispatcherStopped
	}
	select {
	case d.jobs <- job:
		d.logger.Info("generation job queued", "job_id", job.ID, "target_id", targetID, "kind", kind)
		return job.ID, nil
	default:
		metrics.IncError("dispatcher", "queue_full")
		return "", ErrQueueFull
	}
}

func (d *Dispatcher) worker(ctx context.Context, n int) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Dispatcher worker context canceled", "worker", n)
			return
		case <-d.stop:
			return
		case job := <-d.jobs:
			d.run(ctx, job)
		}
	}
}

func (d *Dispatcher) run(ctx context.Context, job entity.GenerationJob) {
	log := d.logger.With("job_id", job.ID, "target_id", job.TargetID, "kind", job.Kind)
	log.Debug("generation job picked up", "queued_for", time.Since(job.EnqueuedAt))

	var err error
	switch job.Kind {
	case entity.JobKindRetry:
		_, err = d.generations.RetryFailed(ctx, job.TargetID, job.Request)
	default:
		_, err = d.generations.Generate(ctx, job.TargetID, job.Request)
	}

	var failed *entity.GenerationFailedError
	switch {
	case err == nil:
		log.Info("generation job done")
	case errors.As(err, &failed):
		log.Warn("generation job finished with failed record", "attempts", failed.Attempts, "err", err)
	default:
		log.Error("generation job rejected", "err", err)
	}
}
