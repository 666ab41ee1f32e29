package usecase

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docgen/internal/domain/entity"
)

// stubGenerations records background calls and can block them until released.
type stubGenerations struct {
	mu        sync.Mutex
	generated []entity.GenerationRequest
	retried   []entity.GenerationRequest
	checkErr  error
	release   chan struct{}
	done      chan string
}

func newStubGenerations() *stubGenerations {
	return &stubGenerations{done: make(chan string, 16)}
}

func (s *stubGenerations) wait() {
	if s.release != nil {
		<-s.release
	}
}

func (s *stubGenerations) Generate(_ context.Context, targetID string, req entity.GenerationRequest) (*entity.GenerationRecord, error) {
	s.wait()
	s.mu.Lock()
	s.generated = append(s.generated, req)
	s.mu.Unlock()
	s.done <- targetID
	return &entity.GenerationRecord{TargetID: targetID}, nil
}

func (s *stubGenerations) RetryFailed(_ context.Context, targetID string, req entity.GenerationRequest) (*entity.GenerationRecord, error) {
	s.wait()
	s.mu.Lock()
	s.retried = append(s.retried, req)
	s.mu.Unlock()
	s.done <- targetID
	return &entity.GenerationRecord{TargetID: targetID}, nil
}

func (s *stubGenerations) GetStatus(context.Context, string) (entity.StatusView, error) {
	return entity.NotFoundStatus(), nil
}

func (s *stubGenerations) GetRecord(context.Context, string) (*entity.GenerationRecord, error) {
	return nil, entity.ErrRecordNotFound
}

func (s *stubGenerations) CheckGenerate(context.Context, string) error { return s.checkErr }

func (s *stubGenerations) CheckRetry(context.Context, string) error { return s.checkErr }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitDone(t *testing.T, s *stubGenerations) string {
	t.Helper()
	select {
	case id := <-s.done:
		return id
	case <-time.After(2 * time.Second):
		t.Fatal("job was not processed")
		return ""
	}
}

func TestDispatcherRunsSubmittedJobs(t *testing.T) {
	gen := newStubGenerations()
	d := NewDispatcher(gen, 2, 4, discardLogger())
	d.Start(context.Background())
	defer d.Stop()

	jobID, err := d.Submit(context.Background(), entity.JobKindGenerate, "t1", entity.GenerationRequest{Code: "x"})
	require.NoError(t, err)
	assert.NotEmpty(t, jobID)
	assert.Equal(t, "t1", waitDone(t, gen))

	retryID, err := d.Submit(context.Background(), entity.JobKindRetry, "t2", entity.GenerationRequest{Code: "y"})
	require.NoError(t, err)
	assert.Equal(t, "t2", waitDone(t, gen))

	gen.mu.Lock()
	defer gen.mu.Unlock()
	require.Len(t, gen.generated, 1)
	require.Len(t, gen.retried, 1)
	assert.Equal(t, jobID, gen.generated[0].ExternalJobID)
	assert.Equal(t, retryID, gen.retried[0].ExternalJobID)
}

func TestDispatcherPreflightErrorsAreSynchronous(t *testing.T) {
	gen := newStubGenerations()
	gen.checkErr = entity.ErrTargetNotFound
	d := NewDispatcher(gen, 1, 1, discardLogger())

	_, err := d.Submit(context.Background(), entity.JobKindGenerate, "t1", entity.GenerationRequest{})
	assert.ErrorIs(t, err, entity.ErrTargetNotFound)
	assert.Equal(t, 0, len(d.jobs))
}

func TestDispatcherQueueFull(t *testing.T) {
	gen := newStubGenerations()
	d := NewDispatcher(gen, 1, 1, discardLogger())

	_, err := d.Submit(context.Background(), entity.JobKindGenerate, "t1", entity.GenerationRequest{})
	require.NoError(t, err)
	_, err = d.Submit(context.Background(), entity.JobKindGenerate, "t2", entity.GenerationRequest{})
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestDispatcherRejectsAfterStop(t *testing.T) {
	gen := newStubGenerations()
	d := NewDispatcher(gen, 1, 1, discardLogger())
	d.Start(context.Background())
	d.Stop()
	d.Stop()

	_, err := d.Submit(context.Background(), entity.JobKindGenerate, "t1", entity.GenerationRequest{})
	assert.ErrorIs(t, err, ErrDispatcherStopped)
}

func TestDispatcherStopWaitsForRunningJob(t *testing.T) {
	gen := newStubGenerations()
	gen.release = make(chan struct{})
	d := NewDispatcher(gen, 1, 1, discardLogger())
	d.Start(context.Background())

	_, err := d.Submit(context.Background(), entity.JobKindGenerate, "t1", entity.GenerationRequest{})
	require.NoError(t, err)

	// let the worker pick the job up before stopping
	require.Eventually(t, func() bool { return len(d.jobs) == 0 }, time.Second, 5*time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		d.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a job was running")
	case <-time.After(50 * time.Millisecond):
	}

	close(gen.release)
	waitDone(t, gen)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}

func TestDispatcherUnknownKind(t *testing.T) {
	d := NewDispatcher(newStubGenerations(), 1, 1, discardLogger())

	_, err := d.Submit(context.Background(), entity.JobKind("deploy"), "t1", entity.GenerationRequest{})
	assert.Error(t, err)
}
