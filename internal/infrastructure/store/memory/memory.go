// Package memory keeps generation records and targets in process memory.
// It backs tests and single-instance development setups.
package memory

import (
	"context"
	"sync"

	"docgen/internal/domain/entity"
	"docgen/internal/domain/repository"
	"docgen/internal/infrastructure/metrics"
)

type Store struct {
	mu      sync.RWMutex
	records map[string]*entity.GenerationRecord
	targets map[string]struct{}
}

var (
	_ repository.GenerationRepository = (*Store)(nil)
	_ repository.TargetRepository     = (*Store)(nil)
)

func NewStore() *Store {
	return &Store{
		records: make(map[string]*entity.GenerationRecord),
		targets: make(map[string]struct{}),
	}
}

// AddTarget registers a target identifier as existing.
func (s *Store) AddTarget(targetID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.targets[targetID] = struct{}{}
}

func (s *Store) Exists(_ context.Context, targetID string) (bool, error) {
	metrics.IncStoreOp("memory", "exists")
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.targets[targetID]
	return ok, nil
}

func (s *Store) GetByTargetID(_ context.Context, targetID string) (*entity.GenerationRecord, error) {
	metrics.IncStoreOp("memory", "get")
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records[targetID].Clone(), nil
}

func (s *Store) Create(_ context.Context, targetID string, placeholder entity.Content) (*entity.GenerationRecord, error) {
	metrics.IncStoreOp("memory", "create")
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.records[targetID]; ok {
		return existing.Clone(), nil
	}
	rec := entity.NewGenerationRecord(targetID)
	rec.Content = placeholder.Clone()
	s.records[targetID] = rec
	metrics.IncRecordsCreated()
	return rec.Clone(), nil
}

func (s *Store) Save(_ context.Context, record *entity.GenerationRecord) error {
	metrics.IncStoreOp("memory", "save")
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[record.TargetID]; !ok {
		return entity.ErrRecordNotFound
	}
	s.records[record.TargetID] = record.Clone()
	return nil
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
