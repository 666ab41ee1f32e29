// Package redisstore stores generation records as JSON values in Redis.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"docgen/internal/domain/entity"
	"docgen/internal/domain/repository"
	"docgen/internal/infrastructure/metrics"
)

type Config struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

type Store struct {
	client *redis.Client
	prefix string
}

var (
	_ repository.GenerationRepository = (*Store)(nil)
	_ repository.TargetRepository     = (*Store)(nil)
)

func NewStore(cfg Config) (*Store, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("redis addr required")
	}
	return NewStoreWithClient(redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}), cfg.KeyPrefix), nil
}

func NewStoreWithClient(client *redis.Client, prefix string) *Store {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "docgen"
	}
	return &Store{client: client, prefix: prefix}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) recordKey(targetID string) string {
	return s.prefix + ":generation:" + targetID
}

func (s *Store) targetsKey() string {
	return s.prefix + ":targets"
}

// AddTarget registers a target identifier as existing.
func (s *Store) AddTarget(ctx context.Context, targetID string) error {
	return s.client.SAdd(ctx, s.targetsKey(), targetID).Err()
}

func (s *Store) Exists(ctx context.Context, targetID string) (bool, error) {
	metrics.IncStoreOp("redis", "exists")
	ok, err := s.client.SIsMember(ctx, s.targetsKey(), targetID).Result()
	if err != nil {
		metrics.IncError("redis_store", "exists_error")
		return false, fmt.Errorf("lookup target %s: %w", targetID, err)
	}
	return ok, nil
}

func (s *Store) GetByTargetID(ctx context.Context, targetID string) (*entity.GenerationRecord, error) {
	metrics.IncStoreOp("redis", "get")
	raw, err := s.client.Get(ctx, s.recordKey(targetID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		metrics.IncError("redis_store", "get_error")
		return nil, fmt.Errorf("get generation for target %s: %w", targetID, err)
	}
	var rec entity.GenerationRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode generation for target %s: %w", targetID, err)
	}
	return &rec, nil
}

// Create relies on SETNX so only the first writer for a target inserts.
func (s *Store) Create(ctx context.Context, targetID string, placeholder entity.Content) (*entity.GenerationRecord, error) {
	metrics.IncStoreOp("redis", "create")

	rec := entity.NewGenerationRecord(targetID)
	rec.Content = placeholder.Clone()
	payload, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode generation: %w", err)
	}

	created, err := s.client.SetNX(ctx, s.recordKey(targetID), payload, 0).Result()
	if err != nil {
		metrics.IncError("redis_store", "create_error")
		return nil, fmt.Errorf("create generation for target %s: %w", targetID, err)
	}
	if created {
		metrics.IncRecordsCreated()
		return rec, nil
	}

	existing, err := s.GetByTargetID(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("generation for target %s vanished during create", targetID)
	}
	return existing, nil
}

func (s *Store) Save(ctx context.Context, record *entity.GenerationRecord) error {
	metrics.IncStoreOp("redis", "save")

	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode generation: %w", err)
	}
	updated, err := s.client.SetXX(ctx, s.recordKey(record.TargetID), payload, 0).Result()
	if err != nil {
		metrics.IncError("redis_store", "save_error")
		return fmt.Errorf("save generation for target %s: %w", record.TargetID, err)
	}
	if !updated {
		return entity.ErrRecordNotFound
	}
	return nil
}
