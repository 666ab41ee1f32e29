package redisstore

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docgen/internal/domain/entity"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewStoreWithClient(client, "test"), mr
}

func TestCreateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestStore(t)

	first, err := s.Create(ctx, "task-1", entity.NewPlaceholderContent())
	require.NoError(t, err)
	second, err := s.Create(ctx, "task-1", entity.NewPlaceholderContent())
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.True(t, second.Content.IsPlaceholder())
	assert.Len(t, mr.Keys(), 1)
	assert.True(t, mr.Exists("test:generation:task-1"))
}

func TestGetMissingReturnsNil(t *testing.T) {
	s, _ := newTestStore(t)

	rec, err := s.GetByTargetID(context.Background(), "nope")

	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestSaveRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	err := s.Save(ctx, entity.NewGenerationRecord("ghost"))
	assert.ErrorIs(t, err, entity.ErrRecordNotFound)

	rec, err := s.Create(ctx, "task-1", entity.NewPlaceholderContent())
	require.NoError(t, err)
	msg := "provider down"
	rec.Status = entity.GenerationStatusFailed
	rec.Error = &msg
	require.NoError(t, s.Save(ctx, rec))

	stored, err := s.GetByTargetID(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, entity.GenerationStatusFailed, stored.Status)
	require.NotNil(t, stored.Error)
	assert.Equal(t, msg, *stored.Error)
}

func TestExists(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	require.NoError(t, s.AddTarget(ctx, "task-1"))

	ok, err := s.Exists(ctx, "task-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Exists(ctx, "task-2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewStoreRequiresAddr(t *testing.T) {
	_, err := NewStore(Config{})
	assert.Error(t, err)
}
