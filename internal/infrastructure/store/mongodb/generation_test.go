package mongodb

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docgen/internal/domain/entity"
)

func TestDocContentDecodesToPlainJSONTypes(t *testing.T) {
	var content map[string]any
	require.NoError(t, json.Unmarshal([]byte(`{
		"chapter2": {"title": "Key Concepts", "concepts": [{"name": "loop", "tags": ["a", "b"]}]},
		"chapter7": {"title": "Common Mistakes", "mistakes": []}
	}`), &content))

	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	rec := entity.NewGenerationRecord("task-1")
	rec.Content = content
	rec.MarkInProgress(started, "job-9")

	doc, err := toDoc(rec)
	require.NoError(t, err)
	back, err := fromDoc(doc)
	require.NoError(t, err)

	concepts, ok := back.Content["chapter2"].(map[string]any)["concepts"].([]any)
	require.True(t, ok, "arrays must decode as []any")
	first, ok := concepts[0].(map[string]any)
	require.True(t, ok, "nested objects must decode as map[string]any")
	assert.Equal(t, "loop", first["name"])
	assert.Equal(t, []any{"a", "b"}, first["tags"])

	assert.Equal(t, entity.GenerationStatusInProgress, back.Status)
	assert.Equal(t, "job-9", *back.ExternalJobID)
	assert.True(t, started.Equal(*back.StartedAt))
}

func TestDocPlaceholderSurvives(t *testing.T) {
	rec := entity.NewGenerationRecord("task-1")

	doc, err := toDoc(rec)
	require.NoError(t, err)
	back, err := fromDoc(doc)
	require.NoError(t, err)

	assert.True(t, back.Content.IsPlaceholder())
	assert.False(t, back.HasGeneratedContent())
}
