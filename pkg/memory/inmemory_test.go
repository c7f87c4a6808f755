package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepresearch-labs/agent/pkg/memory"
)

func TestAddThenSearchFindsMostSimilar(t *testing.T) {
	store := memory.NewInMemoryStore(memory.NewHashEmbedder(64), 0.85)
	ctx := context.Background()

	added, err := store.Add(ctx, []memory.Document{
		{ID: "1", Content: "the capital of France is Paris"},
		{ID: "2", Content: "the weather in Tokyo is mild"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	results, err := store.Search(ctx, "the capital of France is Paris", 2, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "1", results[0].ID)
}

func TestSearchFilterRestrictsToMatchingMetadata(t *testing.T) {
	store := memory.NewInMemoryStore(memory.NewHashEmbedder(64), 0.85)
	ctx := context.Background()

	_, err := store.Add(ctx, []memory.Document{
		{ID: "1", Content: "the capital of France is Paris", Metadata: map[string]string{"type": "finding"}},
		{ID: "2", Content: "the capital of France is Paris too", Metadata: map[string]string{"type": "note"}},
	})
	require.NoError(t, err)

	results, err := store.Search(ctx, "the capital of France is Paris", 5, map[string]string{"type": "finding"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "1", results[0].ID)
}

func TestAddSkipsExactDuplicateContent(t *testing.T) {
	store := memory.NewInMemoryStore(memory.NewHashEmbedder(64), 0.85)
	ctx := context.Background()

	added1, err := store.Add(ctx, []memory.Document{{ID: "1", Content: "same text"}})
	require.NoError(t, err)
	assert.Equal(t, 1, added1)

	added2, err := store.Add(ctx, []memory.Document{{ID: "2", Content: "same text"}})
	require.NoError(t, err)
	assert.Equal(t, 0, added2, "identical content is an exact duplicate and must not be added twice")
}

func TestCheckDuplicateReportsClosestMatch(t *testing.T) {
	store := memory.NewInMemoryStore(memory.NewHashEmbedder(64), 0.99)
	ctx := context.Background()

	_, err := store.Add(ctx, []memory.Document{{ID: "1", Content: "unique content about whales"}})
	require.NoError(t, err)

	result, err := store.CheckDuplicate(ctx, "totally different content about rockets")
	require.NoError(t, err)
	assert.False(t, result.IsDuplicate)
	assert.Equal(t, "1", result.MostSimilarID)
}

func TestCountAndDeleteCollection(t *testing.T) {
	store := memory.NewInMemoryStore(memory.NewHashEmbedder(64), 0.85)
	ctx := context.Background()

	_, err := store.Add(ctx, []memory.Document{{ID: "1", Content: "a"}, {ID: "2", Content: "b"}})
	require.NoError(t, err)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, store.DeleteCollection(ctx))
	n, err = store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestHashEmbedderIsDeterministic(t *testing.T) {
	e := memory.NewHashEmbedder(32)
	v1, err := e.Embed(context.Background(), []string{"hello world"})
	require.NoError(t, err)
	v2, err := e.Embed(context.Background(), []string{"hello world"})
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
	assert.InDelta(t, 1.0, memory.CosineSimilarity(v1[0], v2[0]), 1e-6)
}
