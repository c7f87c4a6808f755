package mcpserver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepresearch-labs/agent/pkg/config"
	"github.com/deepresearch-labs/agent/pkg/memory"
	"github.com/deepresearch-labs/agent/pkg/nodes"
)

func TestFormatRecallFiltersBelowThreshold(t *testing.T) {
	cfg := config.MemoryConfig{RelevanceThreshold: 0.80, StalenessDays: 30}
	results := []memory.SimilarityResult{
		{Content: "relevant", Score: 0.9},
		{Content: "irrelevant", Score: 0.5},
	}
	entries := formatRecall(results, cfg)
	require.Len(t, entries, 1)
	assert.Equal(t, "relevant", entries[0].Content)
}

func TestFormatRecallAnnotatesStaleEntries(t *testing.T) {
	cfg := config.MemoryConfig{RelevanceThreshold: 0.80, StalenessDays: 30}
	old := time.Now().UTC().AddDate(0, 0, -60).Format(time.RFC3339)
	results := []memory.SimilarityResult{
		{Content: "old finding", Score: 0.9, Metadata: map[string]string{"stored_at": old}},
		{Content: "fresh finding", Score: 0.9, Metadata: map[string]string{"stored_at": time.Now().UTC().Format(time.RFC3339)}},
	}
	entries := formatRecall(results, cfg)
	require.Len(t, entries, 2)
	assert.True(t, entries[0].Stale)
	assert.False(t, entries[1].Stale)
}

func TestFormatRecallDefaultsWhenUnconfigured(t *testing.T) {
	results := []memory.SimilarityResult{{Content: "x", Score: 0.85}}
	entries := formatRecall(results, config.MemoryConfig{})
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Stale, "an entry with no stored_at can't be vouched for and is treated as stale")
}

type fakeEvaluator struct {
	result nodes.EvaluationResult
	err    error
}

func (f *fakeEvaluator) Evaluate(ctx context.Context, query, report string) (nodes.EvaluationResult, error) {
	return f.result, f.err
}

func TestHandleEvaluateDelegatesToEvaluator(t *testing.T) {
	s := &Server{evaluator: &fakeEvaluator{result: nodes.EvaluationResult{OverallScore: 7.5}}}
	_, out, err := s.handleEvaluate(context.Background(), nil, evaluateInput{Query: "q", Report: "r"})
	require.NoError(t, err)
	assert.Equal(t, 7.5, out.OverallScore)
}

func TestHandleEvaluateRejectsWhenUnconfigured(t *testing.T) {
	s := &Server{}
	_, _, err := s.handleEvaluate(context.Background(), nil, evaluateInput{Query: "q", Report: "r"})
	require.Error(t, err)
}

type fakeMemoryStore struct {
	results []memory.SimilarityResult
}

func (f *fakeMemoryStore) Add(ctx context.Context, docs []memory.Document) (int, error) {
	return len(docs), nil
}
func (f *fakeMemoryStore) Search(ctx context.Context, query string, n int, filter map[string]string) ([]memory.SimilarityResult, error) {
	return f.results, nil
}
func (f *fakeMemoryStore) CheckDuplicate(ctx context.Context, content string) (memory.DeduplicationResult, error) {
	return memory.DeduplicationResult{}, nil
}
func (f *fakeMemoryStore) Count(ctx context.Context) (int, error)     { return len(f.results), nil }
func (f *fakeMemoryStore) DeleteCollection(ctx context.Context) error { return nil }

func TestHandleRecallFormatsStoreResults(t *testing.T) {
	s := &Server{
		memory: &fakeMemoryStore{results: []memory.SimilarityResult{{Content: "found it", Score: 0.95}}},
		cfg:    config.MemoryConfig{RelevanceThreshold: 0.80, MaxResults: 5},
	}
	_, out, err := s.handleRecall(context.Background(), nil, recallInput{Query: "q"})
	require.NoError(t, err)
	require.Len(t, out.Entries, 1)
	assert.Equal(t, "found it", out.Entries[0].Content)
}

func TestHandleRecallRejectsWhenUnconfigured(t *testing.T) {
	s := &Server{}
	_, _, err := s.handleRecall(context.Background(), nil, recallInput{Query: "q"})
	require.Error(t, err)
}
