package memory

import (
	"context"
	"sort"
	"sync"
)

const (
	defaultContentDedupThreshold = 0.85
	defaultExactDedupThreshold   = 0.95
)

// InMemoryStore is a SimilarityStore backed by a slice of vectors held in
// process memory — no external service, so the unit and integration test
// suites never need a live vector database to exercise memory-dependent
// code paths.
type InMemoryStore struct {
	embedder       Embedder
	dedupThreshold float64

	mu      sync.RWMutex
	docs    []Document
	vectors [][]float32
}

// NewInMemoryStore builds an InMemoryStore using embedder to vectorize
// content. A zero dedupThreshold defaults to 0.85, matching the
// original's content-level dedup threshold.
func NewInMemoryStore(embedder Embedder, dedupThreshold float64) *InMemoryStore {
	if dedupThreshold <= 0 {
		dedupThreshold = defaultContentDedupThreshold
	}
	return &InMemoryStore{embedder: embedder, dedupThreshold: dedupThreshold}
}

// Add embeds and stores docs, skipping any that are near-duplicates
// (cosine similarity >= exact-dedup threshold) of an already-stored
// document. Returns the number actually added.
func (s *InMemoryStore) Add(ctx context.Context, docs []Document) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := 0
	for _, doc := range docs {
		vecs, err := s.embedder.Embed(ctx, []string{doc.Content})
		if err != nil {
			return added, err
		}
		vec := vecs[0]

		if s.mostSimilarLocked(vec) >= defaultExactDedupThreshold {
			continue
		}

		s.docs = append(s.docs, doc)
		s.vectors = append(s.vectors, vec)
		added++
	}
	return added, nil
}

// matchesFilter reports whether metadata contains every key/value pair in
// filter. An empty filter matches everything.
func matchesFilter(metadata, filter map[string]string) bool {
	for k, v := range filter {
		if metadata[k] != v {
			return false
		}
	}
	return true
}

func (s *InMemoryStore) mostSimilarLocked(vec []float32) float64 {
	best := 0.0
	for _, existing := range s.vectors {
		if score := CosineSimilarity(vec, existing); score > best {
			best = score
		}
	}
	return best
}

// Search returns the n documents most similar to query, highest score
// first, restricted to documents whose metadata matches filter exactly
// when filter is non-empty.
func (s *InMemoryStore) Search(ctx context.Context, query string, n int, filter map[string]string) ([]SimilarityResult, error) {
	vecs, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	qvec := vecs[0]

	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []SimilarityResult
	for i, doc := range s.docs {
		if !matchesFilter(doc.Metadata, filter) {
			continue
		}
		results = append(results, SimilarityResult{
			ID:       doc.ID,
			Content:  doc.Content,
			Score:    CosineSimilarity(qvec, s.vectors[i]),
			Metadata: doc.Metadata,
		})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })

	if n > 0 && len(results) > n {
		results = results[:n]
	}
	return results, nil
}

// CheckDuplicate reports whether content is a near-duplicate (cosine
// similarity >= the store's content dedup threshold) of a stored document.
func (s *InMemoryStore) CheckDuplicate(ctx context.Context, content string) (DeduplicationResult, error) {
	vecs, err := s.embedder.Embed(ctx, []string{content})
	if err != nil {
		return DeduplicationResult{}, err
	}
	vec := vecs[0]

	s.mu.RLock()
	defer s.mu.RUnlock()

	bestScore := 0.0
	bestID := ""
	for i, existing := range s.vectors {
		if score := CosineSimilarity(vec, existing); score > bestScore {
			bestScore = score
			bestID = s.docs[i].ID
		}
	}

	return DeduplicationResult{
		IsDuplicate:     bestScore >= s.dedupThreshold,
		MostSimilarID:   bestID,
		SimilarityScore: bestScore,
	}, nil
}

// Count returns the number of stored documents.
func (s *InMemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs), nil
}

// DeleteCollection removes every stored document.
func (s *InMemoryStore) DeleteCollection(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = nil
	s.vectors = nil
	return nil
}
