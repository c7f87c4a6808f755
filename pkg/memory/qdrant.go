package memory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// QdrantStore is the concrete SimilarityStore adapter backing production
// deployments: everything about the vector database lives here, behind
// the same narrow interface the in-memory test double satisfies.
type QdrantStore struct {
	client         *qdrant.Client
	collection     string
	embedder       Embedder
	dedupThreshold float64
}

// QdrantConfig names the collection and connection details for a
// QdrantStore.
type QdrantConfig struct {
	Host           string
	Port           int
	APIKey         string
	UseTLS         bool
	Collection     string
	DedupThreshold float64 // defaults to 0.85, the content-level threshold
}

// NewQdrantStore connects to a Qdrant instance and ensures cfg.Collection
// exists, creating it sized to embedder's vector dimensions if needed.
func NewQdrantStore(ctx context.Context, cfg QdrantConfig, embedder Embedder) (*QdrantStore, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("memory: connect qdrant: %w", err)
	}

	exists, err := client.CollectionExists(ctx, cfg.Collection)
	if err != nil {
		return nil, fmt.Errorf("memory: check collection: %w", err)
	}
	if !exists {
		if err := client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: cfg.Collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(embedder.Dimensions()),
				Distance: qdrant.Distance_Cosine,
			}),
		}); err != nil {
			return nil, fmt.Errorf("memory: create collection: %w", err)
		}
	}

	threshold := cfg.DedupThreshold
	if threshold <= 0 {
		threshold = defaultContentDedupThreshold
	}

	return &QdrantStore{client: client, collection: cfg.Collection, embedder: embedder, dedupThreshold: threshold}, nil
}

// Add embeds and upserts docs, skipping exact-duplicate content.
func (s *QdrantStore) Add(ctx context.Context, docs []Document) (int, error) {
	added := 0
	for _, doc := range docs {
		dedup, err := s.CheckDuplicate(ctx, doc.Content)
		if err != nil {
			return added, err
		}
		if dedup.SimilarityScore >= defaultExactDedupThreshold {
			continue
		}

		vecs, err := s.embedder.Embed(ctx, []string{doc.Content})
		if err != nil {
			return added, err
		}

		payload := map[string]any{"content": doc.Content}
		for k, v := range doc.Metadata {
			payload[k] = v
		}

		id := doc.ID
		if id == "" {
			id = uuid.New().String()
		}

		if _, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.collection,
			Points: []*qdrant.PointStruct{{
				Id:      qdrant.NewIDUUID(id),
				Vectors: qdrant.NewVectors(vecs[0]...),
				Payload: qdrant.NewValueMap(payload),
			}},
		}); err != nil {
			return added, fmt.Errorf("memory: upsert point: %w", err)
		}
		added++
	}
	return added, nil
}

// Search returns the n documents most similar to query, optionally
// restricted to documents whose metadata matches filter exactly.
func (s *QdrantStore) Search(ctx context.Context, query string, n int, filter map[string]string) ([]SimilarityResult, error) {
	vecs, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}

	limit := uint64(n)
	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vecs[0]...),
		Filter:         qdrantFilter(filter),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("memory: query: %w", err)
	}

	out := make([]SimilarityResult, 0, len(points))
	for _, p := range points {
		out = append(out, toSimilarityResult(p))
	}
	return out, nil
}

// qdrantFilter builds an exact-match AND filter over payload fields, or
// nil when filter is empty (Qdrant treats a nil filter as "match all").
func qdrantFilter(filter map[string]string) *qdrant.Filter {
	if len(filter) == 0 {
		return nil
	}
	conditions := make([]*qdrant.Condition, 0, len(filter))
	for k, v := range filter {
		conditions = append(conditions, qdrant.NewMatch(k, v))
	}
	return &qdrant.Filter{Must: conditions}
}

// CheckDuplicate finds the closest stored document to content and
// reports whether it exceeds the store's dedup threshold.
func (s *QdrantStore) CheckDuplicate(ctx context.Context, content string) (DeduplicationResult, error) {
	results, err := s.Search(ctx, content, 1, nil)
	if err != nil {
		return DeduplicationResult{}, err
	}
	if len(results) == 0 {
		return DeduplicationResult{}, nil
	}
	top := results[0]
	return DeduplicationResult{
		IsDuplicate:     top.Score >= s.dedupThreshold,
		MostSimilarID:   top.ID,
		SimilarityScore: top.Score,
	}, nil
}

// Count returns the number of points stored in the collection.
func (s *QdrantStore) Count(ctx context.Context) (int, error) {
	exact := true
	n, err := s.client.Count(ctx, &qdrant.CountPoints{CollectionName: s.collection, Exact: &exact})
	if err != nil {
		return 0, fmt.Errorf("memory: count: %w", err)
	}
	return int(n), nil
}

// DeleteCollection drops the collection entirely.
func (s *QdrantStore) DeleteCollection(ctx context.Context) error {
	if err := s.client.DeleteCollection(ctx, s.collection); err != nil {
		return fmt.Errorf("memory: delete collection: %w", err)
	}
	return nil
}

func toSimilarityResult(p *qdrant.ScoredPoint) SimilarityResult {
	content := ""
	metadata := make(map[string]string)
	for k, v := range p.GetPayload() {
		if k == "content" {
			content = v.GetStringValue()
			continue
		}
		metadata[k] = v.GetStringValue()
	}
	return SimilarityResult{
		ID:       p.GetId().GetUuid(),
		Content:  content,
		Score:    float64(p.GetScore()),
		Metadata: metadata,
	}
}
