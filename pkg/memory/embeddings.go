package memory

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
)

const defaultDimensions = 768

// HashEmbedder is a deterministic, dependency-free stand-in for a real
// embedding model: it is not semantically meaningful, but it is stable
// (the same text always maps to the same vector) and cheap, which is
// enough to exercise every SimilarityStore call site without requiring a
// live embedding service. A real deployment swaps this for a model-backed
// Embedder behind the same interface — matching
// original_source/embeddings.py's own not-fully-wired state, where
// embed() is a stub raising NotImplementedError.
type HashEmbedder struct {
	dims int
}

// NewHashEmbedder builds a HashEmbedder producing vectors of dims
// dimensions; zero defaults to 768, matching the original's default
// nomic-embed-text dimensionality.
func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = defaultDimensions
	}
	return &HashEmbedder{dims: dims}
}

// Dimensions reports the vector length this embedder produces.
func (h *HashEmbedder) Dimensions() int { return h.dims }

// Embed maps each text to a deterministic, L2-normalized pseudo-vector
// derived from repeated SHA-256 hashing of the text plus a counter.
func (h *HashEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = h.embedOne(text)
	}
	return out, nil
}

func (h *HashEmbedder) embedOne(text string) []float32 {
	vec := make([]float32, h.dims)
	block := 0
	seed := []byte(text)
	var buf [8]byte
	for i := 0; i < h.dims; i += 32 {
		binary.BigEndian.PutUint64(buf[:], uint64(block))
		sum := sha256.Sum256(append(append([]byte{}, seed...), buf[:]...))
		for j := 0; j < 32 && i+j < h.dims; j++ {
			// map each byte to [-1, 1]
			vec[i+j] = float32(int(sum[j])-128) / 128.0
		}
		block++
	}
	return normalize(vec)
}

func normalize(v []float32) []float32 {
	var sumSquares float64
	for _, x := range v {
		sumSquares += float64(x) * float64(x)
	}
	norm := math.Sqrt(sumSquares)
	if norm == 0 {
		return v
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// CosineSimilarity returns the cosine similarity of two equal-length
// vectors, 0 if either is the zero vector.
func CosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
