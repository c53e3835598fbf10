// Package embedding provides the pluggable EmbeddingProvider named in
// spec §1's "LLM/embedding provider" non-goal: this module defines the
// interface and ships one deterministic fake plus one real, swappable
// implementation, but never requires a network call to function.
package embedding

import (
	"context"
	"hash/fnv"
	"math"
)

// Provider turns free text into a fixed-dimension embedding vector, used
// to score intent against tool/capability embeddings in SHGAT (spec
// §4.5.3).
type Provider interface {
	Embed(ctx context.Context, text string) ([]float64, error)
	Dim() int
}

// HashEmbedder is a deterministic, dependency-free fake: it hashes
// overlapping character n-grams of text into a fixed-size vector and L2
// normalizes the result. Same input always produces the same output, and
// no process ever blocks on a network call — useful for tests and for
// running the graphrag core without an LLM provider configured.
type HashEmbedder struct {
	dim int
}

// NewHashEmbedder returns a HashEmbedder producing dim-dimensional
// vectors.
func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = 64
	}
	return &HashEmbedder{dim: dim}
}

func (h *HashEmbedder) Dim() int { return h.dim }

func (h *HashEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	out := make([]float64, h.dim)
	if text == "" {
		return out, nil
	}
	const n = 3
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		end := i + n
		if end > len(runes) {
			end = len(runes)
		}
		gram := string(runes[i:end])
		hasher := fnv.New64a()
		_, _ = hasher.Write([]byte(gram))
		idx := int(hasher.Sum64() % uint64(h.dim))
		out[idx] += 1
	}
	var norm float64
	for _, v := range out {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return out, nil
	}
	for i := range out {
		out[i] /= norm
	}
	return out, nil
}
