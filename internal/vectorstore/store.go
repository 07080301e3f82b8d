package vectorstore

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
)

var (
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrEmptyEmbedding    = errors.New("empty embedding")
)

type EmbeddedChunk struct {
	Text      string    `json:"text"`
	Embedding []float32 `json:"-"`
	Source    string    `json:"source"`
}

type ScoredChunk struct {
	EmbeddedChunk
	Score float64 `json:"score"`
}

// Store is an append-only, in-memory collection of embedded chunks owned by a
// single session. The first appended chunk fixes the dimension.
type Store struct {
	mu     sync.RWMutex
	dim    int
	chunks []EmbeddedChunk
}

func NewStore() *Store {
	return &Store{}
}

func (s *Store) Append(c EmbeddedChunk) error {
	return s.AppendBatch([]EmbeddedChunk{c})
}

// AppendBatch appends all chunks or none of them.
func (s *Store) AppendBatch(chunks []EmbeddedChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dim := s.dim
	for i, c := range chunks {
		if len(c.Embedding) == 0 {
			return fmt.Errorf("append chunk %d: %w", i, ErrEmptyEmbedding)
		}
		if dim == 0 {
			dim = len(c.Embedding)
		}
		if len(c.Embedding) != dim {
			return fmt.Errorf("append chunk %d: %w: got %d, want %d", i, ErrDimensionMismatch, len(c.Embedding), dim)
		}
	}

	s.dim = dim
	s.chunks = append(s.chunks, chunks...)
	return nil
}

// Search returns the min(k, Len()) chunks most similar to query, highest
// score first. Equal scores keep insertion order.
func (s *Store) Search(query []float32, k int) ([]ScoredChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if k <= 0 || len(s.chunks) == 0 {
		return []ScoredChunk{}, nil
	}
	if len(query) != s.dim {
		return nil, fmt.Errorf("search: %w: got %d, want %d", ErrDimensionMismatch, len(query), s.dim)
	}

	scored := make([]ScoredChunk, len(s.chunks))
	for i, c := range s.chunks {
		scored[i] = ScoredChunk{EmbeddedChunk: c, Score: CosineSimilarity(query, c.Embedding)}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if k < len(scored) {
		scored = scored[:k]
	}
	return scored, nil
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

func (s *Store) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dim
}

// Reset drops every chunk and the fixed dimension.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = nil
	s.dim = 0
}

// CosineSimilarity returns dot(a,b)/(|a||b|), or 0 when either vector has zero
// magnitude or the lengths differ.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	score := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	// Rounding can push parallel vectors a hair past ±1.
	return math.Max(-1, math.Min(1, score))
}
