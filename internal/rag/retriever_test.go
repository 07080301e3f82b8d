package rag

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nikhilbhutani/retrieva/internal/vectorstore"
)

func scored(texts ...string) []vectorstore.ScoredChunk {
	out := make([]vectorstore.ScoredChunk, len(texts))
	for i, t := range texts {
		out[i] = vectorstore.ScoredChunk{EmbeddedChunk: vectorstore.EmbeddedChunk{Text: t}}
	}
	return out
}

func TestAssembleContext(t *testing.T) {
	tests := []struct {
		name    string
		results []vectorstore.ScoredChunk
		limit   int
		want    string
	}{
		{"joins with single space", scored("alpha", "beta", "gamma"), 100, "alpha beta gamma"},
		{"truncates after joining", scored("alpha", "beta"), 8, "alpha be"},
		{"exact fit", scored("ab", "cd"), 5, "ab cd"},
		{"empty results", nil, 10, ""},
		{"counts characters not bytes", scored("héllo", "wörld"), 7, "héllo w"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AssembleContext(tt.results, tt.limit))
		})
	}
}
