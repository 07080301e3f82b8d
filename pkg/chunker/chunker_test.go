package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunk_SkyAndGrass(t *testing.T) {
	chunks, err := Chunk("The sky is blue. The grass is green.", 20, 5)
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	assert.Equal(t, "The sky is blue. The", chunks[0])
	assert.Equal(t, ". The grass is green", chunks[1])
	assert.Equal(t, "green.", chunks[2])
}

func TestChunk_EmptyText(t *testing.T) {
	chunks, err := Chunk("", 20, 5)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestChunk_ShortTextSingleWindow(t *testing.T) {
	chunks, err := Chunk("tiny", 20, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"tiny"}, chunks)
}

func TestChunk_InvalidOptions(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		overlap int
	}{
		{"overlap equals size", 10, 10},
		{"overlap exceeds size", 10, 11},
		{"zero size", 0, 0},
		{"negative overlap", 10, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Chunk("some text that is long enough", tt.size, tt.overlap)
			require.ErrorIs(t, err, ErrInvalidOptions)
		})
	}
}

func TestSplit_CoverageAndCount(t *testing.T) {
	text := strings.Repeat("abcdefghij", 37) + "xyz"
	n := len([]rune(text))

	for _, opts := range []Options{
		{ChunkSize: 20, ChunkOverlap: 5},
		{ChunkSize: 7, ChunkOverlap: 1},
		{ChunkSize: 50, ChunkOverlap: 49},
		{ChunkSize: 13, ChunkOverlap: 0},
		{ChunkSize: 1000, ChunkOverlap: 100},
	} {
		chunks, err := Split(text, opts)
		require.NoError(t, err)

		step := opts.ChunkSize - opts.ChunkOverlap
		assert.Len(t, chunks, (n+step-1)/step, "opts %+v", opts)

		covered := make([]bool, n)
		for i, c := range chunks {
			assert.Equal(t, i, c.Index)
			assert.Equal(t, i*step, c.Start)
			assert.LessOrEqual(t, c.End-c.Start, opts.ChunkSize)
			assert.Equal(t, string([]rune(text)[c.Start:c.End]), c.Content)
			for j := c.Start; j < c.End; j++ {
				covered[j] = true
			}
		}
		for i, ok := range covered {
			require.True(t, ok, "index %d not covered with opts %+v", i, opts)
		}
	}
}

func TestSplit_Deterministic(t *testing.T) {
	text := "Go is expressive, concise, clean, and efficient."
	first, err := Split(text, Options{ChunkSize: 11, ChunkOverlap: 3})
	require.NoError(t, err)
	second, err := Split(text, Options{ChunkSize: 11, ChunkOverlap: 3})
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSplit_MultibyteRunes(t *testing.T) {
	text := "héllo wörld ünïcode"
	chunks, err := Split(text, Options{ChunkSize: 5, ChunkOverlap: 1})
	require.NoError(t, err)

	for _, c := range chunks {
		assert.LessOrEqual(t, len([]rune(c.Content)), 5)
	}
	assert.Equal(t, "héllo", chunks[0].Content)
}
