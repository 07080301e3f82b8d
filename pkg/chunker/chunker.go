package chunker

import (
	"errors"
	"fmt"
)

// ErrInvalidOptions is returned when the window size and overlap cannot
// produce forward progress.
var ErrInvalidOptions = errors.New("invalid chunk options")

type Options struct {
	ChunkSize    int // window size in characters
	ChunkOverlap int // characters shared by consecutive windows
}

type TextChunk struct {
	Content string
	Index   int
	Start   int // character offset, inclusive
	End     int // character offset, exclusive
}

func DefaultOptions() Options {
	return Options{
		ChunkSize:    500,
		ChunkOverlap: 50,
	}
}

func (o Options) Validate() error {
	if o.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk size %d must be positive", ErrInvalidOptions, o.ChunkSize)
	}
	if o.ChunkOverlap < 0 {
		return fmt.Errorf("%w: overlap %d must not be negative", ErrInvalidOptions, o.ChunkOverlap)
	}
	if o.ChunkOverlap >= o.ChunkSize {
		return fmt.Errorf("%w: overlap %d must be smaller than chunk size %d", ErrInvalidOptions, o.ChunkOverlap, o.ChunkSize)
	}
	return nil
}

// Split cuts text into fixed-size windows whose starts are ChunkSize-ChunkOverlap
// characters apart. The last window may be shorter. Empty text yields no chunks.
func Split(text string, opts Options) ([]TextChunk, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	runes := []rune(text)
	if len(runes) == 0 {
		return nil, nil
	}

	step := opts.ChunkSize - opts.ChunkOverlap
	chunks := make([]TextChunk, 0, (len(runes)+step-1)/step)

	for start := 0; start < len(runes); start += step {
		end := min(start+opts.ChunkSize, len(runes))
		chunks = append(chunks, TextChunk{
			Content: string(runes[start:end]),
			Index:   len(chunks),
			Start:   start,
			End:     end,
		})
	}

	return chunks, nil
}

// Chunk is Split without positional metadata.
func Chunk(text string, size, overlap int) ([]string, error) {
	chunks, err := Split(text, Options{ChunkSize: size, ChunkOverlap: overlap})
	if err != nil {
		return nil, err
	}
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Content
	}
	return out, nil
}
