package embedding

import (
	"context"
	"errors"
)

var (
	ErrInitFailed = errors.New("embedding model initialization failed")
	ErrNoVector   = errors.New("no embedding returned")
)

// Model maps text to a fixed-length vector. Implementations must be safe for
// concurrent use once constructed.
type Model interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
	Name() string
}

// ProgressFunc receives initialization progress as a percentage in [0, 100].
type ProgressFunc func(percent float64)

// Loader builds a Model. It may be slow (downloads, warmup) and may fail.
type Loader func(ctx context.Context, report ProgressFunc) (Model, error)

// VectorCache memoizes embeddings by model name and text. Implementations
// swallow their own errors; a miss is always safe.
type VectorCache interface {
	Lookup(ctx context.Context, model, text string) ([]float32, bool)
	Store(ctx context.Context, model, text string, vec []float32)
}

type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	StatusFailed  Status = "failed"
)

// State is a point-in-time view of a Handle for health checks.
type State struct {
	Status    Status `json:"status"`
	Model     string `json:"model"`
	Dimension int    `json:"dimension,omitempty"`
	Attempts  int    `json:"attempts"`
	Error     string `json:"error,omitempty"`
}
