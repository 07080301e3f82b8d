package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Handle is the process-wide, lazily initialized embedder. The first caller
// triggers the Loader; callers arriving while it runs wait for the same load.
// A failed load leaves the handle retryable by the next call.
type Handle struct {
	name    string
	load    Loader
	retries uint64
	backoff time.Duration
	cache   VectorCache

	group singleflight.Group

	mu         sync.RWMutex
	model      Model
	status     Status
	lastErr    error
	attempts   int
	waiters    map[int]ProgressFunc
	nextWaiter int
}

type Option func(*Handle)

// WithRetry sets how many times a failed load is retried and the initial
// exponential backoff between attempts.
func WithRetry(retries int, backoff time.Duration) Option {
	return func(h *Handle) {
		if retries >= 0 {
			h.retries = uint64(retries)
		}
		if backoff > 0 {
			h.backoff = backoff
		}
	}
}

func WithCache(c VectorCache) Option {
	return func(h *Handle) { h.cache = c }
}

func NewHandle(name string, load Loader, opts ...Option) *Handle {
	h := &Handle{
		name:    name,
		load:    load,
		retries: 2,
		backoff: 500 * time.Millisecond,
		status:  StatusIdle,
		waiters: make(map[int]ProgressFunc),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Prewarm starts initialization in the background. Failure is logged and the
// next real request retries.
func (h *Handle) Prewarm(ctx context.Context) {
	go func() {
		if err := h.Ensure(ctx, nil); err != nil {
			slog.Warn("embedding model pre-warm failed, will load on demand", "model", h.name, "error", err)
		}
	}()
}

// Ensure blocks until the model is loaded. report, when non-nil, receives the
// progress of whichever load is in flight.
func (h *Handle) Ensure(ctx context.Context, report ProgressFunc) error {
	if h.current() != nil {
		return nil
	}

	id := h.addWaiter(report)
	defer h.removeWaiter(id)

	ch := h.group.DoChan("init", func() (any, error) {
		return nil, h.initialize(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		return res.Err
	}
}

func (h *Handle) initialize(ctx context.Context) error {
	h.mu.Lock()
	if h.model != nil {
		h.mu.Unlock()
		return nil
	}
	h.status = StatusLoading
	h.mu.Unlock()

	start := time.Now()
	var model Model
	b := retry.WithMaxRetries(h.retries, retry.NewExponential(h.backoff))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		h.mu.Lock()
		h.attempts++
		attempt := h.attempts
		h.mu.Unlock()

		m, err := h.load(ctx, h.broadcast)
		if err != nil {
			slog.Warn("embedding model load failed", "model", h.name, "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		model = m
		return nil
	})

	h.mu.Lock()
	defer h.mu.Unlock()
	if err != nil {
		h.status = StatusFailed
		h.lastErr = err
		return fmt.Errorf("%w: %s: %w", ErrInitFailed, h.name, err)
	}

	h.model = model
	h.status = StatusReady
	h.lastErr = nil
	slog.Info("embedding model ready",
		"model", model.Name(),
		"dimension", model.Dimension(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func (h *Handle) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := h.Ensure(ctx, nil); err != nil {
		return nil, err
	}
	model := h.current()

	if h.cache != nil {
		if vec, ok := h.cache.Lookup(ctx, model.Name(), text); ok {
			return vec, nil
		}
	}

	vec, err := model.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed text: %w", err)
	}
	if len(vec) == 0 {
		return nil, ErrNoVector
	}

	if h.cache != nil {
		h.cache.Store(ctx, model.Name(), text, vec)
	}
	return vec, nil
}

// EmbedBatch embeds all texts concurrently. The i-th vector always belongs to
// the i-th text.
func (h *Handle) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := h.Ensure(ctx, nil); err != nil {
		return nil, err
	}

	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	for i, text := range texts {
		g.Go(func() error {
			vec, err := h.Embed(gctx, text)
			if err != nil {
				return fmt.Errorf("embed batch item %d: %w", i, err)
			}
			out[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (h *Handle) State() State {
	h.mu.RLock()
	defer h.mu.RUnlock()

	st := State{Status: h.status, Model: h.name, Attempts: h.attempts}
	if h.model != nil {
		st.Model = h.model.Name()
		st.Dimension = h.model.Dimension()
	}
	if h.lastErr != nil {
		st.Error = h.lastErr.Error()
	}
	return st
}

func (h *Handle) current() Model {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.model
}

func (h *Handle) addWaiter(report ProgressFunc) int {
	if report == nil {
		return -1
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextWaiter
	h.nextWaiter++
	h.waiters[id] = report
	return id
}

func (h *Handle) removeWaiter(id int) {
	if id < 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.waiters, id)
}

func (h *Handle) broadcast(percent float64) {
	h.mu.RLock()
	reports := make([]ProgressFunc, 0, len(h.waiters))
	for _, r := range h.waiters {
		reports = append(reports, r)
	}
	h.mu.RUnlock()

	for _, r := range reports {
		r(percent)
	}
}
