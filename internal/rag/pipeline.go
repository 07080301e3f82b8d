package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/nikhilbhutani/retrieva/internal/embedding"
	"github.com/nikhilbhutani/retrieva/internal/llm"
	"github.com/nikhilbhutani/retrieva/internal/progress"
	"github.com/nikhilbhutani/retrieva/internal/session"
	"github.com/nikhilbhutani/retrieva/internal/vectorstore"
	"github.com/nikhilbhutani/retrieva/pkg/chunker"
)

var (
	ErrEmptyDocument   = errors.New("document text is empty")
	ErrSessionNotFound = errors.New("session not found")
)

// Embedder is the part of embedding.Handle the pipeline needs.
type Embedder interface {
	Ensure(ctx context.Context, report embedding.ProgressFunc) error
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Auditor records session activity. Implementations must not fail the caller.
type Auditor interface {
	Record(ctx context.Context, action, sessionID string, details map[string]any)
}

const (
	ActionIngest = "session.ingest"
	ActionQuery  = "session.query"
	ActionDelete = "session.delete"
)

type Options struct {
	Chunking     chunker.Options
	BatchSize    int // chunks embedded concurrently
	TopK         int
	ContextChars int // prompt context budget in characters
}

func DefaultOptions() Options {
	return Options{
		Chunking:     chunker.DefaultOptions(),
		BatchSize:    10,
		TopK:         3,
		ContextChars: 1000,
	}
}

func (o Options) Validate() error {
	if err := o.Chunking.Validate(); err != nil {
		return err
	}
	if o.BatchSize <= 0 {
		return fmt.Errorf("batch size %d must be positive", o.BatchSize)
	}
	if o.TopK <= 0 {
		return fmt.Errorf("top k %d must be positive", o.TopK)
	}
	if o.ContextChars <= 0 {
		return fmt.Errorf("context budget %d must be positive", o.ContextChars)
	}
	return nil
}

type Deps struct {
	Embedder Embedder
	Answerer llm.Answerer
	Sessions *session.Manager
	Progress *progress.Bus // optional
	Auditor  Auditor       // optional
}

// Pipeline ingests documents into per-session stores and answers questions
// grounded in them.
type Pipeline struct {
	embedder Embedder
	answerer llm.Answerer
	sessions *session.Manager
	progress *progress.Bus
	auditor  Auditor
	opts     Options
}

func NewPipeline(deps Deps, opts Options) (*Pipeline, error) {
	if deps.Embedder == nil || deps.Answerer == nil || deps.Sessions == nil {
		return nil, errors.New("rag pipeline: embedder, answerer and sessions are required")
	}
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("rag pipeline: %w", err)
	}
	return &Pipeline{
		embedder: deps.Embedder,
		answerer: deps.Answerer,
		sessions: deps.Sessions,
		progress: deps.Progress,
		auditor:  deps.Auditor,
		opts:     opts,
	}, nil
}

type IngestRequest struct {
	Filename string `json:"filename"`
	Text     string `json:"text"`
}

type IngestResponse struct {
	Filename    string `json:"filename"`
	Status      string `json:"status"`
	SessionID   string `json:"session_id"`
	ChunksAdded int    `json:"chunks_added"`
}

// Ingest indexes a document into a new session. If any step after the
// session is created fails, the session is removed again.
func (p *Pipeline) Ingest(ctx context.Context, req IngestRequest) (*IngestResponse, error) {
	start := time.Now()

	chunks, err := p.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	sess := p.sessions.CreatePinned(req.Filename)
	err = p.embedInto(ctx, sess, req.Filename, chunks)
	live := p.sessions.Release(sess)
	if err != nil {
		p.sessions.Remove(sess.ID)
		return nil, fmt.Errorf("ingest %s: %w", req.Filename, err)
	}
	if !live {
		return nil, fmt.Errorf("ingest %s: %w: %s removed during ingestion", req.Filename, ErrSessionNotFound, sess.ID)
	}

	p.ingested(ctx, sess.ID, req.Filename, len(chunks), start)
	return &IngestResponse{
		Filename:    req.Filename,
		Status:      "Success",
		SessionID:   sess.ID,
		ChunksAdded: len(chunks),
	}, nil
}

// IngestInto replaces the contents of an existing session with a new document.
func (p *Pipeline) IngestInto(ctx context.Context, sessionID string, req IngestRequest) (*IngestResponse, error) {
	start := time.Now()

	sess, ok := p.sessions.Acquire(sessionID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	chunks, err := p.prepare(ctx, req)
	if err != nil {
		p.sessions.Release(sess)
		return nil, err
	}

	sess.Store.Reset()
	err = p.embedInto(ctx, sess, req.Filename, chunks)
	live := p.sessions.Release(sess)
	if err != nil {
		sess.Store.Reset()
		return nil, fmt.Errorf("ingest %s into %s: %w", req.Filename, sessionID, err)
	}
	if !live {
		return nil, fmt.Errorf("ingest %s: %w: %s removed during ingestion", req.Filename, ErrSessionNotFound, sessionID)
	}

	p.ingested(ctx, sess.ID, req.Filename, len(chunks), start)
	return &IngestResponse{
		Filename:    req.Filename,
		Status:      "Success",
		SessionID:   sess.ID,
		ChunksAdded: len(chunks),
	}, nil
}

// Reserve mints an empty session to be filled later by IngestInto.
func (p *Pipeline) Reserve(filename string) string {
	return p.sessions.Create(filename).ID
}

func (p *Pipeline) Sessions() []session.Info {
	return p.sessions.List()
}

func (p *Pipeline) Session(id string) (session.Info, bool) {
	return p.sessions.Info(id)
}

func (p *Pipeline) Remove(ctx context.Context, id string) bool {
	if !p.sessions.Remove(id) {
		return false
	}
	if p.auditor != nil {
		p.auditor.Record(ctx, ActionDelete, id, nil)
	}
	return true
}

func (p *Pipeline) prepare(ctx context.Context, req IngestRequest) ([]string, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, ErrEmptyDocument
	}

	if err := p.ensureEmbedder(ctx); err != nil {
		return nil, err
	}

	p.progress.Emit(ctx, "Chunking text...", 0)
	chunks, err := chunker.Chunk(req.Text, p.opts.Chunking.ChunkSize, p.opts.Chunking.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("chunk text: %w", err)
	}
	return chunks, nil
}

func (p *Pipeline) ensureEmbedder(ctx context.Context) error {
	err := p.embedder.Ensure(ctx, func(pct float64) {
		n := int(math.Round(pct))
		p.progress.Emit(ctx, fmt.Sprintf("Loading model: %d%%", n), n)
	})
	if err != nil {
		return fmt.Errorf("load embedder: %w", err)
	}
	return nil
}

// embedInto embeds chunks in batches. Batches run one after another; chunks
// inside a batch are embedded concurrently.
func (p *Pipeline) embedInto(ctx context.Context, sess *session.Session, source string, chunks []string) error {
	total := len(chunks)
	for start := 0; start < total; start += p.opts.BatchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+p.opts.BatchSize, total)

		vecs, err := p.embedder.EmbedBatch(ctx, chunks[start:end])
		if err != nil {
			return fmt.Errorf("embed chunks %d-%d: %w", start, end-1, err)
		}

		batch := make([]vectorstore.EmbeddedChunk, len(vecs))
		for i, vec := range vecs {
			batch[i] = vectorstore.EmbeddedChunk{Text: chunks[start+i], Embedding: vec, Source: source}
		}
		if err := sess.Store.AppendBatch(batch); err != nil {
			return fmt.Errorf("store chunks: %w", err)
		}

		pct := int(math.Round(float64(end) * 100 / float64(total)))
		p.progress.Emit(ctx, fmt.Sprintf("Embedding chunks: %d%%", pct), pct)
	}
	return nil
}

func (p *Pipeline) ingested(ctx context.Context, sessionID, filename string, chunks int, start time.Time) {
	latency := time.Since(start).Milliseconds()
	slog.Info("document ingested",
		"session_id", sessionID,
		"filename", filename,
		"chunks", chunks,
		"duration_ms", latency,
	)
	if p.auditor != nil {
		p.auditor.Record(ctx, ActionIngest, sessionID, map[string]any{
			"filename":   filename,
			"chunks":     chunks,
			"latency_ms": latency,
		})
	}
}
