package rag

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/retrieva/internal/embedding"
	"github.com/nikhilbhutani/retrieva/internal/llm"
	"github.com/nikhilbhutani/retrieva/internal/progress"
	"github.com/nikhilbhutani/retrieva/internal/session"
	"github.com/nikhilbhutani/retrieva/pkg/chunker"
)

const skyText = "The sky is blue. The grass is green."

type countingEmbedder struct {
	model      *embedding.HashingModel
	ensureErr  error
	embedErr   error
	ensures    atomic.Int32
	embeds     atomic.Int32
	failAfterN int32 // fail EmbedBatch once this many batches succeeded, 0 disables
	batches    atomic.Int32
	onBatch    func()
}

func newCountingEmbedder(t *testing.T) *countingEmbedder {
	t.Helper()
	m, err := embedding.NewHashingModel(embedding.DefaultLocalDimension)
	require.NoError(t, err)
	return &countingEmbedder{model: m}
}

func (e *countingEmbedder) Ensure(ctx context.Context, report embedding.ProgressFunc) error {
	e.ensures.Add(1)
	if e.ensureErr != nil {
		return e.ensureErr
	}
	if report != nil {
		report(100)
	}
	return nil
}

func (e *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.embeds.Add(1)
	if e.embedErr != nil {
		return nil, e.embedErr
	}
	return e.model.Embed(ctx, text)
}

func (e *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if e.onBatch != nil {
		e.onBatch()
	}
	if e.failAfterN > 0 && e.batches.Add(1) > e.failAfterN {
		return nil, errors.New("embedding backend crashed")
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

type fakeAnswerer struct {
	content string
	err     error

	mu       sync.Mutex
	requests []llm.AnswerRequest
}

func (a *fakeAnswerer) Answer(ctx context.Context, req llm.AnswerRequest) (*llm.Answer, error) {
	a.mu.Lock()
	a.requests = append(a.requests, req)
	a.mu.Unlock()
	if a.err != nil {
		return nil, a.err
	}
	return &llm.Answer{Provider: "fake", Model: "fake-1", Content: a.content}, nil
}

func (a *fakeAnswerer) calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.requests)
}

type auditRecord struct {
	action    string
	sessionID string
	details   map[string]any
}

type fakeAuditor struct {
	mu      sync.Mutex
	records []auditRecord
}

func (a *fakeAuditor) Record(ctx context.Context, action, sessionID string, details map[string]any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, auditRecord{action, sessionID, details})
}

type fixture struct {
	pipeline *Pipeline
	embedder *countingEmbedder
	answerer *fakeAnswerer
	sessions *session.Manager
	bus      *progress.Bus
	auditor  *fakeAuditor
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	f := &fixture{
		embedder: newCountingEmbedder(t),
		answerer: &fakeAnswerer{content: "The sky is blue."},
		sessions: session.NewManager(session.Options{}),
		bus:      progress.NewBus(256),
		auditor:  &fakeAuditor{},
	}
	p, err := NewPipeline(Deps{
		Embedder: f.embedder,
		Answerer: f.answerer,
		Sessions: f.sessions,
		Progress: f.bus,
		Auditor:  f.auditor,
	}, opts)
	require.NoError(t, err)
	f.pipeline = p
	return f
}

func smallOptions() Options {
	opts := DefaultOptions()
	opts.Chunking = chunker.Options{ChunkSize: 20, ChunkOverlap: 5}
	return opts
}

func TestNewPipeline_Validation(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	deps := Deps{Embedder: f.embedder, Answerer: f.answerer, Sessions: f.sessions}

	_, err := NewPipeline(Deps{}, DefaultOptions())
	assert.Error(t, err)

	bad := DefaultOptions()
	bad.Chunking.ChunkOverlap = bad.Chunking.ChunkSize
	_, err = NewPipeline(deps, bad)
	assert.ErrorIs(t, err, chunker.ErrInvalidOptions)

	bad = DefaultOptions()
	bad.BatchSize = 0
	_, err = NewPipeline(deps, bad)
	assert.Error(t, err)
}

func TestIngest_SkyAndGrass(t *testing.T) {
	f := newFixture(t, smallOptions())

	resp, err := f.pipeline.Ingest(context.Background(), IngestRequest{Filename: "colors.txt", Text: skyText})
	require.NoError(t, err)

	assert.Equal(t, "colors.txt", resp.Filename)
	assert.Equal(t, "Success", resp.Status)
	assert.Equal(t, 3, resp.ChunksAdded)
	require.NotEmpty(t, resp.SessionID)

	sess, ok := f.sessions.Get(resp.SessionID)
	require.True(t, ok)
	assert.Equal(t, 3, sess.Store.Len())
	assert.Equal(t, embedding.DefaultLocalDimension, sess.Store.Dimension())

	require.Len(t, f.auditor.records, 1)
	assert.Equal(t, ActionIngest, f.auditor.records[0].action)
	assert.Equal(t, 3, f.auditor.records[0].details["chunks"])
}

func TestIngest_SessionSurvivesConcurrentCreate(t *testing.T) {
	f := newFixture(t, smallOptions())
	f.sessions = session.NewManager(session.Options{Capacity: 1})
	f.pipeline.sessions = f.sessions

	var others []string
	f.embedder.onBatch = func() {
		others = append(others, f.sessions.Create("other.txt").ID)
	}

	resp, err := f.pipeline.Ingest(context.Background(), IngestRequest{Filename: "colors.txt", Text: skyText})
	require.NoError(t, err)
	require.NotEmpty(t, others)

	sess, ok := f.sessions.Get(resp.SessionID)
	require.True(t, ok, "in-flight session must not be evicted")
	assert.Equal(t, 3, sess.Store.Len())
	assert.Equal(t, 1, f.sessions.Len())
}

func TestIngest_SessionDeletedDuringIngest(t *testing.T) {
	f := newFixture(t, smallOptions())
	f.embedder.onBatch = func() {
		for _, info := range f.sessions.List() {
			f.sessions.Remove(info.ID)
		}
	}

	_, err := f.pipeline.Ingest(context.Background(), IngestRequest{Filename: "colors.txt", Text: skyText})
	require.ErrorIs(t, err, ErrSessionNotFound)
	assert.Zero(t, f.sessions.Len())
}

func TestIngest_EmptyTextMintsNoSession(t *testing.T) {
	f := newFixture(t, smallOptions())

	for _, text := range []string{"", "   \n\t "} {
		_, err := f.pipeline.Ingest(context.Background(), IngestRequest{Filename: "empty.txt", Text: text})
		require.ErrorIs(t, err, ErrEmptyDocument)
	}
	assert.Zero(t, f.sessions.Len())
	assert.Zero(t, f.embedder.ensures.Load())
}

func TestIngest_EmbedFailureRemovesSession(t *testing.T) {
	f := newFixture(t, smallOptions())
	f.pipeline.opts.BatchSize = 1
	f.embedder.failAfterN = 1

	_, err := f.pipeline.Ingest(context.Background(), IngestRequest{Filename: "colors.txt", Text: skyText})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embedding backend crashed")
	assert.Zero(t, f.sessions.Len())
}

func TestIngest_EmbedderInitFailure(t *testing.T) {
	f := newFixture(t, smallOptions())
	f.embedder.ensureErr = embedding.ErrInitFailed

	_, err := f.pipeline.Ingest(context.Background(), IngestRequest{Filename: "colors.txt", Text: skyText})
	require.ErrorIs(t, err, embedding.ErrInitFailed)
	assert.Zero(t, f.sessions.Len())
}

func TestIngest_ProgressEvents(t *testing.T) {
	f := newFixture(t, smallOptions())
	f.pipeline.opts.BatchSize = 1

	events, cancel := f.bus.Subscribe(progress.ForOp("op-1"))
	defer cancel()

	ctx := progress.WithOp(context.Background(), "op-1")
	_, err := f.pipeline.Ingest(ctx, IngestRequest{Filename: "colors.txt", Text: skyText})
	require.NoError(t, err)
	cancel()

	var messages []string
	for ev := range events {
		assert.Equal(t, progress.TypeProgress, ev.Type)
		assert.Equal(t, "op-1", ev.Op)
		messages = append(messages, ev.Message)
	}
	assert.Equal(t, []string{
		"Loading model: 100%",
		"Chunking text...",
		"Embedding chunks: 33%",
		"Embedding chunks: 67%",
		"Embedding chunks: 100%",
	}, messages)
}

func TestQuery_AnswerAndContext(t *testing.T) {
	f := newFixture(t, smallOptions())
	ctx := context.Background()

	ing, err := f.pipeline.Ingest(ctx, IngestRequest{Filename: "colors.txt", Text: skyText})
	require.NoError(t, err)

	resp, err := f.pipeline.Query(ctx, QueryRequest{Question: "What color is the sky?", APIKey: "key-1", SessionID: ing.SessionID})
	require.NoError(t, err)

	assert.Equal(t, "What color is the sky?", resp.Question)
	assert.Equal(t, "The sky is blue.", resp.Answer)
	assert.Equal(t, ing.SessionID, resp.SessionID)
	assert.Equal(t, "fake", resp.Provider)
	require.Len(t, resp.Context, 3)
	assert.Equal(t, "The sky is blue. The", resp.Context[0].Text)
	assert.Equal(t, "colors.txt", resp.Context[0].Source)
	for i := 1; i < len(resp.Context); i++ {
		assert.GreaterOrEqual(t, resp.Context[i-1].Score, resp.Context[i].Score)
	}

	require.Equal(t, 1, f.answerer.calls())
	req := f.answerer.requests[0]
	assert.Equal(t, "key-1", req.APIKey)
	assert.Contains(t, req.Prompt, "Context:\n"+AssembleContext(resp.Context, 1000)+"\n")
	assert.Contains(t, req.Prompt, "Question:\nWhat color is the sky?\n")
}

func TestQuery_RefusalPassesThroughTrimmed(t *testing.T) {
	f := newFixture(t, smallOptions())
	f.answerer.content = "  Information not available in the document\n"
	ctx := context.Background()

	ing, err := f.pipeline.Ingest(ctx, IngestRequest{Filename: "colors.txt", Text: skyText})
	require.NoError(t, err)

	resp, err := f.pipeline.Query(ctx, QueryRequest{Question: "Who won the 1998 World Cup?", SessionID: ing.SessionID})
	require.NoError(t, err)
	assert.Equal(t, "Information not available in the document", resp.Answer)
	assert.NotEmpty(t, resp.Context)

	last := f.auditor.records[len(f.auditor.records)-1]
	assert.Equal(t, ActionQuery, last.action)
	assert.Equal(t, true, last.details["refused"])
}

func TestQuery_AnswerFailureBecomesAnswerText(t *testing.T) {
	f := newFixture(t, smallOptions())
	f.answerer.err = errors.New("dial tcp: connection refused")
	ctx := context.Background()

	ing, err := f.pipeline.Ingest(ctx, IngestRequest{Filename: "colors.txt", Text: skyText})
	require.NoError(t, err)

	resp, err := f.pipeline.Query(ctx, QueryRequest{Question: "What color is the grass?", SessionID: ing.SessionID})
	require.NoError(t, err)
	assert.Equal(t, "Error generating response: dial tcp: connection refused", resp.Answer)
	assert.True(t, strings.HasPrefix(resp.Answer, ErrorAnswerPrefix))
	assert.Len(t, resp.Context, 3)
}

func TestQuery_EmptyOrUnknownSessionMakesNoCalls(t *testing.T) {
	f := newFixture(t, smallOptions())
	empty := f.pipeline.Reserve("pending.txt")

	for _, id := range []string{"", "does-not-exist", empty} {
		resp, err := f.pipeline.Query(context.Background(), QueryRequest{Question: "anything?", SessionID: id})
		require.NoError(t, err)
		assert.Equal(t, NoContextAnswer, resp.Answer)
		assert.NotNil(t, resp.Context)
		assert.Empty(t, resp.Context)
	}

	assert.Zero(t, f.embedder.ensures.Load())
	assert.Zero(t, f.embedder.embeds.Load())
	assert.Zero(t, f.answerer.calls())
}

func TestQuery_EmbedderFailurePropagates(t *testing.T) {
	f := newFixture(t, smallOptions())
	ctx := context.Background()

	ing, err := f.pipeline.Ingest(ctx, IngestRequest{Filename: "colors.txt", Text: skyText})
	require.NoError(t, err)

	f.embedder.embedErr = errors.New("model evicted")
	_, err = f.pipeline.Query(ctx, QueryRequest{Question: "sky?", SessionID: ing.SessionID})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embed query")
	assert.Zero(t, f.answerer.calls())
}

func TestQuery_SessionsAreIsolated(t *testing.T) {
	f := newFixture(t, smallOptions())
	ctx := context.Background()

	a, err := f.pipeline.Ingest(ctx, IngestRequest{Filename: "a.txt", Text: "Apples are red and crunchy."})
	require.NoError(t, err)
	b, err := f.pipeline.Ingest(ctx, IngestRequest{Filename: "b.txt", Text: "Bananas are yellow and soft."})
	require.NoError(t, err)
	require.NotEqual(t, a.SessionID, b.SessionID)

	resp, err := f.pipeline.Query(ctx, QueryRequest{Question: "What color are apples?", SessionID: b.SessionID})
	require.NoError(t, err)
	for _, c := range resp.Context {
		assert.Equal(t, "b.txt", c.Source)
		assert.NotContains(t, c.Text, "Apples")
	}
}

func TestQuery_ContextBudget(t *testing.T) {
	opts := smallOptions()
	opts.ContextChars = 12
	f := newFixture(t, opts)
	ctx := context.Background()

	ing, err := f.pipeline.Ingest(ctx, IngestRequest{Filename: "colors.txt", Text: skyText})
	require.NoError(t, err)
	_, err = f.pipeline.Query(ctx, QueryRequest{Question: "What color is the sky?", SessionID: ing.SessionID})
	require.NoError(t, err)

	assert.Contains(t, f.answerer.requests[0].Prompt, "Context:\nThe sky is b\n")
}

func TestIngestInto_ReplacesContents(t *testing.T) {
	f := newFixture(t, smallOptions())
	ctx := context.Background()

	id := f.pipeline.Reserve("upload.txt")
	resp, err := f.pipeline.IngestInto(ctx, id, IngestRequest{Filename: "upload.txt", Text: skyText})
	require.NoError(t, err)
	assert.Equal(t, id, resp.SessionID)
	assert.Equal(t, 3, resp.ChunksAdded)

	resp, err = f.pipeline.IngestInto(ctx, id, IngestRequest{Filename: "short.txt", Text: "tiny"})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.ChunksAdded)

	info, ok := f.pipeline.Session(id)
	require.True(t, ok)
	assert.Equal(t, 1, info.Chunks)
}

func TestIngestInto_UnknownSession(t *testing.T) {
	f := newFixture(t, smallOptions())
	_, err := f.pipeline.IngestInto(context.Background(), "nope", IngestRequest{Filename: "a", Text: "text"})
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSearch(t *testing.T) {
	f := newFixture(t, smallOptions())
	ctx := context.Background()

	_, err := f.pipeline.Search(ctx, "nope", "sky", 2)
	require.ErrorIs(t, err, ErrSessionNotFound)

	ing, err := f.pipeline.Ingest(ctx, IngestRequest{Filename: "colors.txt", Text: skyText})
	require.NoError(t, err)

	results, err := f.pipeline.Search(ctx, ing.SessionID, "sky", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "The sky is blue. The", results[0].Text)

	results, err = f.pipeline.Search(ctx, ing.SessionID, "sky", 0)
	require.NoError(t, err)
	assert.Len(t, results, 3, "k <= 0 falls back to the configured top k")
	assert.Zero(t, f.answerer.calls())
}

func TestRemove(t *testing.T) {
	f := newFixture(t, smallOptions())
	id := f.pipeline.Reserve("a.txt")

	assert.True(t, f.pipeline.Remove(context.Background(), id))
	assert.False(t, f.pipeline.Remove(context.Background(), id))
	assert.Empty(t, f.pipeline.Sessions())

	last := f.auditor.records[len(f.auditor.records)-1]
	assert.Equal(t, auditRecord{action: ActionDelete, sessionID: id}, last)
}
