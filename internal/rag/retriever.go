package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/nikhilbhutani/retrieva/internal/session"
	"github.com/nikhilbhutani/retrieva/internal/vectorstore"
)

// Search returns the k chunks of a session most similar to question, without
// calling the answer model. k <= 0 uses the configured top k.
func (p *Pipeline) Search(ctx context.Context, sessionID, question string, k int) ([]vectorstore.ScoredChunk, error) {
	sess, ok := p.sessions.Get(sessionID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if sess.Store.Len() == 0 {
		return []vectorstore.ScoredChunk{}, nil
	}
	if k <= 0 {
		k = p.opts.TopK
	}
	return p.retrieve(ctx, sess, question, k)
}

func (p *Pipeline) retrieve(ctx context.Context, sess *session.Session, question string, k int) ([]vectorstore.ScoredChunk, error) {
	if err := p.ensureEmbedder(ctx); err != nil {
		return nil, err
	}

	vec, err := p.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	results, err := sess.Store.Search(vec, k)
	if err != nil {
		return nil, fmt.Errorf("search session %s: %w", sess.ID, err)
	}
	return results, nil
}

// AssembleContext joins chunk texts in rank order with a single space and
// cuts the result to at most limit characters.
func AssembleContext(results []vectorstore.ScoredChunk, limit int) string {
	texts := make([]string, len(results))
	for i, r := range results {
		texts[i] = r.Text
	}
	joined := strings.Join(texts, " ")

	if limit <= 0 {
		return ""
	}
	// Byte length bounds rune length, so short strings skip the conversion.
	if len(joined) <= limit {
		return joined
	}
	runes := []rune(joined)
	if len(runes) <= limit {
		return joined
	}
	return string(runes[:limit])
}
