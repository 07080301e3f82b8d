package rag

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/nikhilbhutani/retrieva/internal/llm"
	"github.com/nikhilbhutani/retrieva/internal/prompt"
	"github.com/nikhilbhutani/retrieva/internal/vectorstore"
	"github.com/nikhilbhutani/retrieva/pkg/tokenizer"
)

const (
	// NoContextAnswer is returned for unknown or empty sessions.
	NoContextAnswer = "Session context missing or empty."
	// ErrorAnswerPrefix starts the answer text when the answer model fails.
	ErrorAnswerPrefix = "Error generating response: "
)

type QueryRequest struct {
	Question  string `json:"question"`
	APIKey    string `json:"apiKey"`
	SessionID string `json:"sessionId"`
	Provider  string `json:"provider,omitempty"`
	Model     string `json:"model,omitempty"`
}

type QueryResponse struct {
	Question  string                    `json:"question"`
	Answer    string                    `json:"answer"`
	Context   []vectorstore.ScoredChunk `json:"context"`
	SessionID string                    `json:"sessionId"`
	Provider  string                    `json:"provider,omitempty"`
	Model     string                    `json:"model,omitempty"`
}

// Query answers a question from a session's document. Answer model failures
// are reported inside Answer; only embedder failures are returned as errors.
func (p *Pipeline) Query(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	start := time.Now()

	resp := &QueryResponse{
		Question:  req.Question,
		SessionID: req.SessionID,
		Context:   []vectorstore.ScoredChunk{},
	}

	sess, ok := p.sessions.Get(req.SessionID)
	if !ok || sess.Store.Len() == 0 {
		resp.Answer = NoContextAnswer
		return resp, nil
	}

	p.progress.Emit(ctx, "Embedding query...", 0)
	results, err := p.retrieve(ctx, sess, req.Question, p.opts.TopK)
	if err != nil {
		return nil, err
	}

	contextText := AssembleContext(results, p.opts.ContextChars)
	answer, meta := p.generate(ctx, req, contextText)

	resp.Answer = strings.TrimSpace(answer)
	resp.Context = results
	if meta != nil {
		resp.Provider = meta.Provider
		resp.Model = meta.Model
	}

	if p.auditor != nil {
		p.auditor.Record(ctx, ActionQuery, sess.ID, map[string]any{
			"provider":   resp.Provider,
			"chunks":     len(results),
			"refused":    prompt.IsRefusal(resp.Answer),
			"failed":     meta == nil,
			"latency_ms": time.Since(start).Milliseconds(),
		})
	}
	return resp, nil
}

func (p *Pipeline) generate(ctx context.Context, req QueryRequest, contextText string) (string, *llm.Answer) {
	text := prompt.Build(req.Question, contextText)
	slog.Debug("prompt assembled",
		"session_id", req.SessionID,
		"context_chars", len([]rune(contextText)),
		"approx_tokens", tokenizer.CountTokens(text),
	)

	ans, err := p.answerer.Answer(ctx, llm.AnswerRequest{
		Prompt:   text,
		APIKey:   req.APIKey,
		Provider: req.Provider,
		Model:    req.Model,
	})
	if err != nil {
		slog.Warn("answer generation failed", "session_id", req.SessionID, "error", err)
		return ErrorAnswerPrefix + err.Error(), nil
	}
	return ans.Content, ans
}
