package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nikhilbhutani/retrieva/internal/config"
)

// Gateway routes prompts to providers with retry, fallback and a per-call
// timeout.
type Gateway struct {
	providers        map[string]Provider
	defaultProvider  string
	defaultModel     string
	fallbackProvider string
	maxRetries       int
	timeout          time.Duration
	backoff          time.Duration
}

func NewGateway(cfg config.LLMConfig) *Gateway {
	g := &Gateway{
		providers:        make(map[string]Provider),
		defaultProvider:  cfg.DefaultProvider,
		defaultModel:     cfg.DefaultModel,
		fallbackProvider: cfg.FallbackProvider,
		maxRetries:       cfg.MaxRetries,
		timeout:          cfg.Timeout,
		backoff:          500 * time.Millisecond,
	}

	// Cloud providers are always registered since a request may bring its own key.
	g.Register(NewGeminiProvider(cfg.GeminiURL, cfg.GeminiKey, cfg.GeminiModel))
	g.Register(NewOpenAIProvider(cfg.OpenAIURL, cfg.OpenAIKey, cfg.OpenAIModel))
	g.Register(NewAnthropicProvider(cfg.AnthropicURL, cfg.AnthropicKey, cfg.AnthropicModel))
	if cfg.OllamaURL != "" {
		g.Register(NewOllamaProvider(cfg.OllamaURL, cfg.OllamaModel))
	}

	return g
}

func (g *Gateway) Register(p Provider) {
	g.providers[p.Name()] = p
}

func (g *Gateway) Provider(name string) (Provider, error) {
	p, ok := g.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrProviderNotConfigured, name)
	}
	return p, nil
}

func (g *Gateway) Answer(ctx context.Context, req AnswerRequest) (*Answer, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	providerName := req.Provider
	if providerName == "" {
		providerName = g.defaultProvider
	}

	resp, err := g.answerWithRetry(ctx, providerName, req)
	if err != nil && g.fallbackProvider != "" && g.fallbackProvider != providerName && ctx.Err() == nil {
		slog.Warn("primary provider failed, trying fallback",
			"primary", providerName,
			"fallback", g.fallbackProvider,
			"error", err,
		)
		// The caller's key and model belong to the primary provider.
		fallback := AnswerRequest{Prompt: req.Prompt}
		return g.answerWithRetry(ctx, g.fallbackProvider, fallback)
	}
	return resp, err
}

func (g *Gateway) answerWithRetry(ctx context.Context, providerName string, req AnswerRequest) (*Answer, error) {
	p, err := g.Provider(providerName)
	if err != nil {
		return nil, err
	}

	model := req.Model
	if model == "" && providerName == g.defaultProvider {
		model = g.defaultModel
	}
	if model == "" {
		model = p.DefaultModel()
	}
	genReq := GenerateRequest{Prompt: req.Prompt, Model: model, APIKey: req.APIKey}

	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt*attempt) * g.backoff
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			slog.Debug("retrying LLM call", "provider", providerName, "attempt", attempt, "error", lastErr)
		}

		resp, err := p.Generate(ctx, genReq)
		if err == nil {
			return resp, nil
		}
		if !IsRetryable(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("all retries exhausted for %s: %w", providerName, lastErr)
}
