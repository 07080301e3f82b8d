package llm

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrMissingAPIKey         = errors.New("missing API key")
	ErrMalformedResponse     = errors.New("unexpected response format")
	ErrProviderNotConfigured = errors.New("provider not configured")
)

// Provider generates a completion for a single prompt.
type Provider interface {
	Generate(ctx context.Context, req GenerateRequest) (*Answer, error)
	Name() string
	DefaultModel() string
}

// Answerer is what the retrieval pipeline depends on.
type Answerer interface {
	Answer(ctx context.Context, req AnswerRequest) (*Answer, error)
}

// AnswerRequest carries an assembled prompt. APIKey, when set, overrides the
// configured key of the selected provider.
type AnswerRequest struct {
	Prompt   string `json:"prompt"`
	APIKey   string `json:"-"`
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
}

type GenerateRequest struct {
	Prompt string
	Model  string
	APIKey string
}

type Answer struct {
	Provider     string  `json:"provider"`
	Model        string  `json:"model"`
	Content      string  `json:"content"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`
	LatencyMs    int64   `json:"latency_ms"`
}

// StatusError is a non-2xx reply from a provider.
type StatusError struct {
	Provider string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s API error %d: %s", e.Provider, e.Code, e.Body)
}

// Retryable reports whether the status is worth another attempt.
func (e *StatusError) Retryable() bool {
	return e.Code == 429 || e.Code >= 500
}

// IsRetryable classifies errors returned by providers. Configuration and
// format errors are final; rate limits, server errors and transport failures
// are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrMissingAPIKey) || errors.Is(err, ErrMalformedResponse) || errors.Is(err, ErrProviderNotConfigured) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	return true
}

func resolveKey(requestKey, configured string) (string, error) {
	if requestKey != "" {
		return requestKey, nil
	}
	if configured != "" {
		return configured, nil
	}
	return "", ErrMissingAPIKey
}
