package embedding

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

const DefaultOpenAIModel = "text-embedding-3-small"

type OpenAIModel struct {
	client *openai.Client
	model  string
	dim    int
}

// OpenAILoader probes the embeddings endpoint once to learn the vector size.
// baseURL may be empty for the public API.
func OpenAILoader(apiKey, baseURL, model string) Loader {
	if model == "" {
		model = DefaultOpenAIModel
	}
	return func(ctx context.Context, report ProgressFunc) (Model, error) {
		if apiKey == "" {
			return nil, fmt.Errorf("openai embeddings: api key not configured")
		}

		cfg := openai.DefaultConfig(apiKey)
		if baseURL != "" {
			cfg.BaseURL = baseURL
		}
		m := &OpenAIModel{client: openai.NewClientWithConfig(cfg), model: model}

		report(0)
		vec, err := m.Embed(ctx, "dimension probe")
		if err != nil {
			return nil, fmt.Errorf("probe openai embeddings: %w", err)
		}
		m.dim = len(vec)
		report(100)
		return m, nil
	}
}

func (m *OpenAIModel) Name() string   { return "openai/" + m.model }
func (m *OpenAIModel) Dimension() int { return m.dim }

func (m *OpenAIModel) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := m.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(m.model),
	})
	if err != nil {
		return nil, fmt.Errorf("openai embedding: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, ErrNoVector
	}
	return resp.Data[0].Embedding, nil
}
