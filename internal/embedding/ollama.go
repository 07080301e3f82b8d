package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const DefaultOllamaModel = "nomic-embed-text"

type OllamaModel struct {
	baseURL    string
	model      string
	dim        int
	httpClient *http.Client
}

// OllamaLoader pulls the model (reporting download progress) and then probes
// /api/embed for the vector size.
func OllamaLoader(baseURL, model string) Loader {
	if model == "" {
		model = DefaultOllamaModel
	}
	return func(ctx context.Context, report ProgressFunc) (Model, error) {
		m := &OllamaModel{
			baseURL:    baseURL,
			model:      model,
			httpClient: &http.Client{Timeout: 30 * time.Minute},
		}

		report(0)
		if err := m.pull(ctx, report); err != nil {
			return nil, err
		}

		vec, err := m.Embed(ctx, "dimension probe")
		if err != nil {
			return nil, fmt.Errorf("probe ollama embeddings: %w", err)
		}
		m.dim = len(vec)
		report(100)
		return m, nil
	}
}

func (m *OllamaModel) Name() string   { return "ollama/" + m.model }
func (m *OllamaModel) Dimension() int { return m.dim }

type ollamaPullReq struct {
	Model  string `json:"model"`
	Stream bool   `json:"stream"`
}

type ollamaPullStatus struct {
	Status    string `json:"status"`
	Total     int64  `json:"total"`
	Completed int64  `json:"completed"`
	Error     string `json:"error"`
}

func (m *OllamaModel) pull(ctx context.Context, report ProgressFunc) error {
	body, _ := json.Marshal(ollamaPullReq{Model: m.model, Stream: true})
	resp, err := m.post(ctx, "/api/pull", body)
	if err != nil {
		return fmt.Errorf("ollama pull: %w", err)
	}
	defer resp.Body.Close()

	dec := json.NewDecoder(resp.Body)
	for {
		var st ollamaPullStatus
		if err := dec.Decode(&st); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("ollama pull decode: %w", err)
		}
		if st.Error != "" {
			return fmt.Errorf("ollama pull %s: %s", m.model, st.Error)
		}
		if st.Total > 0 {
			report(float64(st.Completed) * 100 / float64(st.Total))
		}
	}
}

type ollamaEmbedReq struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResp struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func (m *OllamaModel) Embed(ctx context.Context, text string) ([]float32, error) {
	body, _ := json.Marshal(ollamaEmbedReq{Model: m.model, Input: []string{text}})
	resp, err := m.post(ctx, "/api/embed", body)
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	defer resp.Body.Close()

	var oResp ollamaEmbedResp
	if err := json.NewDecoder(resp.Body).Decode(&oResp); err != nil {
		return nil, fmt.Errorf("ollama embed decode: %w", err)
	}
	if len(oResp.Embeddings) == 0 || len(oResp.Embeddings[0]) == 0 {
		return nil, ErrNoVector
	}
	return oResp.Embeddings[0], nil
}

func (m *OllamaModel) post(ctx context.Context, path string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	return resp, nil
}
