package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type GeminiProvider struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

func NewGeminiProvider(baseURL, apiKey, model string) *GeminiProvider {
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com"
	}
	if model == "" {
		model = "gemini-flash-latest"
	}
	return &GeminiProvider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}
}

func (p *GeminiProvider) Name() string         { return "gemini" }
func (p *GeminiProvider) DefaultModel() string { return p.model }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiReq struct {
	Contents []geminiContent `json:"contents"`
}

type geminiResp struct {
	Candidates []struct {
		Content *geminiContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

func (p *GeminiProvider) Generate(ctx context.Context, req GenerateRequest) (*Answer, error) {
	start := time.Now()

	key, err := resolveKey(req.APIKey, p.apiKey)
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	model := req.Model
	if model == "" {
		model = p.model
	}

	body, _ := json.Marshal(geminiReq{Contents: []geminiContent{{Parts: []geminiPart{{Text: req.Prompt}}}}})
	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", p.baseURL, model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("gemini request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", key)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, &StatusError{Provider: "gemini", Code: resp.StatusCode, Body: string(bytes.TrimSpace(msg))}
	}

	var gResp geminiResp
	if err := json.NewDecoder(resp.Body).Decode(&gResp); err != nil {
		return nil, fmt.Errorf("%w from gemini: %v", ErrMalformedResponse, err)
	}
	if len(gResp.Candidates) == 0 || gResp.Candidates[0].Content == nil || len(gResp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("%w from gemini", ErrMalformedResponse)
	}

	in := gResp.UsageMetadata.PromptTokenCount
	out := gResp.UsageMetadata.CandidatesTokenCount
	return &Answer{
		Provider:     "gemini",
		Model:        model,
		Content:      gResp.Candidates[0].Content.Parts[0].Text,
		InputTokens:  in,
		OutputTokens: out,
		CostUSD:      CalculateCost(model, in, out),
		LatencyMs:    time.Since(start).Milliseconds(),
	}, nil
}
