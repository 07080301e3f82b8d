package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/retrieva/internal/embedding"
	"github.com/nikhilbhutani/retrieva/internal/llm"
	"github.com/nikhilbhutani/retrieva/internal/rag"
	"github.com/nikhilbhutani/retrieva/internal/session"
	"github.com/nikhilbhutani/retrieva/pkg/chunker"
)

type echoAnswerer struct{ key string }

func (a *echoAnswerer) Answer(ctx context.Context, req llm.AnswerRequest) (*llm.Answer, error) {
	a.key = req.APIKey
	return &llm.Answer{Content: "The sky is blue."}, nil
}

func newHandlers(t *testing.T) (*Handlers, *echoAnswerer) {
	t.Helper()
	answerer := &echoAnswerer{}
	opts := rag.DefaultOptions()
	opts.Chunking = chunker.Options{ChunkSize: 20, ChunkOverlap: 5}
	p, err := rag.NewPipeline(rag.Deps{
		Embedder: embedding.NewHandle("local", embedding.LocalLoader(64)),
		Answerer: answerer,
		Sessions: session.NewManager(session.Options{}),
	}, opts)
	require.NoError(t, err)

	server := mcpserver.NewMCPServer("test", "0.0.0")
	return RegisterTools(server, p), answerer
}

func call(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultJSON(t *testing.T, res *mcp.CallToolResult) map[string]any {
	t.Helper()
	require.False(t, res.IsError, "unexpected tool error: %+v", res.Content)
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(text.Text), &out))
	return out
}

func TestToolsRoundTrip(t *testing.T) {
	h, answerer := newHandlers(t)
	ctx := context.Background()

	res, err := h.IngestText(ctx, call(map[string]any{"filename": "sky.txt", "text": "The sky is blue. The grass is green."}))
	require.NoError(t, err)
	ingested := resultJSON(t, res)
	assert.Equal(t, float64(3), ingested["chunks_added"])
	id := ingested["session_id"].(string)

	res, err = h.AskDocument(ctx, call(map[string]any{"session_id": id, "question": "What color is the sky?", "api_key": "k-1"}))
	require.NoError(t, err)
	assert.Equal(t, "The sky is blue.", resultJSON(t, res)["answer"])
	assert.Equal(t, "k-1", answerer.key)

	res, err = h.SearchDocument(ctx, call(map[string]any{"session_id": id, "question": "grass", "top_k": 2}))
	require.NoError(t, err)
	assert.Equal(t, float64(2), resultJSON(t, res)["count"])

	res, err = h.ListSessions(ctx, call(nil))
	require.NoError(t, err)
	assert.Equal(t, float64(1), resultJSON(t, res)["count"])

	res, err = h.DeleteSession(ctx, call(map[string]any{"session_id": id}))
	require.NoError(t, err)
	assert.Equal(t, true, resultJSON(t, res)["deleted"])

	res, err = h.DeleteSession(ctx, call(map[string]any{"session_id": id}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestToolErrorsAreResults(t *testing.T) {
	h, _ := newHandlers(t)
	ctx := context.Background()

	tests := []struct {
		name string
		run  func() (*mcp.CallToolResult, error)
	}{
		{"ingest without text", func() (*mcp.CallToolResult, error) { return h.IngestText(ctx, call(map[string]any{})) }},
		{"ingest empty text", func() (*mcp.CallToolResult, error) { return h.IngestText(ctx, call(map[string]any{"text": " "})) }},
		{"ask without question", func() (*mcp.CallToolResult, error) {
			return h.AskDocument(ctx, call(map[string]any{"session_id": "x"}))
		}},
		{"search unknown session", func() (*mcp.CallToolResult, error) {
			return h.SearchDocument(ctx, call(map[string]any{"session_id": "x", "question": "q"}))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := tt.run()
			require.NoError(t, err)
			assert.True(t, res.IsError)
		})
	}
}

func TestAskUnknownSessionIsNoContextAnswer(t *testing.T) {
	h, _ := newHandlers(t)
	res, err := h.AskDocument(context.Background(), call(map[string]any{"session_id": "nope", "question": "q"}))
	require.NoError(t, err)
	assert.Equal(t, rag.NoContextAnswer, resultJSON(t, res)["answer"])
}
