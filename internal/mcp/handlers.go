package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/nikhilbhutani/retrieva/internal/rag"
)

// Handlers report every failure as a tool error result; the returned Go
// error is always nil.
type Handlers struct {
	pipeline *rag.Pipeline
}

func NewHandlers(p *rag.Pipeline) *Handlers {
	return &Handlers{pipeline: p}
}

func (h *Handlers) IngestText(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := request.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError("text argument is required and must be a string"), nil
	}

	resp, err := h.pipeline.Ingest(ctx, rag.IngestRequest{
		Filename: request.GetString("filename", "document.txt"),
		Text:     text,
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("ingest failed: %v", err)), nil
	}
	return jsonResult(resp)
}

func (h *Handlers) AskDocument(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("session_id argument is required and must be a string"), nil
	}
	question, err := request.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError("question argument is required and must be a string"), nil
	}

	resp, err := h.pipeline.Query(ctx, rag.QueryRequest{
		Question:  question,
		SessionID: sessionID,
		APIKey:    request.GetString("api_key", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}
	return jsonResult(resp)
}

func (h *Handlers) SearchDocument(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("session_id argument is required and must be a string"), nil
	}
	question, err := request.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError("question argument is required and must be a string"), nil
	}

	results, err := h.pipeline.Search(ctx, sessionID, question, request.GetInt("top_k", 0))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}
	return jsonResult(map[string]interface{}{"results": results, "count": len(results)})
}

func (h *Handlers) ListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessions := h.pipeline.Sessions()
	return jsonResult(map[string]interface{}{"sessions": sessions, "count": len(sessions)})
}

func (h *Handlers) DeleteSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("session_id argument is required and must be a string"), nil
	}
	if !h.pipeline.Remove(ctx, sessionID) {
		return mcp.NewToolResultError(fmt.Sprintf("session %s not found", sessionID)), nil
	}
	return jsonResult(map[string]interface{}{"session_id": sessionID, "deleted": true})
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal response: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
