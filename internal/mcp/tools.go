// Package mcp exposes the retrieval pipeline as Model Context Protocol tools.
package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/nikhilbhutani/retrieva/internal/rag"
)

// RegisterTools adds the document tools to server.
func RegisterTools(server *mcpserver.MCPServer, p *rag.Pipeline) *Handlers {
	h := NewHandlers(p)

	server.AddTool(mcp.Tool{
		Name:        "ingest_text",
		Description: "Index a document's text into a new session. Returns the session id used by the other tools.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"filename": map[string]interface{}{
					"type":        "string",
					"description": "Name shown for the document",
				},
				"text": map[string]interface{}{
					"type":        "string",
					"description": "Full document text",
				},
			},
			Required: []string{"text"},
		},
	}, h.IngestText)

	server.AddTool(mcp.Tool{
		Name:        "ask_document",
		Description: "Answer a question using only the document indexed in a session.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": map[string]interface{}{
					"type":        "string",
					"description": "Session returned by ingest_text",
				},
				"question": map[string]interface{}{
					"type":        "string",
					"description": "Question about the document",
				},
				"api_key": map[string]interface{}{
					"type":        "string",
					"description": "Optional answer model API key overriding the server's",
				},
			},
			Required: []string{"session_id", "question"},
		},
	}, h.AskDocument)

	server.AddTool(mcp.Tool{
		Name:        "search_document",
		Description: "Return the passages of a session's document most similar to a question, without generating an answer.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": map[string]interface{}{
					"type":        "string",
					"description": "Session returned by ingest_text",
				},
				"question": map[string]interface{}{
					"type":        "string",
					"description": "Search text",
				},
				"top_k": map[string]interface{}{
					"type":        "number",
					"description": "Number of passages (default: server top k)",
				},
			},
			Required: []string{"session_id", "question"},
		},
	}, h.SearchDocument)

	server.AddTool(mcp.Tool{
		Name:        "list_sessions",
		Description: "List indexed documents, newest first.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, h.ListSessions)

	server.AddTool(mcp.Tool{
		Name:        "delete_session",
		Description: "Discard a session and its index.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": map[string]interface{}{
					"type":        "string",
					"description": "Session to delete",
				},
			},
			Required: []string{"session_id"},
		},
	}, h.DeleteSession)

	return h
}
