package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/nikhilbhutani/retrieva/internal/queue"
	"github.com/nikhilbhutani/retrieva/internal/rag"
	"github.com/nikhilbhutani/retrieva/pkg/textextract"
)

// Enqueuer hands a document to the async ingestion queue.
type Enqueuer interface {
	EnqueueDocumentIngest(ctx context.Context, payload queue.DocumentIngestPayload) error
}

type RAGHandler struct {
	pipeline  *rag.Pipeline
	queue     Enqueuer // nil when async ingestion is disabled
	maxUpload int64
}

func NewRAGHandler(p *rag.Pipeline, q Enqueuer, maxUploadBytes int64) *RAGHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 32 << 20
	}
	return &RAGHandler{pipeline: p, queue: q, maxUpload: maxUploadBytes}
}

type SearchRequest struct {
	Question  string `json:"question"`
	SessionID string `json:"sessionId"`
	TopK      int    `json:"top_k,omitempty"`
}

func (h *RAGHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req rag.IngestRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxUpload)).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if req.Filename == "" {
		req.Filename = "document.txt"
	}
	h.ingest(w, r, "", req)
}

// Upload extracts text from a multipart "file" field. An optional
// "session_id" field replaces that session's document instead of creating a
// new session.
func (h *RAGHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		badRequest(w, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		badRequest(w, "file required")
		return
	}
	defer file.Close()

	extracted, err := textextract.Extract(file, header.Size, textextract.TypeFromFilename(header.Filename))
	if err != nil {
		if errors.Is(err, textextract.ErrUnsupportedType) {
			writeError(w, r, fmt.Errorf("%w; supported: %s", err, strings.Join(textextract.SupportedTypes(), ", ")))
			return
		}
		badRequest(w, fmt.Sprintf("extract %s: %v", header.Filename, err))
		return
	}

	h.ingest(w, r, r.FormValue("session_id"), rag.IngestRequest{
		Filename: header.Filename,
		Text:     extracted.Content,
	})
}

func (h *RAGHandler) ingest(w http.ResponseWriter, r *http.Request, sessionID string, req rag.IngestRequest) {
	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
		h.enqueue(w, r, sessionID, req)
		return
	}

	var (
		resp *rag.IngestResponse
		err  error
	)
	if sessionID != "" {
		resp, err = h.pipeline.IngestInto(r.Context(), sessionID, req)
	} else {
		resp, err = h.pipeline.Ingest(r.Context(), req)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, resp)
}

func (h *RAGHandler) enqueue(w http.ResponseWriter, r *http.Request, sessionID string, req rag.IngestRequest) {
	if h.queue == nil {
		badRequest(w, "async ingestion requires QUEUE_ENABLED")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, r, rag.ErrEmptyDocument)
		return
	}

	reserved := sessionID == ""
	if reserved {
		sessionID = h.pipeline.Reserve(req.Filename)
	} else if _, ok := h.pipeline.Session(sessionID); !ok {
		writeError(w, r, fmt.Errorf("%w: %s", rag.ErrSessionNotFound, sessionID))
		return
	}

	err := h.queue.EnqueueDocumentIngest(r.Context(), queue.DocumentIngestPayload{
		SessionID: sessionID,
		Filename:  req.Filename,
		Text:      req.Text,
	})
	if err != nil {
		if reserved {
			h.pipeline.Remove(r.Context(), sessionID)
		}
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusAccepted, rag.IngestResponse{
		Filename:  req.Filename,
		Status:    "Queued",
		SessionID: sessionID,
	})
}

func (h *RAGHandler) Query(w http.ResponseWriter, r *http.Request) {
	var req rag.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	if strings.TrimSpace(req.Question) == "" {
		badRequest(w, "question required")
		return
	}

	resp, err := h.pipeline.Query(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *RAGHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	if strings.TrimSpace(req.Question) == "" {
		badRequest(w, "question required")
		return
	}

	results, err := h.pipeline.Search(r.Context(), req.SessionID, req.Question, req.TopK)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"results": results, "count": len(results)})
}
