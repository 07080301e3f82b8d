package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nikhilbhutani/retrieva/internal/rag"
)

type SessionHandler struct {
	pipeline *rag.Pipeline
}

func NewSessionHandler(p *rag.Pipeline) *SessionHandler {
	return &SessionHandler{pipeline: p}
}

func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	sessions := h.pipeline.Sessions()
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions, "count": len(sessions)})
}

func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	info, ok := h.pipeline.Session(chi.URLParam(r, "id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if !h.pipeline.Remove(r.Context(), chi.URLParam(r, "id")) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
