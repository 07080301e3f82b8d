package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/nikhilbhutani/retrieva/internal/audit"
)

type AuditReader interface {
	GetAuditLogs(ctx context.Context, q audit.AuditQuery) ([]audit.LogEntry, error)
}

type AdminHandler struct {
	audit AuditReader // nil without a database
}

func NewAdminHandler(a AuditReader) *AdminHandler {
	return &AdminHandler{audit: a}
}

func (h *AdminHandler) AuditLogs(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "audit log requires DATABASE_URL"})
		return
	}

	q := audit.AuditQuery{
		Action:    r.URL.Query().Get("action"),
		SessionID: r.URL.Query().Get("session_id"),
	}

	q.Limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	q.Offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))

	if s := r.URL.Query().Get("start_date"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			badRequest(w, "start_date must be RFC3339")
			return
		}
		q.StartDate = &t
	}
	if s := r.URL.Query().Get("end_date"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			badRequest(w, "end_date must be RFC3339")
			return
		}
		q.EndDate = &t
	}

	logs, err := h.audit.GetAuditLogs(r.Context(), q)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"logs": logs, "count": len(logs)})
}
