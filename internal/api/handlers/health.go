package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/nikhilbhutani/retrieva/internal/embedding"
)

type pinger interface {
	Ping(ctx context.Context) error
}

type embedderState interface {
	State() embedding.State
}

type HealthHandler struct {
	embedder embedderState
	db       pinger
	redis    pinger
}

// NewHealthHandler takes optional db and redis pingers; pass nil for the
// ones that are not configured.
func NewHealthHandler(e embedderState, db, rdb pinger) *HealthHandler {
	return &HealthHandler{embedder: e, db: db, redis: rdb}
}

func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz reports not ready only when a dependency is down or the embedder has
// exhausted its init retries. An idle embedder is loaded on first use.
func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}

	state := h.embedder.State()
	if state.Status == embedding.StatusFailed {
		checks["embedder"] = "unhealthy: " + state.Error
	} else {
		checks["embedder"] = "ok"
	}

	if h.db != nil {
		if err := h.db.Ping(r.Context()); err != nil {
			checks["database"] = "unhealthy: " + err.Error()
		} else {
			checks["database"] = "ok"
		}
	}

	if h.redis != nil {
		if err := h.redis.Ping(r.Context()); err != nil {
			checks["redis"] = "unhealthy: " + err.Error()
		} else {
			checks["redis"] = "ok"
		}
	}

	status := http.StatusOK
	for _, v := range checks {
		if v != "ok" {
			status = http.StatusServiceUnavailable
			break
		}
	}

	writeJSON(w, status, map[string]interface{}{
		"status":   statusStr(status),
		"checks":   checks,
		"embedder": state,
	})
}

func statusStr(code int) string {
	if code == http.StatusOK {
		return "ok"
	}
	return "unhealthy"
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
