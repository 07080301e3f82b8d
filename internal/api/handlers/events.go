package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/nikhilbhutani/retrieva/internal/progress"
)

type EventsHandler struct {
	bus       *progress.Bus
	heartbeat time.Duration
}

func NewEventsHandler(bus *progress.Bus) *EventsHandler {
	return &EventsHandler{bus: bus, heartbeat: 15 * time.Second}
}

// Stream sends progress events as server-sent events until the client goes
// away. ?op= limits the stream to one operation, whose id is the request id
// (X-Request-Id) of the ingest or query call.
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	// Streams outlive the server's write timeout.
	_ = rc.SetWriteDeadline(time.Time{})

	var filter func(progress.Event) bool
	if op := r.URL.Query().Get("op"); op != "" {
		filter = progress.ForOp(op)
	}
	events, cancel := h.bus.Subscribe(filter)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		return
	}

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		case ev, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}
