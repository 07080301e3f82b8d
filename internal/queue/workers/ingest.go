package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/retrieva/internal/progress"
	"github.com/nikhilbhutani/retrieva/internal/queue"
	"github.com/nikhilbhutani/retrieva/internal/rag"
)

type Ingester interface {
	IngestInto(ctx context.Context, sessionID string, req rag.IngestRequest) (*rag.IngestResponse, error)
}

type IngestWorker struct {
	pipeline Ingester
}

func NewIngestWorker(p Ingester) *IngestWorker {
	return &IngestWorker{pipeline: p}
}

func (w *IngestWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.DocumentIngestPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w: %w", err, asynq.SkipRetry)
	}

	slog.Info("processing document", "session_id", payload.SessionID, "filename", payload.Filename)

	// Progress events of a queued ingest are tagged with its session id.
	ctx = progress.WithOp(ctx, payload.SessionID)
	resp, err := w.pipeline.IngestInto(ctx, payload.SessionID, rag.IngestRequest{
		Filename: payload.Filename,
		Text:     payload.Text,
	})
	if err != nil {
		if errors.Is(err, rag.ErrSessionNotFound) || errors.Is(err, rag.ErrEmptyDocument) {
			return fmt.Errorf("ingest document: %w: %w", err, asynq.SkipRetry)
		}
		return fmt.Errorf("ingest document: %w", err)
	}

	slog.Info("document processed", "session_id", resp.SessionID, "chunks", resp.ChunksAdded)
	return nil
}
