package queue

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const TypeDocumentIngest = "document:ingest"

// DocumentIngestPayload fills a session reserved by the API with a document.
type DocumentIngestPayload struct {
	SessionID string `json:"session_id"`
	Filename  string `json:"filename"`
	Text      string `json:"text"`
}

func NewDocumentIngestTask(payload DocumentIngestPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return asynq.NewTask(TypeDocumentIngest, data), nil
}
