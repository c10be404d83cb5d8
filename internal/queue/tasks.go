// Package queue defines the asynq task surface between the API and worker
// processes.
package queue

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// TypeIngestFile is the task type for replaying a fully uploaded file
// through the ingest pipeline.
const TypeIngestFile = "ingest:file"

// QueueIngest is the asynq queue ingestion tasks run on.
const QueueIngest = "ingest"

// IngestFilePayload identifies the uploaded file a worker should process.
type IngestFilePayload struct {
	JobID      string `json:"jobId"`
	DocumentID string `json:"documentId"`
	FileName   string `json:"fileName"`
}

// NewIngestFileTask builds the asynq task for the payload.
func NewIngestFileTask(p IngestFilePayload) (*asynq.Task, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encoding ingest payload: %w", err)
	}
	return asynq.NewTask(TypeIngestFile, b), nil
}

// ParseIngestFilePayload decodes a task created by NewIngestFileTask.
func ParseIngestFilePayload(t *asynq.Task) (IngestFilePayload, error) {
	var p IngestFilePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return p, fmt.Errorf("decoding ingest payload: %w", err)
	}
	if p.JobID == "" || p.DocumentID == "" || p.FileName == "" {
		return p, fmt.Errorf("ingest payload missing required fields: %+v", p)
	}
	return p, nil
}
