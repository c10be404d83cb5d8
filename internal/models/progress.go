package models

import "time"

// ProgressStatus is the lifecycle phase reported to progress subscribers.
type ProgressStatus string

const (
	StatusQueued     ProgressStatus = "queued"
	StatusParsing    ProgressStatus = "parsing"
	StatusValidating ProgressStatus = "validating"
	StatusInserting  ProgressStatus = "inserting"
	StatusCompleted  ProgressStatus = "completed"
	StatusFailed     ProgressStatus = "failed"
)

// Terminal reports whether no further events follow this status.
func (s ProgressStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ProgressEvent is a single progress update for an ingestion job. Events are
// fanned out to SSE and WebSocket subscribers and, in the queued model,
// bridged between processes over Redis.
type ProgressEvent struct {
	JobID          string         `json:"jobId" msgpack:"jobId"`
	Status         ProgressStatus `json:"status" msgpack:"status"`
	ProcessedRows  int            `json:"processedRows" msgpack:"processedRows"`
	TotalRows      int            `json:"totalRows,omitempty" msgpack:"totalRows,omitempty"`
	ProcessedBytes int64          `json:"processedBytes,omitempty" msgpack:"processedBytes,omitempty"`
	Percent        float64        `json:"percent" msgpack:"percent"`
	Message        string         `json:"message,omitempty" msgpack:"message,omitempty"`
	ErrorDetail    string         `json:"errorDetail,omitempty" msgpack:"errorDetail,omitempty"`
	Timestamp      time.Time      `json:"timestamp" msgpack:"timestamp"`
}
