// handlers_ingest.go - Chunk submission for both execution models
package api

import (
	"encoding/base64"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/formstream/backend/internal/ingest"
	"github.com/formstream/backend/internal/models"
	"github.com/formstream/backend/internal/queue"
)

type ingestChunkRequest struct {
	FileName    string `json:"fileName"`
	Chunk       string `json:"chunk"` // base64-encoded file bytes
	IsLastChunk bool   `json:"isLastChunk"`
}

func (r *ingestChunkRequest) validate() error {
	if r.FileName == "" {
		return NewValidationError("fileName")
	}
	if r.Chunk == "" && !r.IsLastChunk {
		return NewValidationError("chunk")
	}
	return nil
}

func (r *ingestChunkRequest) decode() ([]byte, error) {
	if r.Chunk == "" {
		return nil, nil
	}
	data, err := base64.StdEncoding.DecodeString(r.Chunk)
	if err != nil {
		return nil, NewBadRequestError("chunk is not valid base64", err)
	}
	return data, nil
}

type ingestChunkResponse struct {
	Status                string `json:"status"`
	JobID                 string `json:"jobId"`
	RowsSeen              int    `json:"rowsSeen"`
	TotalRecordsProcessed int    `json:"totalRecordsProcessed"`
}

// HandleIngestChunk is the request-synchronous model: the chunk is parsed
// and flushed before the response goes out. The terminal chunk finalizes the
// session and reports the processed count. Progress is keyed by the session
// key, so concurrent files for one document get separate streams.
func (h *Handler) HandleIngestChunk(c echo.Context) error {
	documentID := c.Param("documentId")
	if documentID == "" {
		return NewValidationError("documentId")
	}

	var req ingestChunkRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if err := req.validate(); err != nil {
		return err
	}
	data, err := req.decode()
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	jobID := ingest.SessionKey(documentID, req.FileName)
	sess, err := h.sessions.GetOrCreate(ctx, documentID, req.FileName, jobID)
	if err != nil {
		return mapIngestError(err)
	}

	res, err := sess.Feed(ctx, data, req.IsLastChunk)
	if err != nil {
		// terminal failure: the session is dead, drop it
		h.sessions.Remove(sess.Key())
		return mapIngestError(err)
	}

	if res.Done {
		h.sessions.Remove(sess.Key())
		return c.JSON(http.StatusOK, ingestChunkResponse{
			Status:                "completed",
			JobID:                 jobID,
			RowsSeen:              res.RowsSeen,
			TotalRecordsProcessed: res.TotalInserted,
		})
	}
	return c.JSON(http.StatusAccepted, ingestChunkResponse{
		Status:                "accepted",
		JobID:                 jobID,
		RowsSeen:              res.RowsSeen,
		TotalRecordsProcessed: res.TotalInserted,
	})
}

type createJobRequest struct {
	FileName string `json:"fileName"`
}

type createJobResponse struct {
	JobID  string `json:"jobId"`
	Status string `json:"status"`
}

// HandleCreateJob opens a queued-model upload: chunks are appended to a temp
// file under the returned job id until the complete signal arrives.
func (h *Handler) HandleCreateJob(c echo.Context) error {
	documentID := c.Param("documentId")
	if documentID == "" {
		return NewValidationError("documentId")
	}

	var req createJobRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if req.FileName == "" {
		return NewValidationError("fileName")
	}
	if _, err := ingest.KindForFile(req.FileName); err != nil {
		return mapIngestError(err)
	}
	// reject unknown documents before any bytes are accepted
	if _, err := h.resolver.Definition(c.Request().Context(), documentID); err != nil {
		return mapIngestError(err)
	}

	jobID := uuid.NewString()
	h.jobEvents.Publish(models.ProgressEvent{
		JobID:   jobID,
		Status:  models.StatusQueued,
		Message: "upload started",
	})

	h.logger.Info("ingest job created",
		"job_id", jobID,
		"document_id", documentID,
		"file", req.FileName)
	return c.JSON(http.StatusCreated, createJobResponse{JobID: jobID, Status: "created"})
}

// HandleJobChunk appends one chunk to the job's temp file. No parsing happens
// here; the worker replays the file once the complete signal arrives.
func (h *Handler) HandleJobChunk(c echo.Context) error {
	jobID := c.Param("jobId")
	if jobID == "" {
		return NewValidationError("jobId")
	}

	var req ingestChunkRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if err := req.validate(); err != nil {
		return err
	}
	data, err := req.decode()
	if err != nil {
		return err
	}

	if len(data) > 0 {
		if err := h.temp.AppendChunk(jobID, req.FileName, data); err != nil {
			return NewInternalError("failed to store chunk", err)
		}
	}
	return c.JSON(http.StatusAccepted, map[string]string{"status": "accepted"})
}

type completeJobRequest struct {
	FileName string `json:"fileName"`
}

type completeJobResponse struct {
	JobID  string `json:"jobId"`
	TaskID string `json:"taskId"`
	Status string `json:"status"`
}

// HandleJobComplete marks the upload finished and hands the assembled file to
// the worker queue.
func (h *Handler) HandleJobComplete(c echo.Context) error {
	documentID := c.Param("documentId")
	jobID := c.Param("jobId")
	if documentID == "" {
		return NewValidationError("documentId")
	}
	if jobID == "" {
		return NewValidationError("jobId")
	}

	var req completeJobRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if req.FileName == "" {
		return NewValidationError("fileName")
	}

	taskID, err := h.enqueuer.EnqueueIngest(c.Request().Context(), queue.IngestFilePayload{
		JobID:      jobID,
		DocumentID: documentID,
		FileName:   req.FileName,
	})
	if err != nil {
		return NewInternalError("failed to enqueue ingestion", err)
	}

	return c.JSON(http.StatusAccepted, completeJobResponse{
		JobID:  jobID,
		TaskID: taskID,
		Status: "queued",
	})
}
