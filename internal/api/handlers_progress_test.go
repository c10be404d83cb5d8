package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formstream/backend/internal/models"
)

func publishSequence(env *testEnv, jobID string) {
	env.broadcaster.Publish(models.ProgressEvent{JobID: jobID, Status: models.StatusQueued})
	env.broadcaster.Publish(models.ProgressEvent{JobID: jobID, Status: models.StatusParsing, ProcessedRows: 0})
	env.broadcaster.Publish(models.ProgressEvent{JobID: jobID, Status: models.StatusInserting, ProcessedRows: 10})
	env.broadcaster.Publish(models.ProgressEvent{JobID: jobID, Status: models.StatusCompleted, ProcessedRows: 10, Percent: 100})
}

func parseSSE(t *testing.T, body string) []models.ProgressEvent {
	t.Helper()
	var events []models.ProgressEvent
	for _, line := range strings.Split(body, "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev models.ProgressEvent
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		events = append(events, ev)
	}
	return events
}

// Events published before the client connects must be replayed in order; the
// handler returns once the terminal event has been written.
func TestProgressStreamReplaysHistory(t *testing.T) {
	env := newTestEnv(t)
	publishSequence(env, "job-1")

	req := httptest.NewRequest(http.MethodGet, "/api/progress/job-1/stream", nil)
	rec := httptest.NewRecorder()
	env.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	events := parseSSE(t, rec.Body.String())
	require.Len(t, events, 4)
	assert.Equal(t, models.StatusQueued, events[0].Status)
	assert.Equal(t, models.StatusParsing, events[1].Status)
	assert.Equal(t, models.StatusInserting, events[2].Status)
	assert.Equal(t, models.StatusCompleted, events[3].Status)
	assert.Equal(t, float64(100), events[3].Percent)
}

func TestProgressStreamStopsAtFailure(t *testing.T) {
	env := newTestEnv(t)
	env.broadcaster.Publish(models.ProgressEvent{JobID: "job-2", Status: models.StatusParsing})
	env.broadcaster.Publish(models.ProgressEvent{
		JobID: "job-2", Status: models.StatusFailed, ErrorDetail: "missing headers",
	})

	req := httptest.NewRequest(http.MethodGet, "/api/progress/job-2/stream", nil)
	rec := httptest.NewRecorder()
	env.echo.ServeHTTP(rec, req)

	events := parseSSE(t, rec.Body.String())
	require.Len(t, events, 2)
	assert.Equal(t, models.StatusFailed, events[1].Status)
	assert.Equal(t, "missing headers", events[1].ErrorDetail)
}

// The synchronous ingest path publishes under the session key returned in the
// chunk response, so a client watching that stream sees the whole lifecycle.
func TestProgressStreamAfterSyncIngest(t *testing.T) {
	env := newTestEnv(t)

	csv := "Name,Phone Number,Ward\nAsha,981,W1\n"
	rec := postJSON(env, "/api/documents/doc-1/ingest/chunk",
		chunkBody("people.csv", []byte(csv), true))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ingestChunkResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "doc-1-people.csv", resp.JobID)

	req := httptest.NewRequest(http.MethodGet, "/api/progress/"+resp.JobID+"/stream", nil)
	srec := httptest.NewRecorder()
	env.echo.ServeHTTP(srec, req)

	events := parseSSE(t, srec.Body.String())
	require.NotEmpty(t, events)

	statuses := make([]models.ProgressStatus, len(events))
	for i, ev := range events {
		statuses[i] = ev.Status
	}
	assert.Contains(t, statuses, models.StatusParsing)
	assert.Contains(t, statuses, models.StatusValidating)
	assert.Contains(t, statuses, models.StatusInserting)
	assert.Equal(t, models.StatusCompleted, statuses[len(statuses)-1])
}

// Two files ingested for the same document must not share a progress stream.
func TestProgressStreamsSeparatePerFile(t *testing.T) {
	env := newTestEnv(t)

	csv := "Name,Phone Number,Ward\nAsha,981,W1\n"
	for _, name := range []string{"people.csv", "staff.csv"} {
		rec := postJSON(env, "/api/documents/doc-1/ingest/chunk",
			chunkBody(name, []byte(csv), true))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	for _, jobID := range []string{"doc-1-people.csv", "doc-1-staff.csv"} {
		req := httptest.NewRequest(http.MethodGet, "/api/progress/"+jobID+"/stream", nil)
		rec := httptest.NewRecorder()
		env.echo.ServeHTTP(rec, req)

		events := parseSSE(t, rec.Body.String())
		require.NotEmpty(t, events)
		for _, ev := range events {
			assert.Equal(t, jobID, ev.JobID)
		}
		assert.Equal(t, models.StatusCompleted, events[len(events)-1].Status)
	}
}
