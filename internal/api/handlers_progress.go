// handlers_progress.go - Progress streaming over SSE and WebSocket
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/formstream/backend/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// HandleProgressStream streams a job's progress as SSE. The replay log is
// delivered first, so a late subscriber sees every phase it missed, then
// live events until the job reaches a terminal state.
func (h *Handler) HandleProgressStream(c echo.Context) error {
	jobID := c.Param("jobId")
	if jobID == "" {
		return NewValidationError("jobId")
	}

	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)

	backlog := h.backlog(c, jobID)
	sub := h.broadcaster.Subscribe(jobID)
	defer sub.Close()

	for _, ev := range backlog {
		h.sendSSEData(c, ev)
		if ev.Status.Terminal() {
			return nil
		}
	}

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-sub.C:
			if !ok {
				return nil
			}
			h.sendSSEData(c, ev)
			if ev.Status.Terminal() {
				return nil
			}
		}
	}
}

// HandleProgressSocket is the WebSocket twin of the SSE stream.
func (h *Handler) HandleProgressSocket(c echo.Context) error {
	jobID := c.Param("jobId")
	if jobID == "" {
		return NewValidationError("jobId")
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return NewBadRequestError("websocket upgrade failed", err)
	}
	defer conn.Close()

	backlog := h.backlog(c, jobID)
	sub := h.broadcaster.Subscribe(jobID)
	defer sub.Close()

	// read pump: we never expect client messages, but reading is how we
	// notice the peer going away
	disconnected := make(chan struct{})
	go func() {
		defer close(disconnected)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(ev models.ProgressEvent) error {
		return conn.WriteJSON(ev)
	}

	for _, ev := range backlog {
		if err := send(ev); err != nil {
			return nil
		}
		if ev.Status.Terminal() {
			return nil
		}
	}

	for {
		select {
		case <-disconnected:
			return nil
		case ev, ok := <-sub.C:
			if !ok {
				return nil
			}
			if err := send(ev); err != nil {
				return nil
			}
			if ev.Status.Terminal() {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(ev.Status)))
				return nil
			}
		}
	}
}

// backlog returns events published before this process held any for the job.
// The local replay log wins; the external history source only fills in when
// the job ran elsewhere (queued model, worker process).
func (h *Handler) backlog(c echo.Context, jobID string) []models.ProgressEvent {
	if h.history == nil || len(h.broadcaster.History(jobID)) > 0 {
		return nil
	}
	events, err := h.history.History(c.Request().Context(), jobID)
	if err != nil {
		h.logger.Warn("loading progress history",
			slog.String("job_id", jobID), slog.Any("error", err))
		return nil
	}
	return events
}

func (h *Handler) sendSSEData(c echo.Context, data interface{}) {
	jsonData, _ := json.Marshal(data)
	fmt.Fprintf(c.Response(), "data: %s\n\n", jsonData)
	c.Response().Flush()
}
