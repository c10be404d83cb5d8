// handlers_health.go - Health check endpoint
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type healthResponse struct {
	Status       string `json:"status"`
	LiveSessions int    `json:"liveSessions"`
}

// HandleHealth reports service liveness and the number of in-flight upload
// sessions.
func (h *Handler) HandleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{
		Status:       "ok",
		LiveSessions: h.sessions.Len(),
	})
}
