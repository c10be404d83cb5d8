// routes.go - Route registration
package api

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes wires all API endpoints onto the echo instance.
func RegisterRoutes(e *echo.Echo, h *Handler) {
	api := e.Group("/api")

	api.GET("/health", h.HandleHealth)

	docs := api.Group("/documents/:documentId")
	docs.GET("", h.HandleGetDocument)

	// request-synchronous model: parse happens in the request
	docs.POST("/ingest/chunk", h.HandleIngestChunk)

	// queued model: accumulate, signal completion, worker ingests
	docs.POST("/ingest/jobs", h.HandleCreateJob)
	docs.POST("/ingest/jobs/:jobId/chunk", h.HandleJobChunk)
	docs.POST("/ingest/jobs/:jobId/complete", h.HandleJobComplete)

	api.GET("/progress/:jobId/stream", h.HandleProgressStream)
	api.GET("/progress/:jobId/ws", h.HandleProgressSocket)
}
