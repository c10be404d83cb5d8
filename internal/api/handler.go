// Package api exposes the ingestion service over HTTP: chunk submission for
// both execution models, progress streaming, and document lookup.
package api

import (
	"context"
	"log/slog"

	"github.com/formstream/backend/internal/contract"
	"github.com/formstream/backend/internal/ingest"
	"github.com/formstream/backend/internal/models"
	"github.com/formstream/backend/internal/progress"
	"github.com/formstream/backend/internal/queue"
	"github.com/formstream/backend/internal/storage"
)

// Enqueuer schedules a saved upload for background ingestion.
type Enqueuer interface {
	EnqueueIngest(ctx context.Context, p queue.IngestFilePayload) (string, error)
}

// HistorySource loads progress events published before this process had a
// local copy, e.g. worker events stored in Redis.
type HistorySource interface {
	History(ctx context.Context, jobID string) ([]models.ProgressEvent, error)
}

// Handler carries the dependencies of all API endpoints.
type Handler struct {
	sessions    *ingest.Store
	resolver    contract.Resolver
	broadcaster *progress.Broadcaster
	jobEvents   progress.Publisher // queued-model events go through the bridge
	history     HistorySource      // optional
	temp        *storage.TempStore
	enqueuer    Enqueuer
	logger      *slog.Logger
}

type HandlerConfig struct {
	Sessions    *ingest.Store
	Resolver    contract.Resolver
	Broadcaster *progress.Broadcaster
	JobEvents   progress.Publisher
	History     HistorySource
	TempStore   *storage.TempStore
	Enqueuer    Enqueuer
	Logger      *slog.Logger
}

func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	jobEvents := cfg.JobEvents
	if jobEvents == nil {
		jobEvents = cfg.Broadcaster
	}
	return &Handler{
		sessions:    cfg.Sessions,
		resolver:    cfg.Resolver,
		broadcaster: cfg.Broadcaster,
		jobEvents:   jobEvents,
		history:     cfg.History,
		temp:        cfg.TempStore,
		enqueuer:    cfg.Enqueuer,
		logger:      cfg.Logger,
	}
}
