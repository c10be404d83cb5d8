// Package worker runs queued ingestion jobs: it reads the file the API saved
// to the temp store and replays it through the ingest pipeline in fixed-size
// chunks, publishing progress for the API process to relay.
package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/formstream/backend/internal/contract"
	"github.com/formstream/backend/internal/ingest"
	"github.com/formstream/backend/internal/models"
	"github.com/formstream/backend/internal/progress"
	"github.com/formstream/backend/internal/queue"
	"github.com/formstream/backend/internal/sink"
	"github.com/formstream/backend/internal/storage"
)

// DefaultChunkSize is how much of the saved file is fed per pipeline step.
const DefaultChunkSize = 64 * 1024

// Processor handles ingest tasks.
type Processor struct {
	resolver  contract.Resolver
	sink      sink.BulkSink
	events    progress.Publisher
	temp      *storage.TempStore
	batchSize int
	chunkSize int
	logger    *slog.Logger
}

type ProcessorConfig struct {
	Resolver  contract.Resolver
	Sink      sink.BulkSink
	Events    progress.Publisher
	TempStore *storage.TempStore
	BatchSize int
	ChunkSize int
	Logger    *slog.Logger
}

func NewProcessor(cfg ProcessorConfig) *Processor {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Processor{
		resolver:  cfg.Resolver,
		sink:      cfg.Sink,
		events:    cfg.Events,
		temp:      cfg.TempStore,
		batchSize: cfg.BatchSize,
		chunkSize: cfg.ChunkSize,
		logger:    cfg.Logger,
	}
}

// Register wires the processor into the asynq mux.
func (p *Processor) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(queue.TypeIngestFile, p.HandleIngestFile)
}

// HandleIngestFile processes one queued file. Retries restart from the top
// of the file: the session is built fresh on every attempt. The temp file is
// removed once the job reaches a terminal outcome.
func (p *Processor) HandleIngestFile(ctx context.Context, t *asynq.Task) error {
	payload, err := queue.ParseIngestFilePayload(t)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	log := p.logger.With(
		slog.String("job_id", payload.JobID),
		slog.String("document_id", payload.DocumentID),
		slog.String("file", payload.FileName))
	log.Info("ingest job started")

	err = p.run(ctx, payload)
	if err == nil {
		p.cleanup(payload, log)
		return nil
	}

	// client-side problems never succeed on retry
	var herr *ingest.HeaderError
	if errors.As(err, &herr) ||
		errors.Is(err, ingest.ErrUnsupportedFile) ||
		errors.Is(err, contract.ErrDefinitionNotFound) {
		p.cleanup(payload, log)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	retried, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)
	if retried >= maxRetry {
		p.cleanup(payload, log)
	}
	return err
}

func (p *Processor) run(ctx context.Context, payload queue.IngestFilePayload) error {
	kind, err := ingest.KindForFile(payload.FileName)
	if err != nil {
		p.publishFailed(payload, err)
		return err
	}

	headers, err := p.resolver.Headers(ctx, payload.DocumentID)
	if err != nil {
		p.publishFailed(payload, err)
		return err
	}

	f, err := p.temp.Open(payload.JobID, payload.FileName)
	if err != nil {
		p.publishFailed(payload, err)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	defer f.Close()

	sess := ingest.NewSession(ingest.Options{
		DocumentID: payload.DocumentID,
		FileName:   payload.FileName,
		JobID:      payload.JobID,
		Kind:       kind,
		Headers:    headers,
		Sink:       p.sink,
		Events:     p.events,
		BatchSize:  p.batchSize,
		Logger:     p.logger,
	})

	buf := make([]byte, p.chunkSize)
	for {
		n, rerr := f.Read(buf)
		last := errors.Is(rerr, io.EOF)
		if rerr != nil && !last {
			return fmt.Errorf("reading saved upload: %w", rerr)
		}
		if n > 0 || last {
			if _, err := sess.Feed(ctx, buf[:n], last); err != nil {
				return err
			}
		}
		if last {
			return nil
		}
	}
}

func (p *Processor) cleanup(payload queue.IngestFilePayload, log *slog.Logger) {
	if err := p.temp.Cleanup(payload.JobID, payload.FileName); err != nil {
		log.Warn("temp file cleanup failed", slog.Any("error", err))
	}
}

// publishFailed covers failures that happen before a session exists; once a
// session is live it emits its own terminal events.
func (p *Processor) publishFailed(payload queue.IngestFilePayload, cause error) {
	p.events.Publish(models.ProgressEvent{
		JobID:       payload.JobID,
		Status:      models.StatusFailed,
		Message:     "ingestion failed",
		ErrorDetail: cause.Error(),
	})
}
