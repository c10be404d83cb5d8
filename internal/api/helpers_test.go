package api

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/formstream/backend/internal/contract"
	"github.com/formstream/backend/internal/ingest"
	"github.com/formstream/backend/internal/models"
	"github.com/formstream/backend/internal/progress"
	"github.com/formstream/backend/internal/queue"
	"github.com/formstream/backend/internal/storage"
)

type fakeSink struct {
	mu      sync.Mutex
	records []models.NormalizedRecord
}

func (f *fakeSink) BulkInsert(ctx context.Context, records []models.NormalizedRecord) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, records...)
	return len(records), nil
}

type fakeEnqueuer struct {
	mu       sync.Mutex
	payloads []queue.IngestFilePayload
	err      error
}

func (f *fakeEnqueuer) EnqueueIngest(ctx context.Context, p queue.IngestFilePayload) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.payloads = append(f.payloads, p)
	return "task-1", nil
}

type testEnv struct {
	handler     *Handler
	echo        *echo.Echo
	sink        *fakeSink
	enqueuer    *fakeEnqueuer
	broadcaster *progress.Broadcaster
	temp        *storage.TempStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	resolver := contract.NewMemoryResolver()
	resolver.Put(&models.DocumentDefinition{
		ID:   "doc-1",
		Name: "People",
		Fields: []models.FieldDefinition{
			{Name: "name", Label: "Name"},
			{Name: "phoneNumber", Label: "Phone Number"},
			{Name: "ward", Label: "Ward"},
		},
	})

	snk := &fakeSink{}
	bc := progress.NewBroadcaster(64, logger)
	sessions := ingest.NewStore(resolver, snk, bc, 10, logger)
	temp, err := storage.NewTempStore(t.TempDir(), logger)
	require.NoError(t, err)
	enq := &fakeEnqueuer{}

	h := NewHandler(HandlerConfig{
		Sessions:    sessions,
		Resolver:    resolver,
		Broadcaster: bc,
		TempStore:   temp,
		Enqueuer:    enq,
		Logger:      logger,
	})

	e := echo.New()
	e.HTTPErrorHandler = ErrorHandler
	RegisterRoutes(e, h)

	return &testEnv{
		handler:     h,
		echo:        e,
		sink:        snk,
		enqueuer:    enq,
		broadcaster: bc,
		temp:        temp,
	}
}
