// Package ingest implements the chunked bulk-file pipeline: resumable upload
// sessions that parse CSV/XLSX streams incrementally, normalize rows against
// a document contract, and flush them to a bulk sink in batches.
package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/formstream/backend/internal/models"
	"github.com/formstream/backend/internal/normalize"
	"github.com/formstream/backend/internal/progress"
	"github.com/formstream/backend/internal/sink"
)

// DefaultBatchSize is the flush threshold when none is configured.
const DefaultBatchSize = 1000

// FileKind selects the parser for a session.
type FileKind string

const (
	KindCSV  FileKind = "csv"
	KindXLSX FileKind = "xlsx"
)

// KindForFile maps a file name to its parser by extension.
func KindForFile(name string) (FileKind, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return KindCSV, nil
	case ".xlsx":
		return KindXLSX, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFile, filepath.Ext(name))
	}
}

// State is the session lifecycle phase.
type State string

const (
	StateInit           State = "INIT"
	StateHeadersPending State = "HEADERS_PENDING"
	StateStreaming      State = "STREAMING"
	StateFinalizing     State = "FINALIZING"
	StateCompleted      State = "COMPLETED"
	StateFailed         State = "FAILED"
)

// Options configures a new Session.
type Options struct {
	DocumentID string
	FileName   string
	// JobID keys progress events for this session's subscribers.
	JobID string
	Kind  FileKind
	// Headers is the canonical contract header list, in field order.
	Headers   []string
	Sink      sink.BulkSink
	Events    progress.Publisher
	BatchSize int
	Logger    *slog.Logger
}

// Result reports the outcome of feeding a chunk.
type Result struct {
	// Done is true once the terminal chunk has been fully processed.
	Done          bool
	TotalInserted int
	RowsSeen      int
}

// Session is one resumable upload: it accepts raw file chunks in order,
// parses complete rows as they become available, and flushes normalized
// batches to the sink. A session is keyed by document id + file name and is
// safe for use from multiple goroutines; chunk processing is serialized.
type Session struct {
	documentID string
	fileName   string
	jobID      string
	kind       FileKind
	expected   []string
	sink       sink.BulkSink
	events     progress.Publisher
	batchSize  int
	logger     *slog.Logger

	feedMu sync.Mutex // serializes Feed calls

	mu            sync.Mutex
	state         State
	err           error
	observed      []string // canonical headers as seen in the file, positional
	pending       []byte   // csv bytes awaiting a row boundary
	batch         []models.NormalizedRecord
	flushing      bool
	rowsSeen      int
	totalInserted int
	bytesConsumed int64 // bytes handed to the parser; buffered csv tails lag behind
	chunkCount    int
	lastActivity  time.Time

	// xlsx streaming
	pw       *io.PipeWriter
	xlsxDone chan error
}

func NewSession(opts Options) *Session {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &Session{
		documentID:   opts.DocumentID,
		fileName:     opts.FileName,
		jobID:        opts.JobID,
		kind:         opts.Kind,
		expected:     opts.Headers,
		sink:         opts.Sink,
		events:       opts.Events,
		batchSize:    opts.BatchSize,
		logger:       opts.Logger,
		state:        StateInit,
		lastActivity: time.Now(),
	}
	if s.kind == KindXLSX {
		pr, pw := io.Pipe()
		s.pw = pw
		s.xlsxDone = make(chan error, 1)
		go s.consumeWorkbook(pr)
	}
	s.logger.Info("ingest session created",
		slog.String("session", s.Key()),
		slog.String("kind", string(s.kind)),
		slog.Int("contract_headers", len(s.expected)))
	s.publish(models.StatusParsing, "upload started")
	return s
}

// Key identifies the session in the store.
func (s *Session) Key() string { return SessionKey(s.documentID, s.fileName) }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) TotalInserted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalInserted
}

func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// Feed processes one chunk. Chunks must arrive in file order; isLast marks
// the terminal chunk, which finalizes the session. On error the session
// enters FAILED and rejects further chunks.
func (s *Session) Feed(ctx context.Context, chunk []byte, isLast bool) (*Result, error) {
	s.feedMu.Lock()
	defer s.feedMu.Unlock()

	s.mu.Lock()
	if s.state == StateCompleted || s.state == StateFailed {
		err := s.err
		s.mu.Unlock()
		if err == nil {
			err = ErrSessionClosed
		}
		return nil, err
	}
	if s.state == StateInit {
		s.setStateLocked(StateHeadersPending)
	}
	s.chunkCount++
	s.lastActivity = time.Now()
	s.mu.Unlock()

	var err error
	switch s.kind {
	case KindCSV:
		err = s.feedCSV(ctx, chunk, isLast)
	case KindXLSX:
		err = s.feedXLSX(ctx, chunk, isLast)
	default:
		err = fmt.Errorf("%w: %q", ErrUnsupportedFile, s.kind)
	}
	if err != nil {
		s.fail(err)
		return nil, err
	}

	s.mu.Lock()
	res := &Result{Done: isLast, TotalInserted: s.totalInserted, RowsSeen: s.rowsSeen}
	s.mu.Unlock()
	return res, nil
}

// validateHeaders runs exactly once, on the first row of the file. All
// missing contract headers are reported together.
func (s *Session) validateHeaders(raw []string) error {
	observed := make([]string, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for i, h := range raw {
		observed[i] = normalize.Header(h)
		seen[observed[i]] = struct{}{}
	}

	var missing []string
	for _, h := range s.expected {
		if _, ok := seen[h]; !ok {
			missing = append(missing, h)
		}
	}
	if len(missing) > 0 {
		return &HeaderError{Missing: missing}
	}

	s.mu.Lock()
	s.observed = observed
	s.setStateLocked(StateStreaming)
	s.mu.Unlock()

	s.logger.Info("headers validated",
		slog.String("session", s.Key()),
		slog.Int("observed", len(observed)))
	s.publish(models.StatusValidating, "headers validated")
	return nil
}

// addConsumed advances the parsed-byte counter once bytes actually reach a
// parser, not when a chunk is merely received.
func (s *Session) addConsumed(n int) {
	s.mu.Lock()
	s.bytesConsumed += int64(n)
	s.mu.Unlock()
}

func (s *Session) headersValidated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.observed != nil
}

// appendRow normalizes one data row and flushes if the batch is full.
func (s *Session) appendRow(ctx context.Context, cells []string) error {
	s.mu.Lock()
	rowMap := make(map[string]string, len(s.observed))
	for i, h := range s.observed {
		if i < len(cells) {
			rowMap[h] = cells[i]
		}
	}
	rec := normalize.Row(s.documentID, rowMap, s.expected)
	s.rowsSeen++
	s.batch = append(s.batch, rec)
	full := len(s.batch) >= s.batchSize
	s.mu.Unlock()

	if full {
		return s.flush(ctx)
	}
	return nil
}

// flush sends the current batch to the sink. A flush already in progress
// leaves the batch in place; the next trigger (or finalize) picks it up.
// The processed counter advances only by what the sink confirms.
func (s *Session) flush(ctx context.Context) error {
	s.mu.Lock()
	if s.flushing || len(s.batch) == 0 {
		s.mu.Unlock()
		return nil
	}
	s.flushing = true
	batch := s.batch
	s.batch = nil
	s.mu.Unlock()

	inserted, err := s.sink.BulkInsert(ctx, batch)

	s.mu.Lock()
	s.flushing = false
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("flushing batch of %d: %w", len(batch), err)
	}
	s.totalInserted += inserted
	total := s.totalInserted
	s.mu.Unlock()

	s.logger.Info("batch flushed",
		slog.String("session", s.Key()),
		slog.Int("batch_size", len(batch)),
		slog.Int("inserted", inserted),
		slog.Int("total", total))
	s.publish(models.StatusInserting, fmt.Sprintf("inserted %d records", total))
	return nil
}

// finalize flushes whatever remains and marks the session completed.
func (s *Session) finalize(ctx context.Context) error {
	if !s.headersValidated() {
		return fmt.Errorf("upload ended before a header row was read")
	}
	s.setState(StateFinalizing)

	for {
		s.mu.Lock()
		drained := len(s.batch) == 0 && !s.flushing
		s.mu.Unlock()
		if drained {
			break
		}
		if err := s.flush(ctx); err != nil {
			return err
		}
	}

	s.setState(StateCompleted)
	s.mu.Lock()
	total, seen, consumed := s.totalInserted, s.rowsSeen, s.bytesConsumed
	s.mu.Unlock()

	s.logger.Info("ingest session completed",
		slog.String("session", s.Key()),
		slog.Int("rows_seen", seen),
		slog.Int("inserted", total),
		slog.Int64("bytes", consumed))
	s.events.Publish(models.ProgressEvent{
		JobID:          s.jobID,
		Status:         models.StatusCompleted,
		ProcessedRows:  total,
		TotalRows:      seen,
		ProcessedBytes: consumed,
		Percent:        100,
		Message:        fmt.Sprintf("ingested %d records", total),
	})
	return nil
}

// fail moves the session to FAILED from any state, discards buffered rows
// and bytes, and emits the terminal failed event.
func (s *Session) fail(cause error) {
	s.mu.Lock()
	if s.state == StateFailed || s.state == StateCompleted {
		s.mu.Unlock()
		return
	}
	prev := s.state
	s.state = StateFailed
	s.err = cause
	s.pending = nil
	s.batch = nil
	pw := s.pw
	total, seen, consumed := s.totalInserted, s.rowsSeen, s.bytesConsumed
	s.mu.Unlock()

	if pw != nil {
		pw.CloseWithError(cause)
	}

	s.logger.Error("ingest session failed",
		slog.String("session", s.Key()),
		slog.String("from_state", string(prev)),
		slog.Any("error", cause))
	s.events.Publish(models.ProgressEvent{
		JobID:          s.jobID,
		Status:         models.StatusFailed,
		ProcessedRows:  total,
		TotalRows:      seen,
		ProcessedBytes: consumed,
		Percent:        percent(total, seen),
		Message:        "ingestion failed",
		ErrorDetail:    cause.Error(),
	})
}

func (s *Session) publish(status models.ProgressStatus, msg string) {
	s.mu.Lock()
	ev := models.ProgressEvent{
		JobID:          s.jobID,
		Status:         status,
		ProcessedRows:  s.totalInserted,
		TotalRows:      s.rowsSeen,
		ProcessedBytes: s.bytesConsumed,
		Percent:        percent(s.totalInserted, s.rowsSeen),
		Message:        msg,
	}
	s.mu.Unlock()
	s.events.Publish(ev)
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.setStateLocked(st)
	s.mu.Unlock()
}

func (s *Session) setStateLocked(st State) {
	prev := s.state
	s.state = st
	s.logger.Debug("session state changed",
		slog.String("session", s.Key()),
		slog.String("from", string(prev)),
		slog.String("to", string(st)))
}

func percent(done, seen int) float64 {
	if seen == 0 {
		return 0
	}
	return float64(done) / float64(seen) * 100
}
