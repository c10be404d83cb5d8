package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/formstream/backend/internal/models"
)

// captureSink records every batch it receives and can be tuned to fail, run
// slowly, or confirm fewer rows than it was given.
type captureSink struct {
	mu         sync.Mutex
	batches    [][]models.NormalizedRecord
	calls      int
	failOn     int // 1-based call index that errors, 0 = never
	shortBy    int // confirm this many fewer rows than received
	delay      time.Duration
	inFlight   int32
	overlapped atomic.Bool
}

func (c *captureSink) BulkInsert(ctx context.Context, records []models.NormalizedRecord) (int, error) {
	if atomic.AddInt32(&c.inFlight, 1) > 1 {
		c.overlapped.Store(true)
	}
	defer atomic.AddInt32(&c.inFlight, -1)

	if c.delay > 0 {
		time.Sleep(c.delay)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.failOn != 0 && c.calls == c.failOn {
		return 0, errors.New("sink unavailable")
	}
	cp := make([]models.NormalizedRecord, len(records))
	copy(cp, records)
	c.batches = append(c.batches, cp)

	confirmed := len(records) - c.shortBy
	if confirmed < 0 {
		confirmed = 0
	}
	return confirmed, nil
}

func (c *captureSink) batchSizes() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	sizes := make([]int, len(c.batches))
	for i, b := range c.batches {
		sizes[i] = len(b)
	}
	return sizes
}

func (c *captureSink) allRecords() []models.NormalizedRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []models.NormalizedRecord
	for _, b := range c.batches {
		out = append(out, b...)
	}
	return out
}

// capturePublisher collects progress events in publish order.
type capturePublisher struct {
	mu     sync.Mutex
	events []models.ProgressEvent
}

func (p *capturePublisher) Publish(ev models.ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *capturePublisher) statuses() []models.ProgressStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.ProgressStatus, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Status
	}
	return out
}

func (p *capturePublisher) countStatus(status models.ProgressStatus) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, ev := range p.events {
		if ev.Status == status {
			n++
		}
	}
	return n
}

func (p *capturePublisher) last() models.ProgressEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.events) == 0 {
		return models.ProgressEvent{}
	}
	return p.events[len(p.events)-1]
}

func newTestSession(kind FileKind, headers []string, batchSize int, snk *captureSink, pub *capturePublisher) *Session {
	fileName := "people.csv"
	if kind == KindXLSX {
		fileName = "people.xlsx"
	}
	return NewSession(Options{
		DocumentID: "doc-1",
		FileName:   fileName,
		JobID:      "doc-1",
		Kind:       kind,
		Headers:    headers,
		Sink:       snk,
		Events:     pub,
		BatchSize:  batchSize,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

// feedAll splits data into fixed-size chunks and feeds them in order,
// marking the last chunk terminal.
func feedAll(ctx context.Context, s *Session, data []byte, chunkSize int) (*Result, error) {
	var res *Result
	var err error
	for off := 0; off < len(data); off += chunkSize {
		end := off + chunkSize
		if end > len(data) {
			end = len(data)
		}
		res, err = s.Feed(ctx, data[off:end], end == len(data))
		if err != nil {
			return nil, err
		}
	}
	return res, err
}
