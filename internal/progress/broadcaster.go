// Package progress fans ingestion progress events out to SSE and WebSocket
// subscribers, with a bounded per-job replay log so late subscribers see what
// they missed.
package progress

import (
	"log/slog"
	"sync"
	"time"

	"github.com/formstream/backend/internal/models"
)

// DefaultReplayLimit bounds the per-job replay log.
const DefaultReplayLimit = 256

// Publisher is the write side of progress delivery. The ingest pipeline only
// depends on this; in the API process it is the Broadcaster, in the worker it
// is the Redis bridge.
type Publisher interface {
	Publish(ev models.ProgressEvent)
}

type jobStream struct {
	replay   []models.ProgressEvent
	subs     map[*Subscriber]struct{}
	terminal bool
}

// Broadcaster is an in-process pub/sub hub keyed by job id.
type Broadcaster struct {
	mu          sync.Mutex
	jobs        map[string]*jobStream
	replayLimit int
	logger      *slog.Logger
}

func NewBroadcaster(replayLimit int, logger *slog.Logger) *Broadcaster {
	if replayLimit <= 0 {
		replayLimit = DefaultReplayLimit
	}
	return &Broadcaster{
		jobs:        make(map[string]*jobStream),
		replayLimit: replayLimit,
		logger:      logger,
	}
}

// Subscriber receives events for one job on C. Close it when done; the
// channel is closed by the broadcaster, never by the consumer.
type Subscriber struct {
	C     <-chan models.ProgressEvent
	ch    chan models.ProgressEvent
	b     *Broadcaster
	jobID string
	once  sync.Once
}

// Publish appends the event to the job's replay log and delivers it to every
// current subscriber. Delivery never blocks: a subscriber whose channel is
// full misses the live send and relies on what it already drained.
func (b *Broadcaster) Publish(ev models.ProgressEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	js := b.jobs[ev.JobID]
	if js == nil {
		js = &jobStream{subs: make(map[*Subscriber]struct{})}
		b.jobs[ev.JobID] = js
	}

	js.replay = append(js.replay, ev)
	if len(js.replay) > b.replayLimit {
		js.replay = js.replay[len(js.replay)-b.replayLimit:]
	}
	if ev.Status.Terminal() {
		js.terminal = true
	}

	for sub := range js.subs {
		select {
		case sub.ch <- ev:
		default:
			b.logger.Warn("progress subscriber lagging, dropping event",
				slog.String("job_id", ev.JobID),
				slog.String("status", string(ev.Status)))
		}
	}
}

// Subscribe registers a listener for the job. The replay log is delivered
// into the subscriber's channel before any live event, in publish order.
func (b *Broadcaster) Subscribe(jobID string) *Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	js := b.jobs[jobID]
	if js == nil {
		js = &jobStream{subs: make(map[*Subscriber]struct{})}
		b.jobs[jobID] = js
	}

	sub := &Subscriber{
		ch:    make(chan models.ProgressEvent, b.replayLimit+64),
		b:     b,
		jobID: jobID,
	}
	sub.C = sub.ch
	for _, ev := range js.replay {
		sub.ch <- ev
	}
	js.subs[sub] = struct{}{}
	return sub
}

// Close detaches the subscriber. If the job already reached a terminal state
// and no listeners remain, its stream is garbage-collected.
func (s *Subscriber) Close() {
	b := s.b
	b.mu.Lock()
	defer b.mu.Unlock()
	if js := b.jobs[s.jobID]; js != nil {
		delete(js.subs, s)
		if js.terminal && len(js.subs) == 0 {
			delete(b.jobs, s.jobID)
		}
	}
	s.closeCh()
}

func (s *Subscriber) closeCh() {
	s.once.Do(func() { close(s.ch) })
}

// Forget drops a job's stream outright, closing any remaining subscribers.
// Used by the janitor for jobs that went idle without reaching a terminal
// state.
func (b *Broadcaster) Forget(jobID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	js := b.jobs[jobID]
	if js == nil {
		return
	}
	for sub := range js.subs {
		sub.closeCh()
	}
	delete(b.jobs, jobID)
}

// History returns a copy of the job's current replay log.
func (b *Broadcaster) History(jobID string) []models.ProgressEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	js := b.jobs[jobID]
	if js == nil {
		return nil
	}
	out := make([]models.ProgressEvent, len(js.replay))
	copy(out, js.replay)
	return out
}

var _ Publisher = (*Broadcaster)(nil)
