package ingest

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/formstream/backend/internal/contract"
	"github.com/formstream/backend/internal/progress"
	"github.com/formstream/backend/internal/sink"
)

// SessionKey identifies a session: one per document/file pair.
func SessionKey(documentID, fileName string) string {
	return documentID + "-" + fileName
}

// Store tracks live upload sessions. Sessions are created on the first chunk
// of a file and removed when they finish, fail, or go idle.
type Store struct {
	resolver  contract.Resolver
	sink      sink.BulkSink
	events    progress.Publisher
	batchSize int
	logger    *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewStore(resolver contract.Resolver, bulk sink.BulkSink, events progress.Publisher, batchSize int, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		resolver:  resolver,
		sink:      bulk,
		events:    events,
		batchSize: batchSize,
		logger:    logger,
		sessions:  make(map[string]*Session),
	}
}

// GetOrCreate returns the live session for the document/file pair, creating
// one on first contact. Creation resolves the header contract; an unknown
// document id fails here, before any bytes are parsed.
func (st *Store) GetOrCreate(ctx context.Context, documentID, fileName, jobID string) (*Session, error) {
	kind, err := KindForFile(fileName)
	if err != nil {
		return nil, err
	}

	key := SessionKey(documentID, fileName)
	st.mu.Lock()
	if s, ok := st.sessions[key]; ok {
		st.mu.Unlock()
		return s, nil
	}
	st.mu.Unlock()

	// contract lookup may hit the database, keep it outside the lock
	headers, err := st.resolver.Headers(ctx, documentID)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if s, ok := st.sessions[key]; ok {
		return s, nil
	}
	s := NewSession(Options{
		DocumentID: documentID,
		FileName:   fileName,
		JobID:      jobID,
		Kind:       kind,
		Headers:    headers,
		Sink:       st.sink,
		Events:     st.events,
		BatchSize:  st.batchSize,
		Logger:     st.logger,
	})
	st.sessions[key] = s
	return s, nil
}

// Get returns the session for the key, if live.
func (st *Store) Get(key string) (*Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[key]
	return s, ok
}

// Remove drops the session from the store. Callers remove a session once it
// reaches a terminal state.
func (st *Store) Remove(key string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.sessions, key)
}

// Len reports the number of live sessions.
func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

// EvictIdle fails and removes sessions with no chunk activity within maxIdle.
// Run periodically so abandoned uploads do not pin buffers forever.
func (st *Store) EvictIdle(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)

	st.mu.Lock()
	var stale []*Session
	for key, s := range st.sessions {
		if s.LastActivity().Before(cutoff) {
			stale = append(stale, s)
			delete(st.sessions, key)
		}
	}
	st.mu.Unlock()

	for _, s := range stale {
		s.fail(ErrSessionIdle)
		st.logger.Warn("evicted idle ingest session",
			slog.String("session", s.Key()),
			slog.Duration("max_idle", maxIdle))
	}
	return len(stale)
}
