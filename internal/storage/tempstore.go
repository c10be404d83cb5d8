// Package storage keeps in-flight upload bytes on local disk for the queued
// ingestion model: the API appends chunks as they arrive, the worker reads
// the assembled file back, and the file is removed whatever the outcome.
package storage

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// TempStore manages one append-only file per ingestion job.
type TempStore struct {
	dir    string
	logger *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex // per-job append serialization
}

func NewTempStore(dir string, logger *slog.Logger) (*TempStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating temp dir: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TempStore{dir: dir, logger: logger, locks: make(map[string]*sync.Mutex)}, nil
}

// FilePath returns where the job's bytes live. The job id, not the client
// file name, keys the path; only the extension is kept.
func (t *TempStore) FilePath(jobID, fileName string) string {
	return filepath.Join(t.dir, jobID+filepath.Ext(fileName))
}

func (t *TempStore) lockFor(jobID string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.locks[jobID]
	if !ok {
		l = &sync.Mutex{}
		t.locks[jobID] = l
	}
	return l
}

// AppendChunk appends raw bytes to the job's file, creating it on first use.
func (t *TempStore) AppendChunk(jobID, fileName string, data []byte) error {
	l := t.lockFor(jobID)
	l.Lock()
	defer l.Unlock()

	path := t.FilePath(jobID, fileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening temp file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("appending chunk: %w", err)
	}
	return nil
}

// Open returns the assembled file for reading.
func (t *TempStore) Open(jobID, fileName string) (*os.File, error) {
	f, err := os.Open(t.FilePath(jobID, fileName))
	if err != nil {
		return nil, fmt.Errorf("opening assembled upload: %w", err)
	}
	return f, nil
}

// Cleanup removes the job's file. A file that is already gone is not an
// error: cleanup runs on both the success and failure paths.
func (t *TempStore) Cleanup(jobID, fileName string) error {
	t.mu.Lock()
	delete(t.locks, jobID)
	t.mu.Unlock()

	path := t.FilePath(jobID, fileName)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing temp file: %w", err)
	}
	t.logger.Debug("temp file removed", slog.String("job_id", jobID), slog.String("path", path))
	return nil
}

// CleanupOld removes files whose last modification is older than maxAge.
// Covers jobs whose complete signal never arrived.
func (t *TempStore) CleanupOld(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)
	entries, err := os.ReadDir(t.dir)
	if err != nil {
		t.logger.Warn("reading temp dir", slog.Any("error", err))
		return 0
	}

	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			path := filepath.Join(t.dir, e.Name())
			if err := os.Remove(path); err != nil {
				t.logger.Warn("removing stale temp file",
					slog.String("path", path), slog.Any("error", err))
				continue
			}
			removed++
		}
	}
	if removed > 0 {
		t.logger.Info("stale temp files removed", slog.Int("count", removed))
	}
	return removed
}
