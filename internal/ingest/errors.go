package ingest

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnsupportedFile rejects extensions the pipeline cannot parse.
	ErrUnsupportedFile = errors.New("unsupported file type")

	// ErrSessionClosed is returned when a chunk arrives for a session that
	// already reached a terminal state.
	ErrSessionClosed = errors.New("ingest session already closed")

	// ErrSessionIdle marks sessions evicted by the janitor.
	ErrSessionIdle = errors.New("ingest session evicted after idle timeout")
)

// HeaderError reports every contract header the uploaded file is missing, in
// one error, so the client can fix the file in a single round trip.
type HeaderError struct {
	Missing []string
}

func (e *HeaderError) Error() string {
	return fmt.Sprintf("file is missing required headers: %s", strings.Join(e.Missing, ", "))
}
