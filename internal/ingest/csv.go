package ingest

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/formstream/backend/internal/normalize"
)

// feedCSV buffers bytes until a row boundary is available, parses every
// complete row, and carries the partial tail into the next chunk. The
// terminal chunk parses everything, newline or not.
func (s *Session) feedCSV(ctx context.Context, chunk []byte, isLast bool) error {
	s.pending = append(s.pending, chunk...)

	if !isLast {
		idx := bytes.LastIndexByte(s.pending, '\n')
		if idx < 0 {
			// no complete row yet, keep buffering
			return nil
		}
		part := s.pending[:idx+1]
		rest := append([]byte(nil), s.pending[idx+1:]...)
		if err := s.parseCSVPart(ctx, part); err != nil {
			return err
		}
		s.pending = rest
		return nil
	}

	part := s.pending
	s.pending = nil
	if err := s.parseCSVPart(ctx, part); err != nil {
		return err
	}
	// belt and braces: anything re-buffered during the final parse
	if len(s.pending) > 0 {
		tail := s.pending
		s.pending = nil
		if err := s.parseCSVPart(ctx, tail); err != nil {
			return err
		}
	}
	return s.finalize(ctx)
}

// parseCSVPart parses a self-contained run of complete rows. The first
// non-empty row of the file is the header row; it is validated against the
// contract and never inserted.
func (s *Session) parseCSVPart(ctx context.Context, part []byte) error {
	s.addConsumed(len(part))
	if len(bytes.TrimSpace(part)) == 0 {
		return nil
	}

	r := csv.NewReader(bytes.NewReader(part))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("parsing csv: %w", err)
		}
		if normalize.IsEmptyRow(rec) {
			continue
		}
		if !s.headersValidated() {
			if err := s.validateHeaders(rec); err != nil {
				return err
			}
			continue
		}
		if err := s.appendRow(ctx, rec); err != nil {
			return err
		}
	}
}
