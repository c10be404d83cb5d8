package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/formstream/backend/internal/normalize"
)

// feedXLSX streams raw chunk bytes into the workbook reader goroutine. The
// terminal chunk closes the write side and waits for the reader to drain the
// sheet, so completion is only signalled after the last flush.
func (s *Session) feedXLSX(ctx context.Context, chunk []byte, isLast bool) error {
	if len(chunk) > 0 {
		if _, err := s.pw.Write(chunk); err != nil {
			// the reader goroutine aborts the pipe when it fails; prefer
			// its error over the bare pipe error
			select {
			case cause := <-s.xlsxDone:
				if cause != nil {
					return cause
				}
			default:
			}
			return fmt.Errorf("feeding workbook stream: %w", err)
		}
		s.addConsumed(len(chunk))
	}
	if !isLast {
		return nil
	}
	if err := s.pw.Close(); err != nil {
		return fmt.Errorf("closing workbook stream: %w", err)
	}
	if err := <-s.xlsxDone; err != nil {
		return err
	}
	return s.finalize(ctx)
}

// consumeWorkbook runs in its own goroutine for the life of the session. It
// opens the byte stream as a workbook, walks the rows of the first sheet, and
// reports the outcome on xlsxDone. Sheets after the first are ignored.
func (s *Session) consumeWorkbook(pr *io.PipeReader) {
	err := s.readFirstSheet(pr)
	if err != nil {
		pr.CloseWithError(err)
	} else {
		pr.Close()
	}
	s.xlsxDone <- err
}

func (s *Session) readFirstSheet(pr *io.PipeReader) error {
	f, err := excelize.OpenReader(pr)
	if err != nil {
		return fmt.Errorf("opening workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return errors.New("workbook has no sheets")
	}

	rows, err := f.Rows(sheets[0])
	if err != nil {
		return fmt.Errorf("iterating sheet %q: %w", sheets[0], err)
	}
	defer rows.Close()

	ctx := context.Background()
	for rows.Next() {
		cells, err := rows.Columns()
		if err != nil {
			return fmt.Errorf("reading row: %w", err)
		}
		if normalize.IsEmptyRow(cells) {
			continue
		}
		if !s.headersValidated() {
			if err := s.validateHeaders(cells); err != nil {
				return err
			}
			continue
		}
		if err := s.appendRow(ctx, cells); err != nil {
			return err
		}
	}
	if err := rows.Error(); err != nil {
		return fmt.Errorf("row stream: %w", err)
	}
	// drain the batch before the completion signal goes out
	return s.flush(ctx)
}
