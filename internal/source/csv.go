package source

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"io"

	"github.com/rotisserie/eris"
)

// CSVOptions configures the streaming CSV parser.
type CSVOptions struct {
	Delimiter  rune            // default ','
	HeaderCh   chan<- []string // optional: receives the header row
	LazyQuotes bool
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// StreamCSV parses r and sends data rows to the returned channel. The
// first record is the header and goes to opts.HeaderCh when set. A
// leading UTF-8 byte order mark is dropped. Both channels are closed when
// parsing completes; parse failures arrive on the error channel wrapped in
// ErrParse.
func StreamCSV(ctx context.Context, r io.Reader, opts CSVOptions) (<-chan []string, <-chan error) {
	rowCh := make(chan []string, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		br := bufio.NewReader(r)
		if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
			_, _ = br.Discard(len(utf8BOM))
		}

		reader := csv.NewReader(br)
		if opts.Delimiter != 0 {
			reader.Comma = opts.Delimiter
		}
		reader.LazyQuotes = opts.LazyQuotes
		reader.FieldsPerRecord = -1
		reader.ReuseRecord = false

		first := true
		for {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}

			record, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrapf(ErrParse, "csv: %v", err)
				return
			}

			if first {
				first = false
				if opts.HeaderCh != nil {
					select {
					case opts.HeaderCh <- record:
					case <-ctx.Done():
						errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled sending header")
						return
					}
				}
				continue
			}

			select {
			case rowCh <- record:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}
		}
	}()

	return rowCh, errCh
}

// ReadCSV collects a whole CSV stream into a header and records.
// An input without a header row is a parse error.
func ReadCSV(ctx context.Context, r io.Reader, opts CSVOptions) ([]string, [][]string, error) {
	headerCh := make(chan []string, 1)
	opts.HeaderCh = headerCh

	rowCh, errCh := StreamCSV(ctx, r, opts)
	var records [][]string
	for row := range rowCh {
		records = append(records, row)
	}
	for err := range errCh {
		if err != nil {
			return nil, nil, err
		}
	}

	select {
	case header := <-headerCh:
		return header, records, nil
	default:
		return nil, nil, eris.Wrap(ErrParse, "csv: missing header row")
	}
}
