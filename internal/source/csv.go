package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/atlasgrowth23/lapermits/internal/normalize"
)

const bom = "\ufeff"

// CSV reads a delimited extract with a header row
type CSV struct {
	Path      string
	Opener    Opener
	Delimiter rune
}

// NewCSV creates a CSV source; a zero delimiter means comma
func NewCSV(path string, opener Opener, delimiter rune) *CSV {
	if delimiter == 0 {
		delimiter = ','
	}
	return &CSV{Path: path, Opener: opener, Delimiter: delimiter}
}

// Name returns the path the source reads
func (c *CSV) Name() string { return c.Path }

// Rows opens the file and skips to the data row at offset
func (c *CSV) Rows(ctx context.Context, offset int) (RowReader, error) {
	rc, err := c.Opener.Open(ctx, c.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", c.Path, err)
	}

	reader := csv.NewReader(rc)
	reader.Comma = c.Delimiter
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		rc.Close()
		return nil, fmt.Errorf("failed to read header of %s: %w", c.Path, err)
	}
	header = cleanHeader(header)

	rows := &csvRows{closer: rc, reader: reader, header: header}
	for rows.offset < offset {
		if _, err := rows.reader.Read(); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			var parseErr *csv.ParseError
			if !errors.As(err, &parseErr) {
				rc.Close()
				return nil, fmt.Errorf("failed to skip to row %d of %s: %w", offset, c.Path, err)
			}
		}
		rows.offset++
	}
	return rows, nil
}

func cleanHeader(header []string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, bom)
		}
		out[i] = strings.TrimSpace(h)
	}
	return out
}

type csvRows struct {
	closer io.Closer
	reader *csv.Reader
	header []string
	offset int
}

// Next returns the next data row. Rows shorter than the header are padded
// with empty values; longer rows come back with ErrMalformedRow.
func (r *csvRows) Next(ctx context.Context) (Row, error) {
	if err := ctx.Err(); err != nil {
		return Row{}, err
	}

	record, err := r.reader.Read()
	if errors.Is(err, io.EOF) {
		return Row{}, io.EOF
	}

	row := Row{Offset: r.offset}
	r.offset++

	var parseErr *csv.ParseError
	switch {
	case errors.As(err, &parseErr):
		row.Err = fmt.Errorf("%w: %v", ErrMalformedRow, parseErr)
		return row, nil
	case err != nil:
		return Row{}, err
	case len(record) > len(r.header):
		row.Err = fmt.Errorf("%w: %d fields, header has %d", ErrMalformedRow, len(record), len(r.header))
		return row, nil
	}

	values := make(normalize.RawRow, len(r.header))
	for i, name := range r.header {
		if i < len(record) {
			values[name] = record[i]
		} else {
			values[name] = ""
		}
	}
	row.Values = values
	return row, nil
}

func (r *csvRows) Close() error {
	return r.closer.Close()
}
