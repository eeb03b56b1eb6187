// Package source reads raw permit rows from CSV extracts and paginated feeds.
// Every source can be reopened at an explicit row offset so a failed batch
// can be replayed without re-reading what came before it.
package source

import (
	"context"
	"errors"

	"github.com/atlasgrowth23/lapermits/internal/normalize"
)

// ErrMalformedRow marks a row the source could read but not map onto the header
var ErrMalformedRow = errors.New("malformed row")

// Row is one raw data row. Offset is the 0-based data row index in the
// source; a row with Err set carries no usable values.
type Row struct {
	Offset int
	Values normalize.RawRow
	Err    error
}

// RowReader yields rows in source order until io.EOF
type RowReader interface {
	Next(ctx context.Context) (Row, error)
	Close() error
}

// Source is a restartable, ordered row producer
type Source interface {
	Name() string
	Rows(ctx context.Context, offset int) (RowReader, error)
}
