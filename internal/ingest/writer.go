package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/atlasgrowth23/lapermits/internal/db"
	"github.com/atlasgrowth23/lapermits/internal/metrics"
	"github.com/atlasgrowth23/lapermits/internal/normalize"
)

// Mode selects how the writer treats rows already present in the store
type Mode int

const (
	ModeInsert Mode = iota
	ModeSkipDuplicates
)

func (m Mode) String() string {
	if m == ModeSkipDuplicates {
		return "insert-skip-duplicates"
	}
	return "insert"
}

// Store is the persistence surface the pipeline needs
type Store interface {
	Ping(ctx context.Context) error
	InsertBatch(ctx context.Context, req db.InsertRequest) (int64, error)
	ColumnPrecision(ctx context.Context, table, column string) (int, int, error)
	WidenColumn(ctx context.Context, table, column string, precision, scale int) (bool, error)
}

// WriteOutcome is either a written count or a classified failure
type WriteOutcome struct {
	Written int64
	Failure db.FailureReason
	Err     error
}

// OK reports whether the batch was committed
func (o WriteOutcome) OK() bool { return o.Failure == db.FailureNone }

// Writer turns batches into single-transaction multi-row inserts
type Writer struct {
	store     Store
	dataset   string
	table     string
	columns   []string
	keyColumn string
	metrics   *metrics.Metrics
}

// NewWriter validates that a full batch stays under the bind parameter limit
func NewWriter(store Store, dataset, table, keyColumn string, rules normalize.RuleSet, batchSize int, m *metrics.Metrics) (*Writer, error) {
	columns := append(rules.Targets(), keyColumn)
	if n := len(columns) * batchSize; n > db.MaxBindParameters {
		return nil, fmt.Errorf("batch size %d needs %d bind parameters for %d columns, limit is %d (max batch size %d)",
			batchSize, n, len(columns), db.MaxBindParameters, db.MaxBindParameters/len(columns))
	}
	return &Writer{
		store:     store,
		dataset:   dataset,
		table:     table,
		columns:   columns,
		keyColumn: keyColumn,
		metrics:   m,
	}, nil
}

// Write commits the whole batch or nothing
func (w *Writer) Write(ctx context.Context, batch Batch, mode Mode) WriteOutcome {
	start := time.Now()
	n, err := w.store.InsertBatch(ctx, w.request(batch, mode))
	w.metrics.ObserveWriteLatency(w.dataset, time.Since(start))
	if err != nil {
		return WriteOutcome{Failure: db.ClassifyError(err), Err: err}
	}
	return WriteOutcome{Written: n}
}

func (w *Writer) request(batch Batch, mode Mode) db.InsertRequest {
	targets := w.columns[:len(w.columns)-1]
	rows := make([][]any, len(batch.Records))
	for i, rec := range batch.Records {
		row := make([]any, 0, len(w.columns))
		for _, t := range targets {
			row = append(row, rec.Values[t])
		}
		rows[i] = append(row, rec.Key)
	}
	return db.InsertRequest{
		Table:          w.table,
		Columns:        w.columns,
		Rows:           rows,
		KeyColumn:      w.keyColumn,
		SkipDuplicates: mode == ModeSkipDuplicates,
	}
}
