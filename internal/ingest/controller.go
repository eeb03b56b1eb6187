// Package ingest runs the read, normalize, batch and write pipeline for one
// dataset. Batches are written strictly in source order, one transaction
// each; a failed batch never leaves a partial write behind.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/atlasgrowth23/lapermits/internal/dataset"
	"github.com/atlasgrowth23/lapermits/internal/db"
	"github.com/atlasgrowth23/lapermits/internal/logging"
	"github.com/atlasgrowth23/lapermits/internal/metrics"
	"github.com/atlasgrowth23/lapermits/internal/normalize"
	"github.com/atlasgrowth23/lapermits/internal/source"
)

var (
	// ErrStoreUnavailable means the store could not be reached before the run started
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrSourceUnavailable means the source could not be opened or stopped yielding rows
	ErrSourceUnavailable = errors.New("source unavailable")
)

// DefaultMaxDefects caps how many defects a summary retains
const DefaultMaxDefects = 1000

// State is the controller's position in the run lifecycle
type State string

const (
	StateIdle        State = "idle"
	StateReading     State = "reading"
	StateNormalizing State = "normalizing"
	StateBatching    State = "batching"
	StateWriting     State = "writing"
	StateRecovering  State = "recovering"
	StateFinalizing  State = "finalizing"
	StateDone        State = "done"
)

// Options configures one run
type Options struct {
	BatchSize  int
	Mode       Mode
	BatchDelay time.Duration
	MaxDefects int
	// Ranges limits the run to these source spans; empty means the whole source.
	// An End of -1 reads to the end of the source.
	Ranges  []Range
	RunID   string
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Controller drives a single run. It is not reusable.
type Controller struct {
	store    Store
	src      source.Source
	schema   dataset.Schema
	opts     Options
	writer   *Writer
	recovery *Recovery
	logger   *slog.Logger
	metrics  *metrics.Metrics

	mu    sync.Mutex
	state State
	ran   bool

	summary RunSummary
}

// NewController validates options and prepares a run
func NewController(store Store, src source.Source, schema dataset.Schema, opts Options) (*Controller, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.MaxDefects <= 0 {
		opts.MaxDefects = DefaultMaxDefects
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	for _, r := range opts.Ranges {
		if r.Start < 0 || (r.End >= 0 && r.End <= r.Start) {
			return nil, fmt.Errorf("invalid range [%d, %d)", r.Start, r.End)
		}
	}

	writer, err := NewWriter(store, schema.Name, schema.Table, dataset.KeyColumn, schema.Rules, opts.BatchSize, opts.Metrics)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger.With("run_id", opts.RunID, "dataset", schema.Name)
	return &Controller{
		store:    store,
		src:      src,
		schema:   schema,
		opts:     opts,
		writer:   writer,
		recovery: NewRecovery(store, schema.Name, schema.Table, schema.Rules, logger, opts.Metrics),
		logger:   logger,
		metrics:  opts.Metrics,
		state:    StateIdle,
	}, nil
}

// RunID identifies the run in logs and the run ledger
func (c *Controller) RunID() string { return c.opts.RunID }

// State reports the current lifecycle state; safe to call while Run executes
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	prev := c.state
	c.state = s
	c.mu.Unlock()
	if prev != s {
		c.logger.Debug("state", "from", prev, "to", s)
	}
}

// Run executes the pipeline. A store that cannot be pinged or a source that
// cannot be opened fails the run before any batch, with no summary. After
// that, the run always produces a summary. Cancelling ctx stops the run at
// the next batch boundary; the batch in flight completes.
func (c *Controller) Run(ctx context.Context) (RunSummary, error) {
	c.mu.Lock()
	if c.ran {
		c.mu.Unlock()
		return RunSummary{}, errors.New("controller already ran")
	}
	c.ran = true
	c.mu.Unlock()

	c.summary = RunSummary{
		RunID:        c.opts.RunID,
		Dataset:      c.schema.Name,
		Source:       c.src.Name(),
		Mode:         c.opts.Mode.String(),
		StartedAt:    time.Now().UTC(),
		DefectCounts: make(map[normalize.Reason]int),
	}

	c.setState(StateReading)
	if err := c.store.Ping(ctx); err != nil {
		c.setState(StateDone)
		return RunSummary{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	ranges := c.opts.Ranges
	if len(ranges) == 0 {
		ranges = []Range{{Start: 0, End: -1}}
	}

	// Work inside a batch is not interrupted; cancellation is checked between batches.
	// Readers live across batches, so every one is opened on work.
	work := context.WithoutCancel(ctx)

	first, err := c.src.Rows(work, ranges[0].Start)
	if err != nil {
		c.setState(StateDone)
		return RunSummary{}, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}

	c.logger.Info("starting run", "source", c.src.Name(), "mode", c.opts.Mode, "batch_size", c.opts.BatchSize)

	var runErr error
	index := 0
	for i, r := range ranges {
		rows := first
		if i > 0 {
			if ctx.Err() != nil {
				c.summary.Cancelled = true
				break
			}
			c.setState(StateReading)
			rows, err = c.src.Rows(work, r.Start)
			if err != nil {
				runErr = c.abort(err)
				break
			}
		}

		stream := NewStream(rows, c.schema.Rules, c.recordDefect).Until(r.End)
		batcher := NewBatcher(stream, c.opts.BatchSize, index)
		cancelled, err := c.process(ctx, work, batcher)
		rows.Close()

		c.summary.RowsRead += stream.RowsRead()
		c.metrics.AddRowsRead(c.schema.Name, stream.RowsRead())
		index = batcher.index

		if err != nil {
			runErr = c.abort(err)
			break
		}
		if cancelled {
			c.summary.Cancelled = true
			break
		}
	}

	c.setState(StateFinalizing)
	c.summary.FinishedAt = time.Now().UTC()
	summary := c.summary.clone()
	c.logSummary(summary)
	c.setState(StateDone)
	return summary, runErr
}

func (c *Controller) abort(err error) error {
	c.summary.Aborted = err.Error()
	c.logger.Error("source failed mid-run", "error", err)
	return fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
}

// process writes batches until the stream ends or ctx is cancelled
func (c *Controller) process(ctx, work context.Context, batcher *Batcher) (bool, error) {
	first := true
	for {
		if ctx.Err() != nil {
			return true, nil
		}
		if !first && c.opts.BatchDelay > 0 {
			select {
			case <-ctx.Done():
				return true, nil
			case <-time.After(c.opts.BatchDelay):
			}
		}

		c.setState(StateNormalizing)
		batch, err := batcher.Next(work)
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		first = false

		c.setState(StateBatching)
		c.logger.Debug("batch ready", "batch", batch.Index, "start", batch.Start, "end", batch.End(), "rows", batch.Len())

		c.setState(StateWriting)
		outcome := c.writer.Write(work, batch, c.opts.Mode)
		if outcome.Failure == db.FailureOverflow {
			outcome = c.recover(work, batch, outcome)
		}
		c.account(batch, outcome)
	}
}

// recover widens the offending columns and replays the batch from the source
func (c *Controller) recover(ctx context.Context, batch Batch, failed WriteOutcome) WriteOutcome {
	c.setState(StateRecovering)
	c.logger.Warn("numeric overflow, attempting recovery", "batch", batch.Index, "start", batch.Start, "end", batch.End())

	permanent := func(err error) WriteOutcome {
		return WriteOutcome{Failure: failed.Failure, Err: fmt.Errorf("%v; recovery: %w", failed.Err, err)}
	}

	plan, err := c.recovery.Plan(ctx, batch)
	if err != nil {
		return permanent(err)
	}
	if err := c.recovery.Apply(ctx, plan); err != nil {
		return permanent(err)
	}
	c.summary.Widenings = append(c.summary.Widenings, plan...)

	replay, err := c.replay(ctx, batch)
	if err != nil {
		return permanent(err)
	}

	c.setState(StateWriting)
	out := c.writer.Write(ctx, replay, c.opts.Mode)
	if out.OK() {
		c.summary.Recovered++
		c.metrics.IncrementBatch(c.schema.Name, "recovered")
	}
	return out
}

// replay re-reads exactly the batch's source range. Defects were already
// recorded on the first pass and are not recorded again.
func (c *Controller) replay(ctx context.Context, batch Batch) (Batch, error) {
	rows, err := c.src.Rows(ctx, batch.Start)
	if err != nil {
		return Batch{}, fmt.Errorf("reopen source at %d: %w", batch.Start, err)
	}
	defer rows.Close()

	stream := NewStream(rows, c.schema.Rules, nil).Until(batch.End())
	replay, err := NewBatcher(stream, batch.Len(), batch.Index).Next(ctx)
	if err != nil {
		return Batch{}, fmt.Errorf("replay [%d, %d): %w", batch.Start, batch.End(), err)
	}
	if replay.Len() != batch.Len() || replay.Start != batch.Start {
		return Batch{}, fmt.Errorf("source changed: replay of [%d, %d) read %d records, expected %d",
			batch.Start, batch.End(), replay.Len(), batch.Len())
	}
	return replay, nil
}

func (c *Controller) account(batch Batch, out WriteOutcome) {
	if out.OK() {
		c.summary.BatchesWritten++
		c.summary.RowsWritten += out.Written
		if c.opts.Mode == ModeSkipDuplicates {
			c.summary.RowsSkipped += int64(batch.Len()) - out.Written
		}
		c.metrics.AddRowsWritten(c.schema.Name, out.Written)
		c.metrics.IncrementBatch(c.schema.Name, "written")
		c.logger.Info("batch written", "batch", batch.Index, "start", batch.Start, "end", batch.End(),
			"written", out.Written, "total_written", c.summary.RowsWritten)
		return
	}

	errText := ""
	if out.Err != nil {
		errText = out.Err.Error()
	}
	c.summary.BatchesFailed++
	c.summary.FailedRanges = append(c.summary.FailedRanges, FailedRange{
		BatchIndex: batch.Index,
		Start:      batch.Start,
		End:        batch.End(),
		Rows:       batch.Len(),
		Reason:     out.Failure,
		Error:      errText,
	})
	c.metrics.IncrementBatch(c.schema.Name, string(out.Failure))
	c.logger.Error("batch failed", "batch", batch.Index, "start", batch.Start, "end", batch.End(),
		"reason", out.Failure, "error", out.Err)
}

func (c *Controller) recordDefect(d normalize.Defect) {
	c.summary.DefectCounts[d.Reason]++
	c.metrics.IncrementDefect(c.schema.Name, string(d.Reason))
	if len(c.summary.Defects) >= c.opts.MaxDefects {
		c.summary.DefectsDropped++
		return
	}
	c.summary.Defects = append(c.summary.Defects, d)
	c.logger.Warn("field defect", "row", d.Ordinal, "field", d.Field, "reason", d.Reason, "raw", d.Raw, "detail", d.Detail)
}

func (c *Controller) logSummary(s RunSummary) {
	c.logger.Info("run finished",
		"rows_read", s.RowsRead,
		"rows_written", s.RowsWritten,
		"rows_skipped", s.RowsSkipped,
		"batches_written", s.BatchesWritten,
		"batches_failed", s.BatchesFailed,
		"batches_recovered", s.Recovered,
		"defects", s.TotalDefects(),
		"cancelled", s.Cancelled,
		"took", s.Duration().Truncate(time.Millisecond))
}
