package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/atlasgrowth23/lapermits/internal/metrics"
	"github.com/atlasgrowth23/lapermits/internal/normalize"
)

// MaxPrecision is the widest NUMERIC recovery will widen to
const MaxPrecision = 38

var (
	// ErrAlreadyWidened means a column overflowed again after this run widened it
	ErrAlreadyWidened = errors.New("column already widened in this run")
	// ErrPrecisionCap means a value needs more than MaxPrecision digits
	ErrPrecisionCap = errors.New("value exceeds maximum precision")
	// ErrNoOffendingColumn means no decimal value in the batch explains the overflow
	ErrNoOffendingColumn = errors.New("no offending column found")
)

// Widening is one column change made by recovery
type Widening struct {
	Column        string `json:"column"`
	FromPrecision int    `json:"from_precision"`
	ToPrecision   int    `json:"to_precision"`
	Scale         int    `json:"scale"`
	BatchIndex    int    `json:"batch_index"`
}

// Recovery widens numeric columns after an overflow. Each column is widened
// at most once per run and never past MaxPrecision.
type Recovery struct {
	store   Store
	dataset string
	table   string
	rules   normalize.RuleSet
	widened map[string]bool
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewRecovery creates the per-run recovery state
func NewRecovery(store Store, dataset, table string, rules normalize.RuleSet, logger *slog.Logger, m *metrics.Metrics) *Recovery {
	return &Recovery{
		store:   store,
		dataset: dataset,
		table:   table,
		rules:   rules,
		widened: make(map[string]bool),
		logger:  logger,
		metrics: m,
	}
}

// Plan measures the batch's decimal values against the columns' current
// precision and returns the widenings that would make every value fit.
// The store's overflow error does not name the column, so this is how the
// offending columns are found.
func (r *Recovery) Plan(ctx context.Context, batch Batch) ([]Widening, error) {
	var plan []Widening
	for _, rule := range r.rules {
		if rule.Type != normalize.TypeDecimal {
			continue
		}

		precision, scale, err := r.store.ColumnPrecision(ctx, r.table, rule.Target)
		if err != nil {
			return nil, err
		}
		if precision == 0 {
			continue
		}

		need := 0
		for _, rec := range batch.Records {
			d, ok := rec.Values[rule.Target].(decimal.Decimal)
			if !ok || normalize.Fits(d, precision, scale) {
				continue
			}
			need = max(need, normalize.RequiredPrecision(d, scale))
		}
		if need == 0 {
			continue
		}

		if r.widened[rule.Target] {
			return nil, fmt.Errorf("%w: %s", ErrAlreadyWidened, rule.Target)
		}
		if need > MaxPrecision {
			return nil, fmt.Errorf("%w: %s needs %d digits, cap is %d", ErrPrecisionCap, rule.Target, need, MaxPrecision)
		}
		plan = append(plan, Widening{
			Column:        rule.Target,
			FromPrecision: precision,
			ToPrecision:   need,
			Scale:         scale,
			BatchIndex:    batch.Index,
		})
	}

	if len(plan) == 0 {
		return nil, ErrNoOffendingColumn
	}
	return plan, nil
}

// Apply performs a plan. Columns are marked widened even if the store
// reports no change so a repeat overflow is not retried.
func (r *Recovery) Apply(ctx context.Context, plan []Widening) error {
	for _, w := range plan {
		changed, err := r.Widen(ctx, w.Column, w.ToPrecision, w.Scale)
		if err != nil {
			return err
		}
		if changed {
			r.logger.Info("widened column",
				"dataset", r.dataset, "column", w.Column,
				"from", fmt.Sprintf("numeric(%d,%d)", w.FromPrecision, w.Scale),
				"to", fmt.Sprintf("numeric(%d,%d)", w.ToPrecision, w.Scale),
				"batch", w.BatchIndex)
		}
	}
	return nil
}

// Widen raises one column to newPrecision. Monotonic and idempotent: a
// precision at or below the current one changes nothing.
func (r *Recovery) Widen(ctx context.Context, column string, newPrecision, scale int) (bool, error) {
	if newPrecision > MaxPrecision {
		return false, fmt.Errorf("%w: %s to %d", ErrPrecisionCap, column, newPrecision)
	}
	changed, err := r.store.WidenColumn(ctx, r.table, column, newPrecision, scale)
	if err != nil {
		return false, fmt.Errorf("failed to widen %s: %w", column, err)
	}
	r.widened[column] = true
	if changed {
		r.metrics.IncrementWidening(r.dataset, column)
	}
	return changed, nil
}
