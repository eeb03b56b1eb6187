package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlasgrowth23/lapermits/internal/db"
	"github.com/atlasgrowth23/lapermits/internal/logging"
	"github.com/atlasgrowth23/lapermits/internal/normalize"
)

func newRecovery(store *db.MemoryStore) *Recovery {
	s := testSchema()
	return NewRecovery(store, s.Name, s.Table, s.Rules, logging.Discard(), nil)
}

func batchWithFees(fees ...string) Batch {
	b := Batch{Index: 4}
	for i, f := range fees {
		rec := normalize.Record{Ordinal: i, Values: map[string]any{"fee": nil}}
		if f != "" {
			rec.Values["fee"] = decimal.RequireFromString(f)
		}
		b.Records = append(b.Records, rec)
	}
	return b
}

func TestRecoveryPlanTakesBatchMaximum(t *testing.T) {
	r := newRecovery(newStore())

	plan, err := r.Plan(context.Background(), batchWithFees("1.00", "", "1234.5", "-99999.99"))
	require.NoError(t, err)
	require.Len(t, plan, 1)
	assert.Equal(t, Widening{Column: "fee", FromPrecision: 5, ToPrecision: 7, Scale: 2, BatchIndex: 4}, plan[0])
}

func TestRecoveryPlanWithoutOffender(t *testing.T) {
	r := newRecovery(newStore())

	_, err := r.Plan(context.Background(), batchWithFees("1.00", "2.00"))
	assert.True(t, errors.Is(err, ErrNoOffendingColumn))
}

func TestRecoveryWidenIsMonotonic(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	r := newRecovery(store)

	changed, err := r.Widen(ctx, "fee", 3, 2)
	require.NoError(t, err)
	assert.False(t, changed, "narrower precision is a no-op")

	changed, err = r.Widen(ctx, "fee", 10, 2)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = r.Widen(ctx, "fee", 10, 2)
	require.NoError(t, err)
	assert.False(t, changed, "repeat is a no-op")

	_, err = r.Widen(ctx, "fee", MaxPrecision+1, 2)
	assert.True(t, errors.Is(err, ErrPrecisionCap))

	p, _, err := store.ColumnPrecision(ctx, "permits", "fee")
	require.NoError(t, err)
	assert.Equal(t, 10, p)
}

func TestRecoveryRefusesSecondWidening(t *testing.T) {
	ctx := context.Background()
	r := newRecovery(newStore())

	plan, err := r.Plan(ctx, batchWithFees("1234.00"))
	require.NoError(t, err)
	require.NoError(t, r.Apply(ctx, plan))

	_, err = r.Plan(ctx, batchWithFees("123456789.00"))
	assert.True(t, errors.Is(err, ErrAlreadyWidened))
}

func TestWriterRequest(t *testing.T) {
	s := testSchema()
	w, err := NewWriter(newStore(), s.Name, s.Table, "row_key", s.Rules, 10, nil)
	require.NoError(t, err)

	b := Batch{Records: []normalize.Record{{Key: "k", Values: map[string]any{"permitnum": "P-1", "fee": nil, "isclosed": true}}}}
	req := w.request(b, ModeSkipDuplicates)

	assert.Equal(t, []string{"permitnum", "fee", "isclosed", "row_key"}, req.Columns)
	assert.Equal(t, [][]any{{"P-1", nil, true, "k"}}, req.Rows)
	assert.True(t, req.SkipDuplicates)
	assert.Equal(t, "insert-skip-duplicates", ModeSkipDuplicates.String())
	assert.Equal(t, "insert", ModeInsert.String())
}
