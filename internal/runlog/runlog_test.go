package runlog

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlasgrowth23/lapermits/internal/db"
	"github.com/atlasgrowth23/lapermits/internal/ingest"
	"github.com/atlasgrowth23/lapermits/internal/normalize"
)

func openLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "ledger", "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func summary(id, dataset string, started time.Time) ingest.RunSummary {
	return ingest.RunSummary{
		RunID:        id,
		Dataset:      dataset,
		Source:       "permits.csv",
		StartedAt:    started,
		FinishedAt:   started.Add(time.Minute),
		RowsWritten:  1500,
		DefectCounts: map[normalize.Reason]int{normalize.ReasonParseFailure: 2},
		FailedRanges: []ingest.FailedRange{
			{BatchIndex: 1, Start: 1000, End: 2000, Rows: 1000, Reason: db.FailureConnection, Error: "broken pipe"},
		},
	}
}

func TestSaveAndLoad(t *testing.T) {
	ctx := context.Background()
	l := openLedger(t)
	started := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, l.Save(ctx, Entry{Summary: summary("run-1", "nola1", started), Kind: KindCSV, Delimiter: "|"}))

	e, err := l.Load(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, KindCSV, e.Kind)
	assert.Equal(t, "|", e.Delimiter)
	assert.Equal(t, int64(1500), e.Summary.RowsWritten)
	assert.Equal(t, 2, e.Summary.DefectCounts[normalize.ReasonParseFailure])
	require.Len(t, e.Summary.FailedRanges, 1)
	assert.Equal(t, ingest.Range{Start: 1000, End: 2000}, e.Summary.FailedRanges[0].Range())
	assert.True(t, e.Summary.StartedAt.Equal(started))

	_, err = l.Load(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSaveReplaces(t *testing.T) {
	ctx := context.Background()
	l := openLedger(t)
	s := summary("run-1", "nola1", time.Now())

	require.NoError(t, l.Save(ctx, Entry{Summary: s, Kind: KindCSV}))
	s.FailedRanges = nil
	require.NoError(t, l.Save(ctx, Entry{Summary: s, Kind: KindCSV}))

	e, err := l.Load(ctx, "run-1")
	require.NoError(t, err)
	assert.Empty(t, e.Summary.FailedRanges)
}

func TestList(t *testing.T) {
	ctx := context.Background()
	l := openLedger(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, l.Save(ctx, Entry{Summary: summary("a", "nola1", base), Kind: KindCSV}))
	require.NoError(t, l.Save(ctx, Entry{Summary: summary("b", "blds", base.Add(time.Hour)), Kind: KindFeed, Filter: "applieddate >= '2021-01-01T00:00:00.000'"}))
	require.NoError(t, l.Save(ctx, Entry{Summary: summary("c", "nola1", base.Add(2*time.Hour)), Kind: KindCSV}))

	all, err := l.List(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].Summary.RunID, "newest first")

	feed, err := l.Load(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, "applieddate >= '2021-01-01T00:00:00.000'", feed.Filter)

	nola, err := l.List(ctx, "nola1", 1)
	require.NoError(t, err)
	require.Len(t, nola, 1)
	assert.Equal(t, "c", nola[0].Summary.RunID)
}

func TestSaveRequiresRunID(t *testing.T) {
	l := openLedger(t)
	assert.Error(t, l.Save(context.Background(), Entry{}))
}
