package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlasgrowth23/lapermits/internal/config"
	"github.com/atlasgrowth23/lapermits/internal/dataset"
	"github.com/atlasgrowth23/lapermits/internal/db"
	"github.com/atlasgrowth23/lapermits/internal/ingest"
	"github.com/atlasgrowth23/lapermits/internal/logging"
	"github.com/atlasgrowth23/lapermits/internal/metrics"
	"github.com/atlasgrowth23/lapermits/internal/runlog"
)

func TestParseDelimiter(t *testing.T) {
	tests := []struct {
		in      string
		want    rune
		wantErr bool
	}{
		{"", ',', false},
		{",", ',', false},
		{"|", '|', false},
		{"tab", '\t', false},
		{`\t`, '\t', false},
		{";;", 0, true},
	}
	for _, tt := range tests {
		got, err := parseDelimiter(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestParseAssignment(t *testing.T) {
	name, path, err := parseAssignment("nola1=s3://bucket/permits=2019.csv")
	require.NoError(t, err)
	assert.Equal(t, "nola1", name)
	assert.Equal(t, "s3://bucket/permits=2019.csv", path)

	for _, bad := range []string{"nola1", "=x.csv", "nola1="} {
		_, _, err := parseAssignment(bad)
		assert.Error(t, err, bad)
	}
}

func testApp(t *testing.T) *app {
	t.Helper()
	reg := prometheus.NewRegistry()
	cfg := config.FromEnv()
	cfg.RunLog.Path = filepath.Join(t.TempDir(), "runs.db")
	return &app{cfg: cfg, logger: logging.Discard(), registry: reg, metrics: metrics.New(reg)}
}

func TestExecuteRecordsRun(t *testing.T) {
	ctx := context.Background()
	a := testApp(t)
	schema, err := dataset.Lookup("br")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "br.csv")
	require.NoError(t, os.WriteFile(path, []byte("permitnumber,permittype,projectvalue\nBR-1,RES,100.50\nBR-2,COM,abc\n"), 0o600))

	src, err := a.csvSource(ctx, path, ",")
	require.NoError(t, err)
	store := db.NewMemoryStore()

	summary, err := a.execute(ctx, store, schema, src, runFlags{batchSize: 10}.options(a), runlog.Entry{Kind: runlog.KindCSV, Delimiter: ","})
	require.NoError(t, err)
	assert.Equal(t, int64(2), summary.RowsWritten)
	assert.Equal(t, 1, summary.TotalDefects(), "unparseable project value")

	n, err := store.Count(ctx, schema.Table)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	ledger, err := runlog.Open(a.cfg.RunLog.Path)
	require.NoError(t, err)
	defer ledger.Close()
	entry, err := ledger.Load(ctx, summary.RunID)
	require.NoError(t, err)
	assert.Equal(t, path, entry.Summary.Source)
	assert.Equal(t, runlog.KindCSV, entry.Kind)
}

func TestRunStatus(t *testing.T) {
	assert.Equal(t, "complete", runStatus(ingest.RunSummary{}))
	assert.Equal(t, "incomplete", runStatus(ingest.RunSummary{FailedRanges: []ingest.FailedRange{{}}}))
	assert.Equal(t, "cancelled", runStatus(ingest.RunSummary{Cancelled: true}))
	assert.Equal(t, "aborted", runStatus(ingest.RunSummary{Aborted: "eof"}))
}
