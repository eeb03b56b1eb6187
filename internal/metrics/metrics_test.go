package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsRecord(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.AddRowsRead("blds", 3)
	m.AddRowsWritten("blds", 2)
	m.IncrementDefect("blds", "parse-failure")
	m.IncrementBatch("blds", "written")
	m.IncrementWidening("blds", "fee")
	m.ObserveWriteLatency("blds", 20*time.Millisecond)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.RowsRead.WithLabelValues("blds")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RowsWritten.WithLabelValues("blds")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Defects.WithLabelValues("blds", "parse-failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Widenings.WithLabelValues("blds", "fee")))
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.AddRowsRead("x", 1)
		m.AddRowsWritten("x", 1)
		m.IncrementDefect("x", "overflow")
		m.IncrementBatch("x", "written")
		m.IncrementWidening("x", "c")
		m.ObserveWriteLatency("x", time.Second)
	})
}
