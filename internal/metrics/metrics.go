package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for ingestion runs.
type Metrics struct {
	// Source rows read, by dataset
	RowsRead *prometheus.CounterVec

	// Rows committed to the store, by dataset
	RowsWritten *prometheus.CounterVec

	// Field defects by dataset and reason
	Defects *prometheus.CounterVec

	// Batch outcomes: written, failed reasons, recovered
	Batches *prometheus.CounterVec

	// Column widenings performed by overflow recovery
	Widenings *prometheus.CounterVec

	// Batch write latency
	WriteLatency *prometheus.HistogramVec
}

// New registers the ingestion metrics with reg. Pass a fresh registry in
// tests to avoid duplicate registration.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RowsRead: f.NewCounterVec(prometheus.CounterOpts{
			Name: "permits_ingest_rows_read_total",
			Help: "Source rows read by dataset",
		}, []string{"dataset"}),

		RowsWritten: f.NewCounterVec(prometheus.CounterOpts{
			Name: "permits_ingest_rows_written_total",
			Help: "Rows committed to the store by dataset",
		}, []string{"dataset"}),

		Defects: f.NewCounterVec(prometheus.CounterOpts{
			Name: "permits_ingest_defects_total",
			Help: "Field defects by dataset and reason",
		}, []string{"dataset", "reason"}),

		Batches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "permits_ingest_batches_total",
			Help: "Batch write outcomes by dataset",
		}, []string{"dataset", "outcome"}), // outcome: "written", a failure reason, "recovered"

		Widenings: f.NewCounterVec(prometheus.CounterOpts{
			Name: "permits_ingest_column_widenings_total",
			Help: "Numeric columns widened during overflow recovery",
		}, []string{"dataset", "column"}),

		WriteLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "permits_ingest_batch_write_duration_seconds",
			Help:    "Duration of one batch write transaction",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"dataset"}),
	}
}

// AddRowsRead counts source rows
func (m *Metrics) AddRowsRead(dataset string, n int) {
	if m != nil {
		m.RowsRead.WithLabelValues(dataset).Add(float64(n))
	}
}

// AddRowsWritten counts committed rows
func (m *Metrics) AddRowsWritten(dataset string, n int64) {
	if m != nil {
		m.RowsWritten.WithLabelValues(dataset).Add(float64(n))
	}
}

// IncrementDefect records one field defect
func (m *Metrics) IncrementDefect(dataset, reason string) {
	if m != nil {
		m.Defects.WithLabelValues(dataset, reason).Inc()
	}
}

// IncrementBatch records a batch outcome
func (m *Metrics) IncrementBatch(dataset, outcome string) {
	if m != nil {
		m.Batches.WithLabelValues(dataset, outcome).Inc()
	}
}

// IncrementWidening records a column widening
func (m *Metrics) IncrementWidening(dataset, column string) {
	if m != nil {
		m.Widenings.WithLabelValues(dataset, column).Inc()
	}
}

// ObserveWriteLatency records the duration of one batch write
func (m *Metrics) ObserveWriteLatency(dataset string, d time.Duration) {
	if m != nil {
		m.WriteLatency.WithLabelValues(dataset).Observe(d.Seconds())
	}
}
