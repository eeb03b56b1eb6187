package ingest

import (
	"maps"
	"slices"
	"time"

	"github.com/atlasgrowth23/lapermits/internal/db"
	"github.com/atlasgrowth23/lapermits/internal/normalize"
)

// Range is a half-open span of source offsets
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// FailedRange is a batch that could not be written
type FailedRange struct {
	BatchIndex int              `json:"batch_index"`
	Start      int              `json:"start"`
	End        int              `json:"end"`
	Rows       int              `json:"rows"`
	Reason     db.FailureReason `json:"reason"`
	Error      string           `json:"error"`
}

// Range returns the source span of the failed batch
func (f FailedRange) Range() Range { return Range{Start: f.Start, End: f.End} }

// RunSummary is the final report of one run. It is built once the run is
// finalized and the controller keeps no reference to it.
type RunSummary struct {
	RunID          string                   `json:"run_id"`
	Dataset        string                   `json:"dataset"`
	Source         string                   `json:"source"`
	Mode           string                   `json:"mode"`
	StartedAt      time.Time                `json:"started_at"`
	FinishedAt     time.Time                `json:"finished_at"`
	RowsRead       int                      `json:"rows_read"`
	RowsWritten    int64                    `json:"rows_written"`
	RowsSkipped    int64                    `json:"rows_skipped"`
	BatchesWritten int                      `json:"batches_written"`
	BatchesFailed  int                      `json:"batches_failed"`
	Recovered      int                      `json:"batches_recovered"`
	DefectCounts   map[normalize.Reason]int `json:"defect_counts"`
	Defects        []normalize.Defect       `json:"defects"`
	DefectsDropped int                      `json:"defects_dropped"`
	FailedRanges   []FailedRange            `json:"failed_ranges"`
	Widenings      []Widening               `json:"widenings"`
	Cancelled      bool                     `json:"cancelled"`
	Aborted        string                   `json:"aborted,omitempty"`
}

// Duration is the wall time of the run
func (s RunSummary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// TotalDefects is the exact number of defects, retained or not
func (s RunSummary) TotalDefects() int {
	n := 0
	for _, c := range s.DefectCounts {
		n += c
	}
	return n
}

// Complete reports whether every batch was written and the run was not cut short
func (s RunSummary) Complete() bool {
	return len(s.FailedRanges) == 0 && !s.Cancelled && s.Aborted == ""
}

// clone deep-copies the slices and map so the caller owns its copy
func (s RunSummary) clone() RunSummary {
	s.DefectCounts = maps.Clone(s.DefectCounts)
	if s.DefectCounts == nil {
		s.DefectCounts = map[normalize.Reason]int{}
	}
	s.Defects = slices.Clone(s.Defects)
	s.FailedRanges = slices.Clone(s.FailedRanges)
	s.Widenings = slices.Clone(s.Widenings)
	return s
}
