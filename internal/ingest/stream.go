package ingest

import (
	"context"
	"io"

	"github.com/atlasgrowth23/lapermits/internal/normalize"
	"github.com/atlasgrowth23/lapermits/internal/source"
)

// RowField is the pseudo-field malformed source rows are reported under
const RowField = "_row"

// RecordStream yields normalized records in source order until io.EOF
type RecordStream interface {
	Next(ctx context.Context) (normalize.Record, error)
}

// DefectSink receives every defect the stream finds
type DefectSink func(normalize.Defect)

// Stream normalizes raw source rows. Malformed rows are reported and skipped;
// field defects are reported and the record is still yielded.
type Stream struct {
	rows  source.RowReader
	rules normalize.RuleSet
	sink  DefectSink
	end   int
	read  int
}

// NewStream wraps a row reader. A nil sink discards defects.
func NewStream(rows source.RowReader, rules normalize.RuleSet, sink DefectSink) *Stream {
	return &Stream{rows: rows, rules: rules, sink: sink, end: -1}
}

// Until bounds the stream to rows before the given source offset
func (s *Stream) Until(end int) *Stream {
	s.end = end
	return s
}

// RowsRead counts source rows consumed, malformed ones included
func (s *Stream) RowsRead() int { return s.read }

func (s *Stream) Next(ctx context.Context) (normalize.Record, error) {
	for {
		row, err := s.rows.Next(ctx)
		if err != nil {
			return normalize.Record{}, err
		}
		if s.end >= 0 && row.Offset >= s.end {
			return normalize.Record{}, io.EOF
		}
		s.read++

		if row.Err != nil {
			s.report(normalize.Defect{
				Ordinal: row.Offset,
				Field:   RowField,
				Reason:  normalize.ReasonUnexpectedFormat,
				Detail:  row.Err.Error(),
			})
			continue
		}

		rec, defects := normalize.Normalize(row.Values, row.Offset, s.rules)
		for _, d := range defects {
			s.report(d)
		}
		return rec, nil
	}
}

func (s *Stream) report(d normalize.Defect) {
	if s.sink != nil {
		s.sink(d)
	}
}
