package ingest

import (
	"context"
	"errors"
	"io"

	"github.com/atlasgrowth23/lapermits/internal/normalize"
)

// DefaultBatchSize matches the page size of the source feeds
const DefaultBatchSize = 1000

// Batch is a contiguous run of records in source order
type Batch struct {
	Index   int
	Start   int
	Records []normalize.Record
}

// End is the source offset just past the last record
func (b Batch) End() int {
	if len(b.Records) == 0 {
		return b.Start
	}
	return b.Records[len(b.Records)-1].Ordinal + 1
}

// Len is the number of records in the batch
func (b Batch) Len() int { return len(b.Records) }

// Batcher groups a record stream into batches of at most size records
type Batcher struct {
	stream RecordStream
	size   int
	index  int
	done   bool
}

// NewBatcher starts numbering batches at startIndex. To resume mid-source,
// hand it a stream opened at the resume offset.
func NewBatcher(stream RecordStream, size, startIndex int) *Batcher {
	if size <= 0 {
		size = DefaultBatchSize
	}
	return &Batcher{stream: stream, size: size, index: startIndex}
}

// Next returns the next batch, or io.EOF once the stream is exhausted
func (b *Batcher) Next(ctx context.Context) (Batch, error) {
	if b.done {
		return Batch{}, io.EOF
	}

	batch := Batch{Index: b.index, Records: make([]normalize.Record, 0, b.size)}
	for len(batch.Records) < b.size {
		rec, err := b.stream.Next(ctx)
		if errors.Is(err, io.EOF) {
			b.done = true
			break
		}
		if err != nil {
			return Batch{}, err
		}
		batch.Records = append(batch.Records, rec)
	}

	if len(batch.Records) == 0 {
		return Batch{}, io.EOF
	}
	batch.Start = batch.Records[0].Ordinal
	b.index++
	return batch, nil
}
