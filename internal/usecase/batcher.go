package usecase

import (
	"context"
	"errors"
	"io"
)

const (
	DefaultBatchSize = 15
	MinBatchSize     = 10
	MaxBatchSize     = 20
)

// ClampBatchSize keeps a requested batch size within [MinBatchSize, MaxBatchSize]
func ClampBatchSize(requested int) int {
	return max(MinBatchSize, min(MaxBatchSize, requested))
}

// Batcher groups an iterator into ordered chunks of at most size items.
// The final partial chunk is yielded before io.EOF.
type Batcher[T any] struct {
	items Iterator[T]
	size  int
	done  bool
}

func NewBatcher[T any](items Iterator[T], size int) *Batcher[T] {
	if size <= 0 {
		size = DefaultBatchSize
	}
	return &Batcher[T]{items: items, size: size}
}

// Next returns the next batch. An error from the underlying iterator is
// returned as-is; items already collected for the batch are discarded.
func (b *Batcher[T]) Next(ctx context.Context) ([]T, error) {
	if b.done {
		return nil, io.EOF
	}

	batch := make([]T, 0, b.size)
	for len(batch) < b.size {
		item, err := b.items.Next(ctx)
		if errors.Is(err, io.EOF) {
			b.done = true
			break
		}
		if err != nil {
			b.done = true
			return nil, err
		}
		batch = append(batch, item)
	}

	if len(batch) == 0 {
		return nil, io.EOF
	}
	return batch, nil
}

// SliceIterator adapts a slice to Iterator
type SliceIterator[T any] struct {
	items []T
}

func NewSliceIterator[T any](items []T) *SliceIterator[T] {
	return &SliceIterator[T]{items: items}
}

func (s *SliceIterator[T]) Next(ctx context.Context) (T, error) {
	var zero T
	if len(s.items) == 0 {
		return zero, io.EOF
	}
	item := s.items[0]
	s.items = s.items[1:]
	return item, nil
}
