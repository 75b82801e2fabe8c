package usecase

import (
	"context"
	"io"
	"time"

	"github.com/catalogsync/backend/internal/domain"
	"github.com/catalogsync/backend/internal/infrastructure/retry"
)

// DefaultPageLimit is the number of records requested per source page
const DefaultPageLimit = 30

// Iterator is a pull sequence. Next returns io.EOF once exhausted.
type Iterator[T any] interface {
	Next(ctx context.Context) (T, error)
}

// SourceIterator walks the skip/limit source API lazily, one page at a
// time. It is finite and cannot be rewound; build a new one per run.
type SourceIterator struct {
	source    domain.CatalogSource
	pageLimit int
	pageDelay time.Duration
	sleep     func(ctx context.Context, d time.Duration) error

	skip    int
	total   int
	started bool
	done    bool
	pending []domain.SourceRecord
	pages   int
}

// NewSourceIterator creates an iterator starting at skip=0
func NewSourceIterator(source domain.CatalogSource, pageLimit int, pageDelay time.Duration) *SourceIterator {
	if pageLimit <= 0 {
		pageLimit = DefaultPageLimit
	}
	return &SourceIterator{
		source:    source,
		pageLimit: pageLimit,
		pageDelay: pageDelay,
		sleep:     retry.SleepContext,
	}
}

// Next returns the next source record, fetching a new page when the
// current one is drained
func (it *SourceIterator) Next(ctx context.Context) (domain.SourceRecord, error) {
	for len(it.pending) == 0 {
		if err := it.fetchPage(ctx); err != nil {
			return domain.SourceRecord{}, err
		}
	}

	record := it.pending[0]
	it.pending = it.pending[1:]
	return record, nil
}

// Pages returns how many pages have been fetched so far
func (it *SourceIterator) Pages() int {
	return it.pages
}

func (it *SourceIterator) fetchPage(ctx context.Context) error {
	if it.done || (it.started && it.skip >= it.total) {
		it.done = true
		return io.EOF
	}

	if it.pages > 0 && it.pageDelay > 0 {
		if err := it.sleep(ctx, it.pageDelay); err != nil {
			return err
		}
	}

	page, err := it.source.FetchPage(ctx, it.skip, it.pageLimit)
	if err != nil {
		it.done = true
		return err
	}
	it.pages++
	it.started = true

	// an empty page ends the walk even when total claims more
	if len(page.Products) == 0 && page.Skipped == 0 {
		it.done = true
		return io.EOF
	}

	it.total = len(page.Products) + page.Skipped
	if page.Total != nil {
		it.total = *page.Total
	}

	step := it.pageLimit
	if page.Limit != nil && *page.Limit > 0 {
		step = *page.Limit
	}
	it.skip += step
	it.pending = page.Products
	return nil
}
