package usecase

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catalogsync/backend/internal/domain"
)

// scriptedSource returns pre-built pages in call order
type scriptedSource struct {
	pages []*domain.SourcePage
	errs  map[int]error
	skips []int
}

func (s *scriptedSource) FetchPage(ctx context.Context, skip, limit int) (*domain.SourcePage, error) {
	call := len(s.skips)
	s.skips = append(s.skips, skip)
	if err := s.errs[call]; err != nil {
		return nil, err
	}
	if call >= len(s.pages) {
		return &domain.SourcePage{}, nil
	}
	return s.pages[call], nil
}

func (s *scriptedSource) FetchTotal(ctx context.Context) (int, error) { return 0, nil }

func (s *scriptedSource) FetchCategories(ctx context.Context) ([]domain.CategoryRecord, error) {
	return nil, nil
}

func records(from, to int) []domain.SourceRecord {
	out := make([]domain.SourceRecord, 0, to-from+1)
	for i := from; i <= to; i++ {
		out = append(out, record(i))
	}
	return out
}

func intPtr(v int) *int { return &v }

func drain(t *testing.T, it *SourceIterator) []string {
	t.Helper()
	var ids []string
	for {
		r, err := it.Next(context.Background())
		if errors.Is(err, io.EOF) {
			return ids
		}
		require.NoError(t, err)
		ids = append(ids, r.ExternalID.String())
	}
}

func TestSourceIterator_WalksToTotal(t *testing.T) {
	source := &scriptedSource{pages: []*domain.SourcePage{
		{Products: records(1, 3), Total: intPtr(7), Limit: intPtr(3)},
		{Products: records(4, 6), Total: intPtr(7), Limit: intPtr(3)},
		{Products: records(7, 7), Total: intPtr(7), Limit: intPtr(3)},
	}}

	ids := drain(t, NewSourceIterator(source, 3, 0))

	assert.Equal(t, []string{"1", "2", "3", "4", "5", "6", "7"}, ids)
	assert.Equal(t, []int{0, 3, 6}, source.skips)
}

func TestSourceIterator_EmptyPageWinsOverTotal(t *testing.T) {
	source := &scriptedSource{pages: []*domain.SourcePage{
		{Products: records(1, 2), Total: intPtr(100), Limit: intPtr(2)},
		{Products: nil, Total: intPtr(100)},
	}}

	ids := drain(t, NewSourceIterator(source, 2, 0))

	assert.Equal(t, []string{"1", "2"}, ids)
	assert.Equal(t, []int{0, 2}, source.skips)
}

func TestSourceIterator_PageOfSkippedRecordsContinues(t *testing.T) {
	source := &scriptedSource{pages: []*domain.SourcePage{
		{Products: records(1, 2), Total: intPtr(6), Limit: intPtr(2)},
		{Products: nil, Skipped: 2, Total: intPtr(6), Limit: intPtr(2)},
		{Products: records(6, 6), Skipped: 1, Total: intPtr(6), Limit: intPtr(2)},
	}}

	ids := drain(t, NewSourceIterator(source, 2, 0))

	assert.Equal(t, []string{"1", "2", "6"}, ids)
	assert.Equal(t, []int{0, 2, 4}, source.skips)
}

func TestSourceIterator_MissingTotalCountsSkippedRecords(t *testing.T) {
	source := &scriptedSource{pages: []*domain.SourcePage{
		{Products: records(1, 2), Skipped: 1, Limit: intPtr(3)},
		{Products: records(4, 5)},
	}}

	ids := drain(t, NewSourceIterator(source, 3, 0))

	assert.Equal(t, []string{"1", "2"}, ids)
	assert.Equal(t, []int{0}, source.skips)
}

func TestSourceIterator_MissingTotalUsesPageLength(t *testing.T) {
	source := &scriptedSource{pages: []*domain.SourcePage{
		{Products: records(1, 4)},
		{Products: records(5, 8)},
	}}

	ids := drain(t, NewSourceIterator(source, 30, 0))

	assert.Equal(t, []string{"1", "2", "3", "4"}, ids)
	assert.Equal(t, []int{0}, source.skips)
}

func TestSourceIterator_AdvancesByReportedLimit(t *testing.T) {
	source := &scriptedSource{pages: []*domain.SourcePage{
		{Products: records(1, 5), Total: intPtr(10), Limit: intPtr(5)},
		{Products: records(6, 10), Total: intPtr(10), Limit: intPtr(5)},
	}}

	ids := drain(t, NewSourceIterator(source, 30, 0))

	assert.Len(t, ids, 10)
	assert.Equal(t, []int{0, 5}, source.skips)
}

func TestSourceIterator_MissingLimitUsesPageLimit(t *testing.T) {
	source := &scriptedSource{pages: []*domain.SourcePage{
		{Products: records(1, 2), Total: intPtr(4)},
		{Products: records(3, 4), Total: intPtr(4)},
	}}

	ids := drain(t, NewSourceIterator(source, 2, 0))

	assert.Len(t, ids, 4)
	assert.Equal(t, []int{0, 2}, source.skips)
}

func TestSourceIterator_PageDelayBetweenPages(t *testing.T) {
	source := &scriptedSource{pages: []*domain.SourcePage{
		{Products: records(1, 1), Total: intPtr(3), Limit: intPtr(1)},
		{Products: records(2, 2), Total: intPtr(3), Limit: intPtr(1)},
		{Products: records(3, 3), Total: intPtr(3), Limit: intPtr(1)},
	}}
	it := NewSourceIterator(source, 1, 250*time.Millisecond)
	var sleeps []time.Duration
	it.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}

	drain(t, it)

	assert.Equal(t, []time.Duration{250 * time.Millisecond, 250 * time.Millisecond}, sleeps)
	assert.Equal(t, 3, it.Pages())
}

func TestSourceIterator_FetchErrorPropagates(t *testing.T) {
	boom := domain.NewFetchError(500, "fetch failed 500: boom", false)
	source := &scriptedSource{
		pages: []*domain.SourcePage{{Products: records(1, 2), Total: intPtr(4), Limit: intPtr(2)}},
		errs:  map[int]error{1: boom},
	}
	it := NewSourceIterator(source, 2, 0)
	ctx := context.Background()

	_, err := it.Next(ctx)
	require.NoError(t, err)
	_, err = it.Next(ctx)
	require.NoError(t, err)

	_, err = it.Next(ctx)
	assert.ErrorIs(t, err, domain.ErrSourceAPIFailure)

	// the iterator does not restart after a failure
	_, err = it.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)
}

func TestSourceIterator_StaysExhausted(t *testing.T) {
	source := &scriptedSource{pages: []*domain.SourcePage{
		{Products: records(1, 1), Total: intPtr(1)},
	}}
	it := NewSourceIterator(source, 30, 0)

	drain(t, it)
	_, err := it.Next(context.Background())

	assert.ErrorIs(t, err, io.EOF)
	assert.Len(t, source.skips, 1)
}
