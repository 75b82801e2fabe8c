package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noSleep(waits *[]time.Duration) func(context.Context, time.Duration) error {
	return func(ctx context.Context, d time.Duration) error {
		*waits = append(*waits, d)
		return nil
	}
}

func TestExponentialBackoff(t *testing.T) {
	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{1, 500 * time.Millisecond},
		{2, 1000 * time.Millisecond},
		{3, 2000 * time.Millisecond},
		{4, 4000 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run("", func(t *testing.T) {
			assert.Equal(t, tt.expected, ExponentialBackoff(tt.attempt, DefaultBaseDelay))
		})
	}
}

func TestExponentialBackoff_StrictlyIncreasing(t *testing.T) {
	prev := time.Duration(0)
	for attempt := 1; attempt <= 8; attempt++ {
		wait := ExponentialBackoff(attempt, DefaultBaseDelay)
		assert.Greater(t, wait, prev, "attempt %d", attempt)
		prev = wait
	}
}

func TestPolicyWait_JitterBounds(t *testing.T) {
	p := NewPolicy(2)
	for i := 0; i < 200; i++ {
		wait := p.Wait(2)
		assert.GreaterOrEqual(t, wait, 1000*time.Millisecond)
		assert.Less(t, wait, 1500*time.Millisecond)
	}
}

func TestPolicyDo_SucceedsAfterRetries(t *testing.T) {
	var waits []time.Duration
	p := NewPolicy(2)
	p.Sleep = noSleep(&waits)
	p.Jitter = func(time.Duration) time.Duration { return 0 }

	calls := 0
	var retried []int
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("boom")
		}
		return nil
	}, func(attempt int, wait time.Duration, err error) {
		retried = append(retried, attempt)
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)
	assert.Equal(t, []time.Duration{500 * time.Millisecond, 1000 * time.Millisecond}, waits)
}

func TestPolicyDo_ExhaustsBudget(t *testing.T) {
	var waits []time.Duration
	p := NewPolicy(2)
	p.Sleep = noSleep(&waits)

	calls := 0
	last := errors.New("still failing")
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return last
	}, nil)

	assert.ErrorIs(t, err, last)
	assert.Equal(t, 3, calls)
	assert.Len(t, waits, 2)
}

func TestPolicyDo_PermanentStopsImmediately(t *testing.T) {
	var waits []time.Duration
	p := NewPolicy(5)
	p.Sleep = noSleep(&waits)

	fatal := errors.New("bad request")
	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return Permanent(fatal)
	}, nil)

	assert.Equal(t, fatal, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, waits)
}

func TestPolicyDo_ZeroRetries(t *testing.T) {
	p := NewPolicy(0)
	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errors.New("fail")
	}, nil)

	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestPolicyDo_StopsWhenContextCancelled(t *testing.T) {
	p := NewPolicy(3)
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := p.Do(ctx, func(ctx context.Context) error {
		calls++
		cancel()
		return errors.New("fail")
	}, nil)

	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestSleepContext(t *testing.T) {
	t.Run("returns after duration", func(t *testing.T) {
		assert.NoError(t, SleepContext(context.Background(), time.Millisecond))
	})

	t.Run("returns context error when cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.ErrorIs(t, SleepContext(ctx, time.Hour), context.Canceled)
	})
}

func TestPermanent_Nil(t *testing.T) {
	assert.NoError(t, Permanent(nil))
}
