package batch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessPreservesOrder(t *testing.T) {
	t.Parallel()

	items := []int{5, 3, 8, 1, 9, 2, 7, 4}
	results := Process(context.Background(), items, func(_ context.Context, n int) int {
		// Stagger completions so later items can finish first.
		time.Sleep(time.Duration(n) * time.Millisecond)
		return n * 2
	}, 4)

	require.Len(t, results, len(items))
	for i, n := range items {
		assert.Equal(t, n*2, results[i])
	}
}

func TestProcessRespectsConcurrencyCap(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	inFlight, peak := 0, 0

	items := make([]int, 10)
	Process(context.Background(), items, func(_ context.Context, _ int) struct{} {
		mu.Lock()
		inFlight++
		if inFlight > peak {
			peak = inFlight
		}
		mu.Unlock()

		time.Sleep(20 * time.Millisecond)

		mu.Lock()
		inFlight--
		mu.Unlock()
		return struct{}{}
	}, 3)

	assert.LessOrEqual(t, peak, 3)
	assert.Greater(t, peak, 1, "expected some parallelism")
}

func TestProcessEmptyInput(t *testing.T) {
	t.Parallel()

	results := Process(context.Background(), nil, func(_ context.Context, _ int) int {
		t.Fatal("worker must not run for empty input")
		return 0
	}, 5)
	assert.Empty(t, results)
}

func TestRetryOn(t *testing.T) {
	t.Parallel()

	errBusy := errors.New("busy")
	isBusy := func(err error) bool { return errors.Is(err, errBusy) }

	t.Run("succeeds within the retry budget", func(t *testing.T) {
		t.Parallel()

		calls := 0
		worker := RetryOn(func(_ context.Context, s string) (string, error) {
			calls++
			if calls < 3 {
				return "", errBusy
			}
			return s + "!", nil
		}, isBusy, 3, time.Millisecond)

		assert.Equal(t, "hi!", worker(context.Background(), "hi"))
		assert.Equal(t, 3, calls)
	})

	t.Run("gives up after the budget", func(t *testing.T) {
		t.Parallel()

		calls := 0
		worker := RetryOn(func(_ context.Context, _ string) (*string, error) {
			calls++
			return nil, errBusy
		}, isBusy, 3, time.Millisecond)

		assert.Nil(t, worker(context.Background(), "hi"))
		assert.Equal(t, 4, calls, "initial attempt plus three retries")
	})

	t.Run("non-retryable error fails immediately", func(t *testing.T) {
		t.Parallel()

		calls := 0
		worker := RetryOn(func(_ context.Context, _ string) (*string, error) {
			calls++
			return nil, errors.New("broken")
		}, isBusy, 3, time.Millisecond)

		assert.Nil(t, worker(context.Background(), "hi"))
		assert.Equal(t, 1, calls)
	})

	t.Run("cancelled context aborts the wait", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		calls := 0
		worker := RetryOn(func(_ context.Context, _ string) (*string, error) {
			calls++
			return nil, errBusy
		}, isBusy, 3, time.Minute)

		start := time.Now()
		assert.Nil(t, worker(ctx, "hi"))
		assert.Equal(t, 1, calls)
		assert.Less(t, time.Since(start), time.Second)
	})
}
