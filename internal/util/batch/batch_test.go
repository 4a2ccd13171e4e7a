package batch

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vantage-deploy/vantage/internal/util/retry"
)

func TestRun_OrderedResults(t *testing.T) {
	t.Parallel()
	items := []int{5, 3, 8, 1, 9, 2, 7}

	results := Run(context.Background(), items, func(_ context.Context, n int) (string, error) {
		// Vary completion order.
		time.Sleep(time.Duration(n) * time.Millisecond)
		return strconv.Itoa(n * 10), nil
	}, Options{BatchSize: 3, Concurrency: 3})

	if len(results) != len(items) {
		t.Fatalf("Expected %d results, got %d", len(items), len(results))
	}
	for i, r := range results {
		if r.Item != items[i] {
			t.Errorf("Result %d: expected item %d, got %d", i, items[i], r.Item)
		}
		if want := strconv.Itoa(items[i] * 10); r.Out != want {
			t.Errorf("Result %d: expected %s, got %s", i, want, r.Out)
		}
	}
}

func TestRun_ConcurrencyBound(t *testing.T) {
	t.Parallel()
	var current, peak int32
	items := make([]int, 20)

	Run(context.Background(), items, func(_ context.Context, _ int) (struct{}, error) {
		n := atomic.AddInt32(&current, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&current, -1)
		return struct{}{}, nil
	}, Options{BatchSize: 20, Concurrency: 4})

	if p := atomic.LoadInt32(&peak); p > 4 {
		t.Errorf("Concurrency bound exceeded: peak %d > 4", p)
	}
}

func TestRun_FailureDoesNotAbortOthers(t *testing.T) {
	t.Parallel()
	items := []int{1, 2, 3, 4}
	bad := errors.New("device rejected configuration")

	results := Run(context.Background(), items, func(_ context.Context, n int) (int, error) {
		if n == 2 {
			return 0, bad
		}
		return n, nil
	}, Options{BatchSize: 2, Concurrency: 2})

	failures := 0
	for _, r := range results {
		if r.Err != nil {
			failures++
			if !errors.Is(r.Err, bad) {
				t.Errorf("Unexpected error: %v", r.Err)
			}
		}
	}
	if failures != 1 {
		t.Errorf("Expected exactly 1 failure, got %d", failures)
	}
}

func TestRun_RetriesPerItem(t *testing.T) {
	t.Parallel()
	var mu sync.Mutex
	attempts := map[int]int{}

	items := []int{1, 2}
	results := Run(context.Background(), items, func(_ context.Context, n int) (int, error) {
		mu.Lock()
		attempts[n]++
		a := attempts[n]
		mu.Unlock()
		if n == 1 && a < 3 {
			return 0, errors.New("unavailable")
		}
		return n, nil
	}, Options{
		BatchSize:   2,
		Concurrency: 2,
		Retry: []retry.Option{
			retry.WithMaxAttempts(3),
			retry.WithInitialDelay(time.Millisecond),
		},
	})

	for _, r := range results {
		if r.Err != nil {
			t.Errorf("Item %d: expected eventual success, got %v", r.Item, r.Err)
		}
	}
	if attempts[1] != 3 {
		t.Errorf("Expected 3 attempts for item 1, got %d", attempts[1])
	}
	if attempts[2] != 1 {
		t.Errorf("Expected 1 attempt for item 2, got %d", attempts[2])
	}
}

func TestRun_ProgressPerCompletion(t *testing.T) {
	t.Parallel()
	items := make([]int, 7)
	var calls []int

	Run(context.Background(), items, func(_ context.Context, _ int) (struct{}, error) {
		return struct{}{}, nil
	}, Options{
		BatchSize:   3,
		Concurrency: 2,
		OnProgress: func(done, total int) {
			if total != len(items) {
				t.Errorf("Expected total %d, got %d", len(items), total)
			}
			calls = append(calls, done)
		},
	})

	if len(calls) != len(items) {
		t.Fatalf("Expected %d progress calls, got %d", len(items), len(calls))
	}
	for i, d := range calls {
		if d != i+1 {
			t.Errorf("Progress call %d reported done=%d", i, d)
		}
	}
}
