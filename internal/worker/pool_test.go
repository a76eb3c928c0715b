package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestRun_PreservesOrder(t *testing.T) {
	items := []int{1, 2, 3, 4, 5, 6, 7, 8}
	results, err := Run(context.Background(), 3, items, func(_ context.Context, n int) int {
		time.Sleep(time.Duration(8-n) * time.Millisecond)
		return n * n
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, n := range items {
		if results[i] != n*n {
			t.Errorf("results[%d] = %d, want %d", i, results[i], n*n)
		}
	}
}

func TestRun_BoundsConcurrency(t *testing.T) {
	var inFlight, peak int64
	items := make([]int, 20)
	_, err := Run(context.Background(), 4, items, func(_ context.Context, _ int) struct{} {
		cur := atomic.AddInt64(&inFlight, 1)
		for {
			p := atomic.LoadInt64(&peak)
			if cur <= p || atomic.CompareAndSwapInt64(&peak, p, cur) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		atomic.AddInt64(&inFlight, -1)
		return struct{}{}
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if peak > 4 {
		t.Errorf("peak concurrency %d exceeds 4", peak)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int64
	items := make([]int, 100)
	_, err := Run(ctx, 1, items, func(_ context.Context, _ int) int {
		if atomic.AddInt64(&calls, 1) == 3 {
			cancel()
		}
		return 0
	})
	if err == nil {
		t.Fatal("expected context error")
	}
	if n := atomic.LoadInt64(&calls); n >= 100 {
		t.Errorf("expected dispatch to stop early, got %d calls", n)
	}
}

func TestRun_Empty(t *testing.T) {
	results, err := Run(context.Background(), 4, []string{}, func(_ context.Context, s string) string { return s })
	if err != nil || len(results) != 0 {
		t.Errorf("unexpected result: %v, %v", results, err)
	}
}
