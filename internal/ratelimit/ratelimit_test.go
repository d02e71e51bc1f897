package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newTestStore(now *time.Time) *MemoryStore {
	s := NewMemoryStore()
	s.now = func() time.Time { return *now }
	return s
}

func TestAllowExactLimit(t *testing.T) {
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	limiter := NewLimiter(newTestStore(&now), map[Class]Rule{
		ClassButton: {Limit: 30, Window: time.Minute},
	})

	ctx := context.Background()
	for i := 0; i < 30; i++ {
		ok, err := limiter.Allow(ctx, 42, ClassButton)
		if err != nil {
			t.Fatalf("Allow error: %v", err)
		}
		if !ok {
			t.Fatalf("call %d rejected, want admitted", i+1)
		}
	}

	ok, err := limiter.Allow(ctx, 42, ClassButton)
	if err != nil {
		t.Fatalf("Allow error: %v", err)
	}
	if ok {
		t.Fatalf("call 31 admitted, want rejected")
	}
}

func TestWindowResets(t *testing.T) {
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	limiter := NewLimiter(newTestStore(&now), map[Class]Rule{
		ClassSearch: {Limit: 2, Window: time.Minute},
	})

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if ok, _ := limiter.Allow(ctx, 7, ClassSearch); !ok {
			t.Fatalf("call %d rejected inside the window", i+1)
		}
	}
	if ok, _ := limiter.Allow(ctx, 7, ClassSearch); ok {
		t.Fatalf("over-limit call admitted")
	}

	// Окно истекло: счётчик сбрасывается, а не продолжает расти.
	now = now.Add(61 * time.Second)
	for i := 0; i < 2; i++ {
		if ok, _ := limiter.Allow(ctx, 7, ClassSearch); !ok {
			t.Fatalf("call %d rejected after window reset", i+1)
		}
	}
}

func TestClassesIndependent(t *testing.T) {
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	limiter := NewLimiter(newTestStore(&now), map[Class]Rule{
		ClassGeneral: {Limit: 1, Window: time.Minute},
		ClassButton:  {Limit: 1, Window: time.Minute},
	})

	ctx := context.Background()
	if ok, _ := limiter.Allow(ctx, 1, ClassGeneral); !ok {
		t.Fatalf("first general call rejected")
	}
	if ok, _ := limiter.Allow(ctx, 1, ClassGeneral); ok {
		t.Fatalf("second general call admitted")
	}
	// Другой класс того же актора имеет своё окно.
	if ok, _ := limiter.Allow(ctx, 1, ClassButton); !ok {
		t.Fatalf("button call rejected, windows are not independent")
	}
}

func TestActorsIndependent(t *testing.T) {
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	limiter := NewLimiter(newTestStore(&now), map[Class]Rule{
		ClassGeneral: {Limit: 1, Window: time.Minute},
	})

	ctx := context.Background()
	limiter.Allow(ctx, 1, ClassGeneral)
	if ok, _ := limiter.Allow(ctx, 2, ClassGeneral); !ok {
		t.Fatalf("actor 2 rejected because of actor 1")
	}
}

func TestIncrConcurrent(t *testing.T) {
	store := NewMemoryStore()
	limiter := NewLimiter(store, map[Class]Rule{
		ClassButton: {Limit: 50, Window: time.Minute},
	})

	ctx := context.Background()
	var admitted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := limiter.Allow(ctx, 99, ClassButton)
			if err != nil {
				t.Errorf("Allow error: %v", err)
				return
			}
			if ok {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := admitted.Load(); got != 50 {
		t.Fatalf("admitted = %d of 100 concurrent calls, want exactly 50", got)
	}
}

func TestCleanup(t *testing.T) {
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	store := newTestStore(&now)

	ctx := context.Background()
	if _, err := store.Incr(ctx, "general:1", time.Minute); err != nil {
		t.Fatalf("Incr error: %v", err)
	}

	now = now.Add(time.Hour)
	store.Cleanup(10 * time.Minute)

	count, err := store.Incr(ctx, "general:1", time.Minute)
	if err != nil {
		t.Fatalf("Incr error: %v", err)
	}
	if count != 1 {
		t.Fatalf("count after cleanup = %d, want fresh window", count)
	}
}
