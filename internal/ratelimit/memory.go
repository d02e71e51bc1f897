package ratelimit

import (
	"context"
	"hash/fnv"
	"sync"
	"time"
)

const shardCount = 64

type window struct {
	count int64
	start time.Time
}

type shard struct {
	mu      sync.Mutex
	windows map[string]*window
}

// MemoryStore хранит окна в памяти процесса. Ключи распределены по шардам,
// чтобы акторы не блокировали друг друга на общем замке.
type MemoryStore struct {
	shards [shardCount]*shard
	now    func() time.Time
}

// NewMemoryStore создаёт хранилище окон в памяти.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{now: time.Now}
	for i := range s.shards {
		s.shards[i] = &shard{windows: make(map[string]*window)}
	}
	return s
}

func (s *MemoryStore) shardFor(key string) *shard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return s.shards[h.Sum32()%shardCount]
}

// Incr реализует Store. Чтение, сброс протухшего окна и инкремент выполняются
// под замком шарда, поэтому гонка двух событий одного актора невозможна.
func (s *MemoryStore) Incr(_ context.Context, key string, windowDur time.Duration) (int64, error) {
	now := s.now()

	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	w, ok := sh.windows[key]
	if !ok || now.Sub(w.start) >= windowDur {
		w = &window{start: now}
		sh.windows[key] = w
	}
	w.count++
	return w.count, nil
}

// Cleanup удаляет окна старше maxAge.
func (s *MemoryStore) Cleanup(maxAge time.Duration) {
	cutoff := s.now().Add(-maxAge)
	for _, sh := range s.shards {
		sh.mu.Lock()
		for k, w := range sh.windows {
			if w.start.Before(cutoff) {
				delete(sh.windows, k)
			}
		}
		sh.mu.Unlock()
	}
}

// StartJanitor периодически чистит неактивные окна до отмены контекста.
func (s *MemoryStore) StartJanitor(ctx context.Context, every, maxAge time.Duration) {
	go func() {
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Cleanup(maxAge)
			}
		}
	}()
}
