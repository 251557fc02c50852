package ratelimit

import (
	"context"
	"hash/fnv"
	"sync"
	"time"
)

const shardCount = 32

type record struct {
	count   int
	resetAt time.Time
}

type shard struct {
	mu      sync.Mutex
	records map[string]*record
}

// Memory is a single-process Limiter. Keys are spread over mutex-guarded
// shards so unrelated keys do not contend; each key is only ever touched
// under its shard's lock.
type Memory struct {
	shards   [shardCount]*shard
	now      func() time.Time
	interval time.Duration

	stop chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

type MemoryOption func(*Memory)

// WithClock replaces time.Now. Used by tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) { m.now = now }
}

// WithSweepInterval sets how often expired records are reclaimed.
func WithSweepInterval(d time.Duration) MemoryOption {
	return func(m *Memory) { m.interval = d }
}

func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		now:      time.Now,
		interval: time.Minute,
		stop:     make(chan struct{}),
	}
	for i := range m.shards {
		m.shards[i] = &shard{records: make(map[string]*record)}
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) shardFor(key string) *shard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return m.shards[h.Sum32()%shardCount]
}

func (m *Memory) Allow(_ context.Context, policy Policy, key string) (Decision, error) {
	k := storageKey(policy, key)
	s := m.shardFor(k)
	now := m.now()

	s.mu.Lock()
	rec, ok := s.records[k]
	if !ok || now.After(rec.resetAt) {
		rec = &record{count: 1, resetAt: now.Add(policy.Window)}
		s.records[k] = rec
	} else {
		rec.count++
	}
	count, resetAt := rec.count, rec.resetAt
	s.mu.Unlock()

	return decide(policy, count, resetAt, now), nil
}

// Start launches the janitor that drops records whose window has passed.
func (m *Memory) Start() {
	if m.interval <= 0 {
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.Sweep()
			case <-m.stop:
				return
			}
		}
	}()
}

// Sweep removes expired records and returns how many were dropped.
func (m *Memory) Sweep() int {
	now := m.now()
	removed := 0
	for _, s := range m.shards {
		s.mu.Lock()
		for k, rec := range s.records {
			if now.After(rec.resetAt) {
				delete(s.records, k)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// Len reports the number of tracked keys.
func (m *Memory) Len() int {
	n := 0
	for _, s := range m.shards {
		s.mu.Lock()
		n += len(s.records)
		s.mu.Unlock()
	}
	return n
}

// Close stops the janitor. It is safe to call more than once.
func (m *Memory) Close() error {
	m.once.Do(func() { close(m.stop) })
	m.wg.Wait()
	return nil
}
