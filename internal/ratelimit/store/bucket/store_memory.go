package bucket

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory fixed-window counter store for tests and
// single-process deployments. Expired buckets are dropped lazily on access
// and swept opportunistically when the map grows.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string]*counter
	clock   func() time.Time
}

type counter struct {
	count     int64
	expiresAt time.Time
}

type MemoryOption func(*MemoryStore)

// WithClock sets the clock function for testability.
func WithClock(clock func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		buckets: make(map[string]*counter),
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) Increment(_ context.Context, key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	c, ok := s.buckets[key]
	if !ok || !c.expiresAt.After(now) {
		c = &counter{expiresAt: now.Add(ttl)}
		s.buckets[key] = c
	}
	c.count++

	if len(s.buckets) > 1024 {
		s.sweep(now)
	}
	return c.count, nil
}

// sweep removes expired buckets. Caller holds the lock.
func (s *MemoryStore) sweep(now time.Time) {
	for key, c := range s.buckets {
		if !c.expiresAt.After(now) {
			delete(s.buckets, key)
		}
	}
}
