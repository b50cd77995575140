package ledger

import (
	"context"
	"sync"
	"time"

	"quorum/internal/privacy"
	id "quorum/pkg/domain"
	"quorum/pkg/platform/sentinel"
)

// MemoryStore is an in-memory privacy ledger for tests and single-process
// deployments. The mutex serializes check-and-charge, which is exactly the
// atomicity the ledger contract requires.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[id.ResourceID]*privacy.LedgerEntry
	clock   func() time.Time
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
		entries: make(map[id.ResourceID]*privacy.LedgerEntry),
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) Charge(_ context.Context, resource id.ResourceID, epsilon, budget float64) (*privacy.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[resource]
	if !ok {
		entry = &privacy.LedgerEntry{
			Resource:        resource,
			WindowStartedAt: s.clock().UTC(),
		}
		s.entries[resource] = entry
	}

	if entry.Spent+epsilon > budget {
		return nil, sentinel.ErrExhausted
	}
	entry.Spent += epsilon

	dup := *entry
	return &dup, nil
}

func (s *MemoryStore) Entry(_ context.Context, resource id.ResourceID) (*privacy.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[resource]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	dup := *entry
	return &dup, nil
}

func (s *MemoryStore) Rollover(_ context.Context, resource id.ResourceID) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[resource]
	if !ok {
		return 0, nil
	}
	closed := entry.Spent
	entry.Spent = 0
	entry.WindowStartedAt = s.clock().UTC()
	return closed, nil
}
