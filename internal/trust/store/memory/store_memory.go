package memory

import (
	"context"
	"sync"

	"quorum/internal/trust"
	id "quorum/pkg/domain"
	"quorum/pkg/platform/sentinel"
)

// Store is an in-memory trust record store for tests and local development.
type Store struct {
	mu      sync.RWMutex
	records map[id.IdentityID]*trust.Record
}

func New() *Store {
	return &Store{
		records: make(map[id.IdentityID]*trust.Record),
	}
}

func (s *Store) Get(_ context.Context, identityID id.IdentityID) (*trust.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[identityID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return copyRecord(record), nil
}

func (s *Store) Create(_ context.Context, record *trust.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[record.IdentityID]; exists {
		return sentinel.ErrConflict
	}
	s.records[record.IdentityID] = copyRecord(record)
	return nil
}

func (s *Store) Update(_ context.Context, record *trust.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.records[record.IdentityID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if stored.Version != record.Version {
		return sentinel.ErrConflict
	}

	next := copyRecord(record)
	next.Version = record.Version + 1
	s.records[record.IdentityID] = next
	record.Version = next.Version
	return nil
}

func copyRecord(record *trust.Record) *trust.Record {
	dup := *record
	dup.Evidence = make([]trust.Evidence, len(record.Evidence))
	copy(dup.Evidence, record.Evidence)
	return &dup
}
