package memory

import (
	"context"
	"sync"

	"quorum/internal/credential"
	id "quorum/pkg/domain"
	"quorum/pkg/platform/sentinel"
)

// Store is an in-memory credential store for tests and single-process
// deployments. Version checks mirror the semantics of the postgres store.
type Store struct {
	mu           sync.RWMutex
	byID         map[id.CredentialID]*credential.Credential
	fingerprints map[string]id.CredentialID
}

func New() *Store {
	return &Store{
		byID:         make(map[id.CredentialID]*credential.Credential),
		fingerprints: make(map[string]id.CredentialID),
	}
}

func (s *Store) Create(_ context.Context, cred *credential.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.fingerprints[cred.Fingerprint]; exists {
		return sentinel.ErrConflict
	}
	if _, exists := s.byID[cred.ID]; exists {
		return sentinel.ErrConflict
	}

	stored := *cred
	s.byID[cred.ID] = &stored
	s.fingerprints[cred.Fingerprint] = cred.ID
	return nil
}

func (s *Store) Get(_ context.Context, credentialID id.CredentialID) (*credential.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.byID[credentialID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := *stored
	return &out, nil
}

func (s *Store) Update(_ context.Context, cred *credential.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.byID[cred.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if stored.Version != cred.Version {
		return sentinel.ErrConflict
	}

	next := *cred
	next.Version = stored.Version + 1
	s.byID[cred.ID] = &next
	cred.Version = next.Version
	return nil
}
