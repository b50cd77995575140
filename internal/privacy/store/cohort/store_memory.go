// Package cohort provides CohortSource implementations over poll membership
// data.
package cohort

import (
	"context"
	"sort"
	"sync"

	"quorum/internal/privacy"
	id "quorum/pkg/domain"
)

type groupKey struct {
	resource  id.ResourceID
	dimension string
	key       string
}

// MemoryStore aggregates cohort membership in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	groups map[groupKey]*privacy.Cohort
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{groups: make(map[groupKey]*privacy.Cohort)}
}

// AddMember folds one participant into the cohort identified by key. Weight
// is the participant's tier weight at observation time.
func (s *MemoryStore) AddMember(resource id.ResourceID, dimension, key string, weight float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	gk := groupKey{resource: resource, dimension: dimension, key: key}
	group, ok := s.groups[gk]
	if !ok {
		group = &privacy.Cohort{Key: key}
		s.groups[gk] = group
	}
	group.Size++
	group.Weight += weight
}

func (s *MemoryStore) Cohorts(_ context.Context, resource id.ResourceID, dimension string) ([]privacy.Cohort, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []privacy.Cohort
	for gk, group := range s.groups {
		if gk.resource == resource && gk.dimension == dimension {
			out = append(out, *group)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}
