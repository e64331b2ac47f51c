package artifact

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Store holds assembled artifacts in memory, keyed by ID. Artifacts live
// until they are released or the process exits; there is no durable storage.
type Store struct {
	mu        sync.RWMutex
	artifacts map[uuid.UUID]*Artifact
}

// NewStore creates an empty artifact store
func NewStore() *Store {
	return &Store{
		artifacts: make(map[uuid.UUID]*Artifact),
	}
}

// Put registers an artifact and returns its locator
func (s *Store) Put(a *Artifact) (string, error) {
	if a == nil {
		return "", fmt.Errorf("artifact cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.artifacts[a.ID] = a
	return a.Locator(), nil
}

// Get returns the artifact with the given ID
func (s *Store) Get(id uuid.UUID) (*Artifact, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.artifacts[id]
	return a, ok
}

// Release discards the artifact with the given ID, invalidating its locator
func (s *Store) Release(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.artifacts[id]; !ok {
		return false
	}
	delete(s.artifacts, id)
	return true
}

// Len returns the number of stored artifacts
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.artifacts)
}
