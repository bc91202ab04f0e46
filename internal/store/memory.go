package store

import (
	"context"
	"sync"

	"github.com/fyrsmithlabs/debugmem/internal/incident"
)

// MemoryStore keeps records in process memory. Records are cloned on the way
// in and out so callers never share state with the store.
type MemoryStore struct {
	mu        sync.RWMutex
	incidents map[string]*incident.Incident
	patterns  map[string]*incident.Pattern
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		incidents: make(map[string]*incident.Incident),
		patterns:  make(map[string]*incident.Pattern),
	}
}

func (s *MemoryStore) LoadAllIncidents(_ context.Context) ([]*incident.Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*incident.Incident, 0, len(s.incidents))
	for _, inc := range s.incidents {
		out = append(out, inc.Clone())
	}
	sortIncidents(out)
	return out, nil
}

func (s *MemoryStore) LoadAllPatterns(_ context.Context) ([]*incident.Pattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*incident.Pattern, 0, len(s.patterns))
	for _, p := range s.patterns {
		out = append(out, p.Clone())
	}
	sortPatterns(out)
	return out, nil
}

func (s *MemoryStore) GetIncident(_ context.Context, id string) (*incident.Incident, error) {
	if err := incident.ValidateIncidentID(id); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	inc, ok := s.incidents[id]
	if !ok {
		return nil, ErrNotFound
	}
	return inc.Clone(), nil
}

func (s *MemoryStore) GetPattern(_ context.Context, id string) (*incident.Pattern, error) {
	if err := incident.ValidatePatternID(id); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.patterns[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p.Clone(), nil
}

func (s *MemoryStore) PersistIncident(_ context.Context, inc *incident.Incident) error {
	if err := incident.ValidateIncidentID(inc.ID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.incidents[inc.ID] = persistable(inc)
	return nil
}

func (s *MemoryStore) PersistPattern(_ context.Context, p *incident.Pattern) error {
	if err := incident.ValidatePatternID(p.ID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patterns[p.ID] = p.Clone()
	return nil
}

func (s *MemoryStore) DeleteIncident(_ context.Context, id string) error {
	if err := incident.ValidateIncidentID(id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.incidents[id]; !ok {
		return ErrNotFound
	}
	delete(s.incidents, id)
	return nil
}

func (s *MemoryStore) Close() error { return nil }
