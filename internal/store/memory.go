package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps everything in process. It is only suitable for tests and
// single-instance deployments; state does not survive restarts.
type MemoryStore struct {
	mu          sync.Mutex
	experiments map[string]*Experiment
	assignments map[string]map[string]*Assignment // experiment id -> subject key
	order       map[string][]string               // insertion order of subject keys
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		experiments: make(map[string]*Experiment),
		assignments: make(map[string]map[string]*Assignment),
		order:       make(map[string][]string),
	}
}

func (s *MemoryStore) CreateExperiment(ctx context.Context, exp *Experiment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.experiments[exp.ID]; ok {
		return fmt.Errorf("experiment %q: %w", exp.ID, ErrAlreadyExists)
	}
	s.experiments[exp.ID] = exp.Clone()
	return nil
}

func (s *MemoryStore) GetExperiment(ctx context.Context, id string) (*Experiment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	exp, ok := s.experiments[id]
	if !ok {
		return nil, ErrNotFound
	}
	return exp.Clone(), nil
}

func (s *MemoryStore) ListExperiments(ctx context.Context) ([]*Experiment, error) {
	return s.list(func(*Experiment) bool { return true }), nil
}

func (s *MemoryStore) ListExperimentsByStatus(ctx context.Context, status Status) ([]*Experiment, error) {
	return s.list(func(e *Experiment) bool { return e.Status == status }), nil
}

func (s *MemoryStore) list(keep func(*Experiment) bool) []*Experiment {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Experiment
	for _, exp := range s.experiments {
		if keep(exp) {
			out = append(out, exp.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (s *MemoryStore) UpdateExperiment(ctx context.Context, exp *Experiment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.experiments[exp.ID]; !ok {
		return ErrNotFound
	}
	s.experiments[exp.ID] = exp.Clone()
	return nil
}

func (s *MemoryStore) InsertAssignmentIfAbsent(ctx context.Context, a *Assignment) (*Assignment, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byKey, ok := s.assignments[a.ExperimentID]
	if !ok {
		byKey = make(map[string]*Assignment)
		s.assignments[a.ExperimentID] = byKey
	}
	if existing, ok := byKey[a.SubjectKey]; ok {
		return existing.Clone(), false, nil
	}
	byKey[a.SubjectKey] = a.Clone()
	s.order[a.ExperimentID] = append(s.order[a.ExperimentID], a.SubjectKey)
	return a.Clone(), true, nil
}

func (s *MemoryStore) GetAssignment(ctx context.Context, experimentID, subjectKey string) (*Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.assignments[experimentID][subjectKey]
	if !ok {
		return nil, ErrNotFound
	}
	return a.Clone(), nil
}

func (s *MemoryStore) RecordConversion(ctx context.Context, experimentID, subjectKey string, c Conversion) (*Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.assignments[experimentID][subjectKey]
	if !ok {
		return nil, ErrNotFound
	}
	if c.At.IsZero() {
		c.At = time.Now().UTC()
	}
	c.apply(a)
	return a.Clone(), nil
}

func (s *MemoryStore) ListAssignments(ctx context.Context, experimentID string) ([]*Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := s.order[experimentID]
	out := make([]*Assignment, 0, len(keys))
	for _, k := range keys {
		out = append(out, s.assignments[experimentID][k].Clone())
	}
	return out, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
