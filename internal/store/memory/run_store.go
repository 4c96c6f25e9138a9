package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/surfacehub/contractor-aggregator/internal/contractor"
)

// RunStore keeps batch run records in process memory.
type RunStore struct {
	mu   sync.RWMutex
	runs map[string]contractor.Run
}

// NewRunStore constructs a RunStore.
func NewRunStore() *RunStore {
	return &RunStore{runs: make(map[string]contractor.Run)}
}

// CreateRun stores a new run.
func (s *RunStore) CreateRun(_ context.Context, run contractor.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; exists {
		return errors.New("run already exists")
	}
	s.runs[run.ID] = run
	return nil
}

// UpdateRun replaces a stored run.
func (s *RunStore) UpdateRun(_ context.Context, run contractor.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; !ok {
		return errors.New("run not found")
	}
	s.runs[run.ID] = run
	return nil
}

// GetRun fetches a run by ID.
func (s *RunStore) GetRun(_ context.Context, runID string) (contractor.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[runID]
	if !ok {
		return contractor.Run{}, errors.New("run not found")
	}
	return run, nil
}
