package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/docucast/api/internal/model"
)

// MemoryStore is an in-memory Store for tests and local development.
// Safe for concurrent access; records are copied on read and write so
// callers can never alias stored state.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*model.Job
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs: make(map[string]*model.Job),
	}
}

func (s *MemoryStore) Create(_ context.Context, job *model.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("job id %s already exists", job.ID)
	}
	cp := *job
	s.jobs[job.ID] = &cp
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*model.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *job
	return &cp, nil
}

func (s *MemoryStore) Update(_ context.Context, id string, mutate func(*model.Job) error) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}

	cp := *job
	if err := mutate(&cp); err != nil {
		return nil, err
	}
	cp.UpdatedAt = time.Now()
	s.jobs[id] = &cp

	out := cp
	return &out, nil
}

func (s *MemoryStore) ScanStale(_ context.Context, cutoff time.Time) ([]*model.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stale []*model.Job
	for _, job := range s.jobs {
		if !job.Status.Terminal() && job.UpdatedAt.Before(cutoff) {
			cp := *job
			stale = append(stale, &cp)
		}
	}
	return stale, nil
}
