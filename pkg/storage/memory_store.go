package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultRetention is the number of runs a MemoryModelStore keeps.
const DefaultRetention = 16

// MemoryModelStore is an in-memory implementation of ModelStore. Once more
// than the retention limit is stored, the oldest run is evicted.
type MemoryModelStore struct {
	mu        sync.RWMutex
	runs      map[string]*Run
	order     []string // oldest first
	retention int
	now       func() time.Time
}

// NewMemoryModelStore creates a new MemoryModelStore. A non-positive
// retention selects DefaultRetention.
func NewMemoryModelStore(retention int) *MemoryModelStore {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &MemoryModelStore{
		runs:      make(map[string]*Run),
		retention: retention,
		now:       time.Now,
	}
}

// Save stores run in memory.
func (s *MemoryModelStore) Save(ctx context.Context, run *Run) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if run == nil || run.Model == nil {
		return "", fmt.Errorf("save run: missing model")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = s.now()
	}
	if _, exists := s.runs[run.ID]; exists {
		s.removeLocked(run.ID)
	}
	s.runs[run.ID] = run
	s.order = append(s.order, run.ID)
	for len(s.order) > s.retention {
		s.removeLocked(s.order[0])
	}
	return run.ID, nil
}

// Get retrieves a run by id.
func (s *MemoryModelStore) Get(_ context.Context, id string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return run, nil
}

// Latest returns the most recently saved run.
func (s *MemoryModelStore) Latest(_ context.Context) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.order) == 0 {
		return nil, ErrNotFound
	}
	return s.runs[s.order[len(s.order)-1]], nil
}

// List summarizes stored runs, oldest first.
func (s *MemoryModelStore) List(_ context.Context) ([]Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Summary, 0, len(s.order))
	for _, id := range s.order {
		run := s.runs[id]
		out = append(out, Summary{
			ID:        run.ID,
			CreatedAt: run.CreatedAt,
			Stats:     run.Model.Stats(),
			Findings:  len(run.Findings),
			Hazards:   run.Hazards.Count(),
		})
	}
	return out, nil
}

// Delete removes a run.
func (s *MemoryModelStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.removeLocked(id)
	return nil
}

// Close is a no-op for memory store.
func (s *MemoryModelStore) Close() error {
	return nil
}

func (s *MemoryModelStore) removeLocked(id string) {
	delete(s.runs, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}
