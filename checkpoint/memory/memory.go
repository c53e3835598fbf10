// Package memory is an in-process checkpoint.Store, used in tests and for
// single-process deployments that don't need durability across restarts.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/smallnest/dagrag/checkpoint"
)

// Store is a mutex-guarded in-memory checkpoint.Store.
type Store struct {
	mu    sync.Mutex
	byID  map[string]*checkpoint.Checkpoint
	byRun map[string][]string // workflow_id -> checkpoint ids, insertion order
}

// New constructs an empty in-memory store.
func New() *Store {
	return &Store{
		byID:  make(map[string]*checkpoint.Checkpoint),
		byRun: make(map[string][]string),
	}
}

func (s *Store) Save(_ context.Context, cp *checkpoint.Checkpoint, retention int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[cp.ID]; !exists {
		s.byRun[cp.WorkflowID] = append(s.byRun[cp.WorkflowID], cp.ID)
	}
	s.byID[cp.ID] = cp

	if retention <= 0 {
		retention = checkpoint.DefaultRetention
	}
	ids := s.byRun[cp.WorkflowID]
	for len(ids) > retention {
		oldest := ids[0]
		ids = ids[1:]
		delete(s.byID, oldest)
	}
	s.byRun[cp.WorkflowID] = ids
	return nil
}

func (s *Store) Load(_ context.Context, id string) (*checkpoint.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("checkpoint not found: %s", id)
	}
	return cp, nil
}

func (s *Store) Latest(_ context.Context, workflowID string) (*checkpoint.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.byRun[workflowID]
	if len(ids) == 0 {
		return nil, fmt.Errorf("no checkpoints for workflow: %s", workflowID)
	}
	return s.byID[ids[len(ids)-1]], nil
}

func (s *Store) List(_ context.Context, workflowID string) ([]*checkpoint.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := append([]string(nil), s.byRun[workflowID]...)
	sort.SliceStable(ids, func(i, j int) bool {
		return s.byID[ids[i]].Layer < s.byID[ids[j]].Layer
	})
	out := make([]*checkpoint.Checkpoint, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.byID[id])
	}
	return out, nil
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp, ok := s.byID[id]
	if !ok {
		return nil
	}
	delete(s.byID, id)
	ids := s.byRun[cp.WorkflowID]
	for i, existing := range ids {
		if existing == id {
			s.byRun[cp.WorkflowID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	return nil
}

func (s *Store) Clear(_ context.Context, workflowID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.byRun[workflowID] {
		delete(s.byID, id)
	}
	delete(s.byRun, workflowID)
	return nil
}
