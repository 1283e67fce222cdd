package ledger

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/davidahmann/continuum/internal/decision"
	"github.com/davidahmann/continuum/pkg/types"
)

type InMemoryStore struct {
	mu        sync.Mutex
	decisions map[string]types.Decision
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{decisions: make(map[string]types.Decision)}
}

func (s *InMemoryStore) WithTx(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{store: s, staged: map[string]*types.Decision{}}
	if err := fn(tx); err != nil {
		return err
	}
	for id, d := range tx.staged {
		if d == nil {
			delete(s.decisions, id)
			continue
		}
		s.decisions[id] = *d
	}
	return nil
}

func (s *InMemoryStore) PutDecision(_ context.Context, d types.Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decisions[d.ID] = cloneDecision(d)
	return nil
}

func (s *InMemoryStore) GetDecision(_ context.Context, id string) (types.Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.decisions[id]
	if !ok {
		return types.Decision{}, decision.NotFound(id)
	}
	return cloneDecision(d), nil
}

func (s *InMemoryStore) ListDecisions(_ context.Context) ([]types.Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Decision, 0, len(s.decisions))
	for _, d := range s.decisions {
		out = append(out, cloneDecision(d))
	}
	SortDecisions(out)
	return out, nil
}

// memTx stages writes so a failing unit of work leaves the store untouched.
// A nil staged entry marks a delete.
type memTx struct {
	store  *InMemoryStore
	staged map[string]*types.Decision
}

func (t *memTx) lookup(id string) (types.Decision, bool) {
	if d, ok := t.staged[id]; ok {
		if d == nil {
			return types.Decision{}, false
		}
		return *d, true
	}
	d, ok := t.store.decisions[id]
	return d, ok
}

func (t *memTx) GetDecision(id string) (types.Decision, error) {
	d, ok := t.lookup(id)
	if !ok {
		return types.Decision{}, decision.NotFound(id)
	}
	return cloneDecision(d), nil
}

func (t *memTx) PutDecision(d types.Decision) error {
	c := cloneDecision(d)
	t.staged[d.ID] = &c
	return nil
}

func (t *memTx) DeleteDecision(id string) error {
	t.staged[id] = nil
	return nil
}

func (t *memTx) ListActive(scope, bindingKey, excludeID string) ([]types.Decision, error) {
	ids := map[string]struct{}{}
	for id := range t.store.decisions {
		ids[id] = struct{}{}
	}
	for id := range t.staged {
		ids[id] = struct{}{}
	}
	out := []types.Decision{}
	for id := range ids {
		d, ok := t.lookup(id)
		if ok && IsActiveBinding(d, scope, bindingKey, excludeID) {
			out = append(out, cloneDecision(d))
		}
	}
	SortDecisions(out)
	return out, nil
}

func cloneDecision(d types.Decision) types.Decision {
	d.OptionsConsidered = slices.Clone(d.OptionsConsidered)
	d.Stakeholders = slices.Clone(d.Stakeholders)
	d.Metadata = maps.Clone(d.Metadata)
	if d.Context != nil {
		c := *d.Context
		d.Context = &c
	}
	if d.Enforcement.Precedence != nil {
		p := *d.Enforcement.Precedence
		d.Enforcement.Precedence = &p
	}
	return d
}
