// Package filestore persists one JSON document per decision under
// <dir>/decisions/<id>.json.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/davidahmann/continuum/internal/decision"
	"github.com/davidahmann/continuum/internal/ledger"
	"github.com/davidahmann/continuum/pkg/types"
)

var validID = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Store serializes units of work with a process-wide mutex. Writers in other
// processes must coordinate through a shared binding lock.
type Store struct {
	dir string
	mu  sync.Mutex
}

// Open ensures <dir>/decisions exists.
func Open(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("filestore: missing dir")
	}
	if err := os.MkdirAll(filepath.Join(dir, "decisions"), 0o755); err != nil {
		return nil, decision.StorageError("mkdir", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) Dir() string { return s.dir }

func (s *Store) WithTx(ctx context.Context, fn func(ledger.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &Tx{store: s, staged: map[string]*types.Decision{}}
	if err := fn(tx); err != nil {
		return err
	}
	return tx.commit()
}

func (s *Store) PutDecision(ctx context.Context, d types.Decision) error {
	return s.WithTx(ctx, func(tx ledger.Tx) error { return tx.PutDecision(d) })
}

func (s *Store) GetDecision(_ context.Context, id string) (types.Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(id)
}

func (s *Store) ListDecisions(_ context.Context) ([]types.Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readAll()
}

func (s *Store) path(id string) (string, error) {
	if !validID.MatchString(id) {
		return "", fmt.Errorf("%w: invalid decision id %q", decision.ErrValidation, id)
	}
	return filepath.Join(s.dir, "decisions", id+".json"), nil
}

func (s *Store) read(id string) (types.Decision, error) {
	p, err := s.path(id)
	if err != nil {
		return types.Decision{}, decision.NotFound(id)
	}
	body, err := os.ReadFile(p) //nolint:gosec // id validated above
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return types.Decision{}, decision.NotFound(id)
		}
		return types.Decision{}, decision.StorageError("read", err)
	}
	return ledger.DecodeDecision(body)
}

func (s *Store) readAll() ([]types.Decision, error) {
	entries, err := os.ReadDir(filepath.Join(s.dir, "decisions"))
	if err != nil {
		return nil, decision.StorageError("list", err)
	}
	out := make([]types.Decision, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		d, err := s.read(strings.TrimSuffix(e.Name(), ".json"))
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	ledger.SortDecisions(out)
	return out, nil
}

func (s *Store) write(d types.Decision) error {
	p, err := s.path(d.ID)
	if err != nil {
		return err
	}
	body, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return decision.StorageError("encode", err)
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, append(body, '\n'), 0o644); err != nil { //nolint:gosec // decision records are not secret
		return decision.StorageError("write", err)
	}
	if err := os.Rename(tmp, p); err != nil {
		return decision.StorageError("rename", err)
	}
	return nil
}

func (s *Store) remove(id string) error {
	p, err := s.path(id)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return decision.StorageError("delete", err)
	}
	return nil
}

// Tx buffers writes until the unit of work returns; a nil entry marks a delete.
type Tx struct {
	store  *Store
	staged map[string]*types.Decision
}

func (t *Tx) GetDecision(id string) (types.Decision, error) {
	if d, ok := t.staged[id]; ok {
		if d == nil {
			return types.Decision{}, decision.NotFound(id)
		}
		return *d, nil
	}
	return t.store.read(id)
}

func (t *Tx) PutDecision(d types.Decision) error {
	if _, err := t.store.path(d.ID); err != nil {
		return err
	}
	t.staged[d.ID] = &d
	return nil
}

func (t *Tx) DeleteDecision(id string) error {
	t.staged[id] = nil
	return nil
}

func (t *Tx) ListActive(scope, bindingKey, excludeID string) ([]types.Decision, error) {
	all, err := t.store.readAll()
	if err != nil {
		return nil, err
	}
	byID := make(map[string]types.Decision, len(all))
	for _, d := range all {
		byID[d.ID] = d
	}
	for id, d := range t.staged {
		if d == nil {
			delete(byID, id)
			continue
		}
		byID[id] = *d
	}
	out := []types.Decision{}
	for _, d := range byID {
		if ledger.IsActiveBinding(d, scope, bindingKey, excludeID) {
			out = append(out, d)
		}
	}
	ledger.SortDecisions(out)
	return out, nil
}

func (t *Tx) commit() error {
	for id, d := range t.staged {
		if d == nil {
			if err := t.store.remove(id); err != nil {
				return err
			}
			continue
		}
		if err := t.store.write(*d); err != nil {
			return err
		}
	}
	return nil
}
