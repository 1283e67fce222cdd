package filestore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/davidahmann/continuum/internal/decision"
	"github.com/davidahmann/continuum/internal/ledger"
	"github.com/davidahmann/continuum/pkg/types"
)

func record(id string, status types.DecisionStatus, createdAt string) types.Decision {
	return types.Decision{
		ID:        id,
		Status:    status,
		Title:     "Use tabs",
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
		Enforcement: types.Enforcement{
			Scope:      "repo:acme",
			BindingKey: "indent",
		},
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	if err := s.PutDecision(ctx, record("dec_2", types.StatusDraft, "2025-01-02T00:00:00.000000Z")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.PutDecision(ctx, record("dec_1", types.StatusActive, "2025-01-01T00:00:00.000000Z")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "decisions", "dec_1.json")); err != nil {
		t.Fatalf("expected record file: %v", err)
	}

	got, err := s.GetDecision(ctx, "dec_1")
	if err != nil || got.Enforcement.BindingKey != "indent" {
		t.Fatalf("get mismatch: err=%v got=%+v", err, got)
	}

	reopened, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	list, err := reopened.ListDecisions(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].ID != "dec_1" || list[1].ID != "dec_2" {
		t.Fatalf("unexpected list: %+v", list)
	}
}

func TestFileStoreTxStagesUntilCommit(t *testing.T) {
	ctx := context.Background()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_ = s.PutDecision(ctx, record("dec_old", types.StatusActive, "2025-01-01T00:00:00.000000Z"))
	_ = s.PutDecision(ctx, record("dec_new", types.StatusDraft, "2025-01-02T00:00:00.000000Z"))

	boom := errors.New("boom")
	err = s.WithTx(ctx, func(tx ledger.Tx) error {
		if err := tx.DeleteDecision("dec_old"); err != nil {
			return err
		}
		active, err := tx.ListActive("repo:acme", "indent", "dec_new")
		if err != nil {
			return err
		}
		if len(active) != 0 {
			t.Fatalf("staged delete not visible: %+v", active)
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if _, err := s.GetDecision(ctx, "dec_old"); err != nil {
		t.Fatalf("rolled back delete applied: %v", err)
	}

	err = s.WithTx(ctx, func(tx ledger.Tx) error {
		return tx.DeleteDecision("dec_new")
	})
	if err != nil {
		t.Fatalf("withtx: %v", err)
	}
	if _, err := s.GetDecision(ctx, "dec_new"); !errors.Is(err, decision.ErrDecisionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestFileStoreRejectsUnsafeIDs(t *testing.T) {
	ctx := context.Background()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.PutDecision(ctx, record("../escape", types.StatusDraft, "2025-01-01T00:00:00.000000Z")); !errors.Is(err, decision.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := s.GetDecision(ctx, "../escape"); !errors.Is(err, decision.ErrDecisionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := Open(""); err == nil {
		t.Fatalf("expected error for empty dir")
	}
}
