package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/davidahmann/continuum/internal/decision"
	"github.com/davidahmann/continuum/pkg/types"
)

func testDecision(id string, status types.DecisionStatus, scope, bindingKey, createdAt string) types.Decision {
	return types.Decision{
		ID:        id,
		Status:    status,
		Title:     id,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
		Metadata:  map[string]any{"n": id},
		Enforcement: types.Enforcement{
			Scope:      scope,
			BindingKey: bindingKey,
		},
	}
}

func TestInMemoryStore_CRUD(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	if _, err := s.GetDecision(ctx, "missing"); !errors.Is(err, decision.ErrDecisionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	b := testDecision("dec_b", types.StatusDraft, "s", "k", "2025-01-01T00:00:00.000000Z")
	a := testDecision("dec_a", types.StatusActive, "s", "k", "2025-01-01T00:00:00.000000Z")
	c := testDecision("dec_c", types.StatusActive, "s", "k", "2024-01-01T00:00:00.000000Z")
	for _, d := range []types.Decision{b, a, c} {
		if err := s.PutDecision(ctx, d); err != nil {
			t.Fatalf("put: %v", err)
		}
	}

	got, err := s.GetDecision(ctx, "dec_a")
	if err != nil || got.ID != "dec_a" {
		t.Fatalf("get mismatch: err=%v got=%+v", err, got)
	}
	got.Metadata["n"] = "mutated"
	again, _ := s.GetDecision(ctx, "dec_a")
	if again.Metadata["n"] != "dec_a" {
		t.Fatalf("stored record shares metadata with caller")
	}

	list, err := s.ListDecisions(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 || list[0].ID != "dec_c" || list[1].ID != "dec_a" || list[2].ID != "dec_b" {
		t.Fatalf("unexpected order: %v", ids(list))
	}
}

func TestInMemoryStore_TxListActiveAndDelete(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	_ = s.PutDecision(ctx, testDecision("dec_1", types.StatusActive, "s", "k", "2025-01-01T00:00:00.000000Z"))
	_ = s.PutDecision(ctx, testDecision("dec_2", types.StatusActive, "s", "other", "2025-01-01T00:00:00.000000Z"))
	_ = s.PutDecision(ctx, testDecision("dec_3", types.StatusActive, "s/x", "k", "2025-01-01T00:00:00.000000Z"))
	_ = s.PutDecision(ctx, testDecision("dec_4", types.StatusDraft, "s", "k", "2025-01-02T00:00:00.000000Z"))

	err := s.WithTx(ctx, func(tx Tx) error {
		active, err := tx.ListActive("s", "k", "dec_4")
		if err != nil {
			return err
		}
		if len(active) != 1 || active[0].ID != "dec_1" {
			t.Fatalf("unexpected actives: %v", ids(active))
		}

		staged := testDecision("dec_5", types.StatusActive, "s", "k", "2025-01-03T00:00:00.000000Z")
		if err := tx.PutDecision(staged); err != nil {
			return err
		}
		active, _ = tx.ListActive("s", "k", "")
		if len(active) != 2 {
			t.Fatalf("staged write not visible in tx: %v", ids(active))
		}
		return tx.DeleteDecision("dec_4")
	})
	if err != nil {
		t.Fatalf("withtx: %v", err)
	}
	if _, err := s.GetDecision(ctx, "dec_4"); !errors.Is(err, decision.ErrDecisionNotFound) {
		t.Fatalf("expected dec_4 deleted, got %v", err)
	}
	if _, err := s.GetDecision(ctx, "dec_5"); err != nil {
		t.Fatalf("expected dec_5 committed: %v", err)
	}
}

func TestInMemoryStore_TxRollback(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	_ = s.PutDecision(ctx, testDecision("dec_1", types.StatusDraft, "s", "k", "2025-01-01T00:00:00.000000Z"))

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx Tx) error {
		d, err := tx.GetDecision("dec_1")
		if err != nil {
			return err
		}
		d.Status = types.StatusActive
		if err := tx.PutDecision(d); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	d, _ := s.GetDecision(ctx, "dec_1")
	if d.Status != types.StatusDraft {
		t.Fatalf("rolled back write leaked: %s", d.Status)
	}
}

func TestInMemoryStore_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewInMemoryStore().WithTx(ctx, func(Tx) error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
}

func ids(ds []types.Decision) []string {
	out := make([]string, 0, len(ds))
	for _, d := range ds {
		out = append(out, d.ID)
	}
	return out
}
