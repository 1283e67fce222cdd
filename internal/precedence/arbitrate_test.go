package precedence

import (
	"strings"
	"testing"

	"github.com/davidahmann/continuum/pkg/types"
)

func intPtr(v int) *int { return &v }

func decision(id, title, scopeStr, createdAt string, precedence *int) types.Decision {
	return types.Decision{
		ID:        id,
		Title:     title,
		Status:    types.StatusActive,
		CreatedAt: createdAt,
		Enforcement: types.Enforcement{
			Scope:      scopeStr,
			BindingKey: "k",
			Precedence: precedence,
		},
	}
}

func TestArbitrateExplicitPrecedence(t *testing.T) {
	d1 := decision("dec_1", "One", "repo:x", "2025-01-02T00:00:00.000000Z", intPtr(1))
	d2 := decision("dec_2", "Two", "repo:x", "2025-01-01T00:00:00.000000Z", intPtr(10))

	res := Arbitrate([]types.Decision{d1, d2})
	if res.Winner == nil || res.Winner.ID != "dec_2" {
		t.Fatalf("expected dec_2 to win, got %+v", res.Winner)
	}
	if !res.ConflictDetected {
		t.Fatalf("expected conflict")
	}
	if res.Scores["dec_2"] <= res.Scores["dec_1"] {
		t.Fatalf("unexpected scores %v", res.Scores)
	}
	if len(res.Losers) != 1 || res.Losers[0].ID != "dec_1" {
		t.Fatalf("unexpected losers %+v", res.Losers)
	}

	explanation := ExplainWinner(res)
	if !strings.Contains(explanation, "wins among 2 competing decisions.") ||
		!strings.Contains(explanation, `It has higher explicit precedence (10) than "One" (1).`) {
		t.Fatalf("unexpected explanation %q", explanation)
	}
}

func TestArbitrateTrivialCases(t *testing.T) {
	res := Arbitrate(nil)
	if res.Winner != nil || res.ConflictDetected {
		t.Fatalf("unexpected empty result %+v", res)
	}
	if ExplainWinner(res) != "No decisions found for this scope." {
		t.Fatalf("unexpected explanation %q", ExplainWinner(res))
	}

	only := decision("dec_1", "Only", "repo:x", "2025-01-01T00:00:00.000000Z", nil)
	res = Arbitrate([]types.Decision{only})
	if res.Winner == nil || res.Winner.ID != "dec_1" || res.ConflictDetected {
		t.Fatalf("unexpected single result %+v", res)
	}
	if res.Scores["dec_1"] != 30 {
		t.Fatalf("expected score 30, got %v", res.Scores["dec_1"])
	}
	want := `Decision "Only" (dec_1) is the only active decision for this scope. No conflict.`
	if ExplainWinner(res) != want {
		t.Fatalf("unexpected explanation %q", ExplainWinner(res))
	}
}

func TestArbitrateSpecificityThenAuthorityThenRecency(t *testing.T) {
	broad := decision("dec_broad", "Broad", "org:acme", "2025-01-01T00:00:00.000000Z", nil)
	narrow := decision("dec_narrow", "Narrow", "org:acme/team:core", "2025-01-01T00:00:00.000000Z", nil)
	res := Arbitrate([]types.Decision{broad, narrow})
	if res.Winner.ID != "dec_narrow" {
		t.Fatalf("expected narrow to win, got %s", res.Winner.ID)
	}
	if !strings.Contains(ExplainWinner(res), `is more specific than "org:acme" (score 50 vs 40)`) {
		t.Fatalf("unexpected explanation %q", ExplainWinner(res))
	}

	agent := decision("dec_agent", "Agent", "repo:x", "2025-01-01T00:00:00.000000Z", nil)
	agent.Enforcement.IssuerType = "agent"
	admin := decision("dec_admin", "Admin", "repo:x", "2025-01-01T00:00:00.000000Z", nil)
	admin.Metadata = map[string]any{"issuer_type": "human", "authority": "admin"}
	res = Arbitrate([]types.Decision{agent, admin})
	if res.Winner.ID != "dec_admin" {
		t.Fatalf("expected admin to win, got %s", res.Winner.ID)
	}
	if !strings.Contains(ExplainWinner(res), `It has higher authority rank than "Agent".`) {
		t.Fatalf("unexpected explanation %q", ExplainWinner(res))
	}

	older := decision("dec_old", "Old", "repo:x", "2025-01-01T00:00:00.000000Z", nil)
	newer := decision("dec_new", "New", "repo:x", "2025-06-01T00:00:00.000000Z", nil)
	res = Arbitrate([]types.Decision{older, newer})
	if res.Winner.ID != "dec_new" {
		t.Fatalf("expected newer to win, got %s", res.Winner.ID)
	}
	if !strings.Contains(ExplainWinner(res), `It was created more recently than "Old".`) {
		t.Fatalf("unexpected explanation %q", ExplainWinner(res))
	}
}

func TestExplainWinnerDeduplicatesReasons(t *testing.T) {
	w := decision("dec_w", "Winner", "repo:x", "2025-01-01T00:00:00.000000Z", intPtr(5))
	a := decision("dec_a", "Loser", "repo:x", "2025-01-01T00:00:00.000000Z", nil)
	b := decision("dec_b", "Loser", "repo:x", "2025-01-02T00:00:00.000000Z", nil)
	res := Arbitrate([]types.Decision{a, w, b})
	explanation := ExplainWinner(res)
	if strings.Count(explanation, "higher explicit precedence") != 1 {
		t.Fatalf("expected one deduplicated reason, got %q", explanation)
	}
}

func TestAuthorityRankEnforcementBeatsMetadata(t *testing.T) {
	d := types.Decision{
		Enforcement: types.Enforcement{IssuerType: "system"},
		Metadata:    map[string]any{"issuer_type": "agent", "authority": "lead"},
	}
	if got := AuthorityRank(d); got != 50 {
		t.Fatalf("expected 50, got %d", got)
	}
}
