package gate

import (
	"fmt"

	"github.com/davidahmann/continuum/internal/scope"
	"github.com/davidahmann/continuum/pkg/types"
)

// Inspect returns the effective binding per binding key for actives whose
// scope applies to target. Within a key the winner has the highest explicit
// precedence, then the latest created_at; other actives become conflict notes.
func Inspect(decisions []types.Decision, target string) types.InspectResult {
	var order []string
	groups := map[string][]types.Decision{}
	for _, d := range decisions {
		if d.Status != types.StatusActive || !scope.Matches(d.Enforcement.Scope, target) {
			continue
		}
		_, bk := bindingOf(d)
		if _, ok := groups[bk]; !ok {
			order = append(order, bk)
		}
		groups[bk] = append(groups[bk], d)
	}

	res := types.InspectResult{
		Bindings:      []types.Decision{},
		ConflictNotes: []types.ConflictNote{},
	}
	for _, bk := range order {
		group := groups[bk]
		winner := group[0]
		for _, d := range group[1:] {
			if beats(d, winner) {
				winner = d
			}
		}
		res.Bindings = append(res.Bindings, winner)
		for _, d := range group {
			if d.ID == winner.ID {
				continue
			}
			res.ConflictNotes = append(res.ConflictNotes, types.ConflictNote{
				BindingKey: bk,
				DecisionID: d.ID,
				WinnerID:   winner.ID,
				Note:       fmt.Sprintf("Duplicate active for binding_key '%s'; superseded by %s", bk, winner.ID),
			})
		}
	}
	res.Items = res.Bindings
	return res
}

func beats(a, b types.Decision) bool {
	pa, pb := a.Enforcement.ExplicitPrecedence(), b.Enforcement.ExplicitPrecedence()
	if pa != pb {
		return pa > pb
	}
	return a.CreatedAt > b.CreatedAt
}
