// Package precedence arbitrates between decisions competing for one binding.
package precedence

import (
	"slices"
	"strings"

	"github.com/davidahmann/continuum/internal/scope"
	"github.com/davidahmann/continuum/pkg/types"
)

// Result is the outcome of Arbitrate. Winner is nil only for empty input.
type Result struct {
	Winner           *types.Decision    `json:"winner"`
	Losers           []types.Decision   `json:"losers"`
	ConflictDetected bool               `json:"conflict_detected"`
	Scores           map[string]float64 `json:"scores"`
}

// Score is precedence*1000 + EnhancedSpecificity(scope) + AuthorityRank*0.5.
func Score(d types.Decision) float64 {
	return float64(d.Enforcement.ExplicitPrecedence())*1000 +
		scope.EnhancedSpecificity(d.Enforcement.Scope) +
		float64(AuthorityRank(d))*0.5
}

// Arbitrate selects the winner among candidates by score, then recency.
func Arbitrate(candidates []types.Decision) Result {
	switch len(candidates) {
	case 0:
		return Result{Losers: []types.Decision{}, Scores: map[string]float64{}}
	case 1:
		winner := candidates[0]
		return Result{
			Winner: &winner,
			Losers: []types.Decision{},
			Scores: map[string]float64{winner.ID: Score(winner)},
		}
	}

	type scored struct {
		decision types.Decision
		score    float64
	}
	ranked := make([]scored, 0, len(candidates))
	scores := make(map[string]float64, len(candidates))
	for _, c := range candidates {
		s := Score(c)
		ranked = append(ranked, scored{decision: c, score: s})
		scores[c.ID] = s
	}
	slices.SortStableFunc(ranked, func(a, b scored) int {
		if a.score != b.score {
			if a.score > b.score {
				return -1
			}
			return 1
		}
		return strings.Compare(b.decision.CreatedAt, a.decision.CreatedAt)
	})

	winner := ranked[0].decision
	losers := make([]types.Decision, 0, len(ranked)-1)
	for _, r := range ranked[1:] {
		losers = append(losers, r.decision)
	}
	return Result{
		Winner:           &winner,
		Losers:           losers,
		ConflictDetected: true,
		Scores:           scores,
	}
}
