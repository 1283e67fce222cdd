package precedence

import (
	"fmt"
	"strings"

	"github.com/davidahmann/continuum/internal/scope"
)

// ExplainWinner renders a human-readable account of why the winner won.
func ExplainWinner(r Result) string {
	if !r.ConflictDetected {
		if r.Winner != nil {
			return fmt.Sprintf("Decision %q (%s) is the only active decision for this scope. No conflict.", r.Winner.Title, r.Winner.ID)
		}
		return "No decisions found for this scope."
	}

	w := *r.Winner
	wPrec := w.Enforcement.ExplicitPrecedence()
	wSpec := scope.EnhancedSpecificity(w.Enforcement.Scope)
	wAuth := AuthorityRank(w)

	parts := []string{
		fmt.Sprintf("Decision %q (%s) wins among %d competing decisions.", w.Title, w.ID, len(r.Losers)+1),
	}
	seen := map[string]bool{}
	for _, l := range r.Losers {
		lPrec := l.Enforcement.ExplicitPrecedence()
		lSpec := scope.EnhancedSpecificity(l.Enforcement.Scope)

		var reason string
		switch {
		case wPrec > lPrec:
			reason = fmt.Sprintf("It has higher explicit precedence (%d) than %q (%d).", wPrec, l.Title, lPrec)
		case wSpec > lSpec:
			reason = fmt.Sprintf("Its scope %q is more specific than %q (score %.0f vs %.0f).", w.Enforcement.Scope, l.Enforcement.Scope, wSpec, lSpec)
		case wAuth > AuthorityRank(l):
			reason = fmt.Sprintf("It has higher authority rank than %q.", l.Title)
		default:
			reason = fmt.Sprintf("It was created more recently than %q.", l.Title)
		}
		if !seen[reason] {
			seen[reason] = true
			parts = append(parts, reason)
		}
	}
	return strings.Join(parts, " ")
}
