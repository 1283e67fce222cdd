// Package resolve maps a free-text query onto the active decision it refers to.
package resolve

import (
	"fmt"
	"slices"
	"strings"

	"github.com/davidahmann/continuum/internal/scope"
	"github.com/davidahmann/continuum/pkg/types"
)

const noPriorDecisionQuestion = "No prior decision found. Please clarify intent."

// Resolve returns the best matching active decision for query at targetScope,
// or a clarification request carrying the supplied candidates.
func Resolve(query, targetScope string, candidates []types.Candidate, decisions []types.Decision) types.ResolveResult {
	var matches []types.Decision
	for _, d := range decisions {
		if Matches(query, targetScope, d) {
			matches = append(matches, d)
		}
	}

	if len(matches) > 0 {
		slices.SortStableFunc(matches, compareMatches)
		winner := matches[0]
		return types.ResolveResult{
			Status:            types.ResolveResolved,
			ResolvedContext:   &winner,
			MatchedDecisionID: winner.ID,
		}
	}

	clarification := &types.Clarification{
		Question:   noPriorDecisionQuestion,
		Candidates: []types.Candidate{},
		Context:    map[string]string{"scope": targetScope, "query": query},
	}
	if len(candidates) > 0 {
		clarification.Question = fmt.Sprintf("Multiple options exist for '%s'. Please select one.", query)
		clarification.Candidates = slices.Clone(candidates)
	}
	return types.ResolveResult{
		Status:        types.ResolveNeedsClarification,
		Clarification: clarification,
	}
}

// Matches reports whether d is active, applies to targetScope and shares a
// title substring with query. Blank queries and titles never match.
func Matches(query, targetScope string, d types.Decision) bool {
	if d.Status != types.StatusActive {
		return false
	}
	if !scope.Matches(d.Enforcement.Scope, targetScope) {
		return false
	}
	q := normalize(query)
	title := normalize(d.Title)
	if q == "" || title == "" {
		return false
	}
	return strings.Contains(q, title) || strings.Contains(title, q)
}

// compareMatches orders by specificity, then precedence, then recency, all descending.
func compareMatches(a, b types.Decision) int {
	if sa, sb := scope.Specificity(a.Enforcement.Scope), scope.Specificity(b.Enforcement.Scope); sa != sb {
		return sb - sa
	}
	if pa, pb := a.Enforcement.ExplicitPrecedence(), b.Enforcement.ExplicitPrecedence(); pa != pb {
		return pb - pa
	}
	return strings.Compare(b.CreatedAt, a.CreatedAt)
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
