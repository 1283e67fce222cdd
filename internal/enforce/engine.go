// Package enforce evaluates proposed actions against active decisions.
//
// Evaluation is deterministic: no scoring, no I/O. Each active decision whose
// scope applies to the action contributes at most one verdict and the most
// restrictive one wins.
package enforce

import (
	"fmt"
	"strings"

	"github.com/davidahmann/continuum/internal/scope"
	"github.com/davidahmann/continuum/pkg/types"
)

// DefaultReason is returned when no decision contributes a verdict.
const DefaultReason = "No matching decisions found; action is allowed by default."

var verdictPriority = map[types.Verdict]int{
	types.VerdictAllow:    0,
	types.VerdictConfirm:  1,
	types.VerdictOverride: 2,
	types.VerdictBlock:    3,
}

// Priority returns the restrictiveness of v; unknown verdicts rank as allow.
func Priority(v types.Verdict) int {
	return verdictPriority[v]
}

type contribution struct {
	verdict    types.Verdict
	reason     string
	decisionID string
}

// Evaluate returns the most restrictive verdict contributed by decisions.
func Evaluate(action types.Action, decisions []types.Decision) types.EnforcementResult {
	var contributions []contribution

	for _, d := range decisions {
		if d.Status != types.StatusActive {
			continue
		}
		if !scope.Matches(d.Enforcement.Scope, action.Scope) {
			continue
		}

		if MatchesRejectedOption(action, d) {
			policy := d.Enforcement.OverridePolicy
			if policy == "" {
				policy = types.OverrideInvalidByDefault
			}
			switch policy {
			case types.OverrideAllow:
			case types.OverrideWarn:
				contributions = append(contributions, contribution{
					verdict:    types.VerdictConfirm,
					reason:     fmt.Sprintf("WARNING: Action matches rejected option in decision '%s' (override_policy=warn)", d.ID),
					decisionID: d.ID,
				})
			default:
				contributions = append(contributions, contribution{
					verdict:    types.VerdictBlock,
					reason:     fmt.Sprintf("Action matches rejected option in decision '%s' (override_policy=%s)", d.ID, policy),
					decisionID: d.ID,
				})
			}
			continue
		}

		if requiresConfirmation(action.Type) {
			contributions = append(contributions, contribution{
				verdict:    types.VerdictConfirm,
				reason:     fmt.Sprintf("Action type '%s' requires confirmation per decision '%s'", action.Type, d.ID),
				decisionID: d.ID,
			})
		}
	}

	if len(contributions) == 0 {
		return types.EnforcementResult{
			Verdict:               types.VerdictAllow,
			Reason:                DefaultReason,
			MatchedDecisions:      []string{},
			RequiredConfirmations: []string{},
		}
	}

	top := contributions[0]
	matched := make([]string, 0, len(contributions))
	seen := map[string]bool{}
	confirmations := []string{}
	for _, c := range contributions {
		if Priority(c.verdict) > Priority(top.verdict) {
			top = c
		}
		if !seen[c.decisionID] {
			seen[c.decisionID] = true
			matched = append(matched, c.decisionID)
		}
		if c.verdict == types.VerdictConfirm {
			confirmations = append(confirmations, c.reason)
		}
	}

	return types.EnforcementResult{
		Verdict:               top.verdict,
		Reason:                top.reason,
		MatchedDecisions:      matched,
		RequiredConfirmations: confirmations,
	}
}

// MatchesRejectedOption reports whether action names a non-selected option of
// d, by case-insensitive title substring or by metadata["option_id"].
func MatchesRejectedOption(action types.Action, d types.Decision) bool {
	description := strings.ToLower(action.Description)
	optionID := action.MetadataString("option_id")
	for _, opt := range d.OptionsConsidered {
		if opt.Selected {
			continue
		}
		if opt.Title != "" && strings.Contains(description, strings.ToLower(opt.Title)) {
			return true
		}
		if opt.ID != "" && optionID == opt.ID {
			return true
		}
	}
	return false
}

func requiresConfirmation(t types.ActionType) bool {
	return t == types.ActionMigration || t == types.ActionAPIBreak
}
