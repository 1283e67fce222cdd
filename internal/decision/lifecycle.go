package decision

import (
	"fmt"
	"slices"

	"github.com/davidahmann/continuum/pkg/types"
)

var validTransitions = map[types.DecisionStatus][]types.DecisionStatus{
	types.StatusDraft:      {types.StatusActive, types.StatusArchived},
	types.StatusActive:     {types.StatusSuperseded, types.StatusArchived},
	types.StatusSuperseded: {types.StatusArchived},
	types.StatusArchived:   {},
}

// CanTransition reports whether current -> target is a legal lifecycle move.
func CanTransition(current, target types.DecisionStatus) bool {
	return slices.Contains(validTransitions[current], target)
}

// Transition returns a copy of d moved to target, with updated_at set to now.
func Transition(d types.Decision, target types.DecisionStatus, now string) (types.Decision, error) {
	if !CanTransition(d.Status, target) {
		return types.Decision{}, fmt.Errorf("%w: cannot transition %s from %q to %q", ErrInvalidTransition, d.ID, d.Status, target)
	}
	d.Status = target
	d.UpdatedAt = now
	return d, nil
}

// ValidStatus reports whether s names a lifecycle status.
func ValidStatus(s types.DecisionStatus) bool {
	_, ok := validTransitions[s]
	return ok
}
