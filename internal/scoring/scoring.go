// Package scoring holds the deterministic heuristics used to analyze a
// decision: how ambiguous it is, how risky an action at a scope is, and which
// enforcement rules it compiles to.
package scoring

import (
	"strings"

	"github.com/davidahmann/continuum/pkg/types"
)

type AmbiguityScorer interface {
	Score(d types.Decision) float64
}

type RiskScorer interface {
	Score(d types.Decision, actionScope string) float64
}

type Compiler interface {
	Compile(d types.Decision) Compiled
}

// HeuristicAmbiguity rates ambiguity from the option count, missing
// rationale and missing context.
type HeuristicAmbiguity struct{}

func (HeuristicAmbiguity) Score(d types.Decision) float64 {
	var base float64
	switch n := len(d.OptionsConsidered); {
	case n <= 1:
		base = 0.1
	case n == 2:
		base = 0.3
	case n == 3:
		base = 0.5
	default:
		base = 0.7
	}
	if d.Rationale == "" {
		base += 0.2
	}
	if d.Context == nil {
		base += 0.1
	}
	return clamp(base)
}

// HeuristicRisk rates an action scope against the decision's scope: 0.8 when
// equal, 0.5 when nested under it, otherwise 0.1.
type HeuristicRisk struct{}

func (HeuristicRisk) Score(d types.Decision, actionScope string) float64 {
	decisionScope := d.Enforcement.Scope
	switch {
	case decisionScope == "" || actionScope == "":
		return 0.1
	case decisionScope == actionScope:
		return 0.8
	case strings.HasPrefix(actionScope, decisionScope+"/"):
		return 0.5
	default:
		return 0.1
	}
}

func clamp(v float64) float64 {
	return max(0, min(1, v))
}
