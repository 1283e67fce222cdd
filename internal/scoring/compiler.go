package scoring

import (
	"fmt"

	"github.com/davidahmann/continuum/pkg/types"
)

type RuleAction string

const (
	RulePrefer RuleAction = "prefer"
	RuleBlock  RuleAction = "block"
)

type Rule struct {
	Name    string     `json:"name"`
	Action  RuleAction `json:"action"`
	Pattern string     `json:"pattern"`
	Reason  string     `json:"reason"`
}

type Compiled struct {
	Rules                 []Rule   `json:"rules"`
	BlockedPatterns       []string `json:"blocked_patterns"`
	RequiredConfirmations []string `json:"required_confirmations"`
}

// OptionCompiler turns selected options into prefer rules and rejected ones
// into block rules.
type OptionCompiler struct{}

func (OptionCompiler) Compile(d types.Decision) Compiled {
	out := Compiled{
		Rules:                 []Rule{},
		BlockedPatterns:       []string{},
		RequiredConfirmations: []string{},
	}
	for _, opt := range d.OptionsConsidered {
		if opt.Selected {
			out.Rules = append(out.Rules, Rule{
				Name:    "prefer-" + opt.ID,
				Action:  RulePrefer,
				Pattern: opt.Title,
				Reason:  fmt.Sprintf("Selected option in decision '%s'", d.ID),
			})
			continue
		}
		reason := opt.RejectedReason
		if reason == "" {
			reason = fmt.Sprintf("Rejected in decision '%s'", d.ID)
		}
		out.Rules = append(out.Rules, Rule{
			Name:    "block-" + opt.ID,
			Action:  RuleBlock,
			Pattern: opt.Title,
			Reason:  reason,
		})
		out.BlockedPatterns = append(out.BlockedPatterns, opt.Title)
	}
	return out
}

// Analysis bundles the heuristic view of one decision.
type Analysis struct {
	DecisionID string   `json:"decision_id"`
	Ambiguity  float64  `json:"ambiguity"`
	Risk       float64  `json:"risk"`
	Compiled   Compiled `json:"compiled"`
}

// Analyzer combines the three scorers; zero fields use the heuristics.
type Analyzer struct {
	Ambiguity AmbiguityScorer
	Risk      RiskScorer
	Compiler  Compiler
}

func (a Analyzer) Analyze(d types.Decision, actionScope string) Analysis {
	amb := a.Ambiguity
	if amb == nil {
		amb = HeuristicAmbiguity{}
	}
	risk := a.Risk
	if risk == nil {
		risk = HeuristicRisk{}
	}
	comp := a.Compiler
	if comp == nil {
		comp = OptionCompiler{}
	}
	return Analysis{
		DecisionID: d.ID,
		Ambiguity:  amb.Score(d),
		Risk:       risk.Score(d, actionScope),
		Compiled:   comp.Compile(d),
	}
}
