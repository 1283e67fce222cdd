package types

import "time"

// TimeFormat is fixed-width so that lexicographic order of timestamps is chronological.
const TimeFormat = "2006-01-02T15:04:05.000000Z"

// Timestamp formats t in TimeFormat (UTC).
func Timestamp(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

type DecisionStatus string

const (
	StatusDraft      DecisionStatus = "draft"
	StatusActive     DecisionStatus = "active"
	StatusSuperseded DecisionStatus = "superseded"
	StatusArchived   DecisionStatus = "archived"
)

type DecisionType string

const (
	TypeInterpretation DecisionType = "interpretation"
	TypeRejection      DecisionType = "rejection"
	TypePreference     DecisionType = "preference"
	TypeBehaviorRule   DecisionType = "behavior_rule"
)

type OverridePolicy string

const (
	OverrideInvalidByDefault OverridePolicy = "invalid_by_default"
	OverrideWarn             OverridePolicy = "warn"
	OverrideAllow            OverridePolicy = "allow"
)

type Decision struct {
	ID                string           `json:"id"`
	Version           int              `json:"version"`
	Status            DecisionStatus   `json:"status"`
	Title             string           `json:"title"`
	Rationale         string           `json:"rationale,omitempty"`
	OptionsConsidered []Option         `json:"options_considered"`
	Context           *DecisionContext `json:"context,omitempty"`
	Enforcement       Enforcement      `json:"enforcement"`
	Stakeholders      []string         `json:"stakeholders"`
	Metadata          map[string]any   `json:"metadata"`
	CreatedAt         string           `json:"created_at"`
	UpdatedAt         string           `json:"updated_at"`
}

type Option struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	Selected       bool   `json:"selected"`
	RejectedReason string `json:"rejected_reason,omitempty"`
}

// DecisionContext records where a decision came from.
type DecisionContext struct {
	Trigger   string `json:"trigger"`
	Source    string `json:"source"`
	Timestamp string `json:"timestamp"`
	Actor     string `json:"actor,omitempty"`
}

// Enforcement is the policy-relevant facet of a decision.
type Enforcement struct {
	Scope          string         `json:"scope"`
	Key            string         `json:"key,omitempty"`
	BindingKey     string         `json:"binding_key"`
	ValueHash      string         `json:"value_hash"`
	DecisionType   DecisionType   `json:"decision_type"`
	Supersedes     string         `json:"supersedes,omitempty"`
	Precedence     *int           `json:"precedence,omitempty"`
	OverridePolicy OverridePolicy `json:"override_policy"`
	IssuerType     string         `json:"issuer_type,omitempty"`
	Authority      string         `json:"authority,omitempty"`
}

// ExplicitPrecedence returns the precedence field, defaulting to 0.
func (e Enforcement) ExplicitPrecedence() int {
	if e.Precedence == nil {
		return 0
	}
	return *e.Precedence
}

// SelectedOptionIDs returns the ids of selected options in declaration order.
func (d Decision) SelectedOptionIDs() []string {
	out := []string{}
	for _, opt := range d.OptionsConsidered {
		if opt.Selected {
			out = append(out, opt.ID)
		}
	}
	return out
}

// MetadataString returns metadata[key] when it holds a string.
func (d Decision) MetadataString(key string) string {
	if d.Metadata == nil {
		return ""
	}
	if s, ok := d.Metadata[key].(string); ok {
		return s
	}
	return ""
}
