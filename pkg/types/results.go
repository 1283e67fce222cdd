package types

type ResolveStatus string

const (
	ResolveResolved           ResolveStatus = "resolved"
	ResolveNeedsClarification ResolveStatus = "needs_clarification"
)

// Candidate is a caller-supplied option offered back when intent is unclear.
type Candidate struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Source     string  `json:"source,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

type Clarification struct {
	Question   string            `json:"question"`
	Candidates []Candidate       `json:"candidates"`
	Context    map[string]string `json:"context,omitempty"`
}

type ResolveResult struct {
	Status            ResolveStatus  `json:"status"`
	ResolvedContext   *Decision      `json:"resolved_context,omitempty"`
	MatchedDecisionID string         `json:"matched_decision_id,omitempty"`
	Clarification     *Clarification `json:"clarification,omitempty"`
}

// ConflictNote reports an active decision that lost its binding in the inspect view.
type ConflictNote struct {
	BindingKey string `json:"binding_key"`
	DecisionID string `json:"decision_id"`
	WinnerID   string `json:"winner_id"`
	Note       string `json:"note"`
}

type InspectResult struct {
	Bindings      []Decision     `json:"bindings"`
	ConflictNotes []ConflictNote `json:"conflict_notes"`
	Items         []Decision     `json:"items"`
}
