package types

type ActionType string

const (
	ActionCodeChange   ActionType = "code_change"
	ActionMigration    ActionType = "migration"
	ActionAPIBreak     ActionType = "api_break"
	ActionDeployment   ActionType = "deployment"
	ActionConfigChange ActionType = "config_change"
	ActionGeneric      ActionType = "generic"
)

type Verdict string

const (
	VerdictAllow    Verdict = "allow"
	VerdictConfirm  Verdict = "confirm"
	VerdictOverride Verdict = "override"
	VerdictBlock    Verdict = "block"
)

// Action is a proposed change evaluated against active decisions.
type Action struct {
	Type        ActionType     `json:"type"`
	Description string         `json:"description"`
	Scope       string         `json:"scope"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// MetadataString returns metadata[key] when it holds a string.
func (a Action) MetadataString(key string) string {
	if a.Metadata == nil {
		return ""
	}
	if s, ok := a.Metadata[key].(string); ok {
		return s
	}
	return ""
}

type EnforcementResult struct {
	Verdict               Verdict  `json:"verdict"`
	Reason                string   `json:"reason"`
	MatchedDecisions      []string `json:"matched_decisions"`
	RequiredConfirmations []string `json:"required_confirmations"`
}
