package policy

// Level is a team's enforcement strictness.
type Level string

const (
	LevelStrict  Level = "strict"
	LevelNormal  Level = "normal"
	LevelRelaxed Level = "relaxed"
)

type Policy struct {
	PolicyID      string `yaml:"policy_id"`
	PolicyVersion string `yaml:"policy_version"`
	// RolloutPercentage is the share of action ids (0-100) that are enforced.
	// Nil means 100.
	RolloutPercentage         *float64         `yaml:"rollout_percentage"`
	TeamStrictness            map[string]Level `yaml:"team_strictness"`
	RequiredOverrideApprovals int              `yaml:"required_override_approvals"`
}
