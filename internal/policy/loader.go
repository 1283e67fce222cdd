package policy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/davidahmann/continuum/internal/crypto"
)

type LoadedPolicy struct {
	Policy Policy
	Hash   string
	Bytes  []byte
}

// LoadPolicy loads a YAML policy and computes its hash from raw bytes.
func LoadPolicy(path string) (LoadedPolicy, error) {
	// #nosec G304 -- path comes from operator-configured policy path.
	data, err := os.ReadFile(path)
	if err != nil {
		return LoadedPolicy{}, err
	}
	return ParsePolicy(data)
}

// ParsePolicy decodes and validates a YAML policy document.
func ParsePolicy(data []byte) (LoadedPolicy, error) {
	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return LoadedPolicy{}, err
	}
	if err := p.Validate(); err != nil {
		return LoadedPolicy{}, err
	}

	return LoadedPolicy{
		Policy: p,
		Hash:   crypto.DigestWithPrefix(data),
		Bytes:  data,
	}, nil
}

func (p Policy) Validate() error {
	if p.PolicyID == "" {
		return fmt.Errorf("policy_id is required")
	}
	if p.RolloutPercentage != nil && (*p.RolloutPercentage < 0 || *p.RolloutPercentage > 100) {
		return fmt.Errorf("rollout_percentage must be between 0 and 100, got %v", *p.RolloutPercentage)
	}
	if p.RequiredOverrideApprovals < 0 {
		return fmt.Errorf("required_override_approvals must not be negative, got %d", p.RequiredOverrideApprovals)
	}
	for team, level := range p.TeamStrictness {
		switch level {
		case LevelStrict, LevelNormal, LevelRelaxed:
		default:
			return fmt.Errorf("team_strictness[%s]: unknown level %q", team, level)
		}
	}
	return nil
}
