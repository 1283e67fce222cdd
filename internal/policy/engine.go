package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/davidahmann/continuum/pkg/types"
)

// Rollout returns the enforced percentage, defaulting to 100.
func (p Policy) Rollout() float64 {
	if p.RolloutPercentage == nil {
		return 100
	}
	return *p.RolloutPercentage
}

// ShouldEnforce buckets actionID deterministically into [0,100) and reports
// whether the bucket falls inside the rollout.
func (p Policy) ShouldEnforce(actionID string) bool {
	sum := sha256.Sum256([]byte(actionID))
	prefix, _ := strconv.ParseUint(hex.EncodeToString(sum[:4]), 16, 32)
	bucket := prefix % 100
	return float64(bucket) < p.Rollout()
}

// EnforcementLevel returns the configured level for team, or normal.
func (p Policy) EnforcementLevel(team string) Level {
	if level, ok := p.TeamStrictness[team]; ok {
		return level
	}
	return LevelNormal
}

// RequiredApprovals returns the override threshold, at least 1.
func (p Policy) RequiredApprovals() int {
	if p.RequiredOverrideApprovals < 1 {
		return 1
	}
	return p.RequiredOverrideApprovals
}

// CanOverride reports whether enough distinct approvers signed off.
func (p Policy) CanOverride(approvals []string) bool {
	return uniqueCount(approvals) >= p.RequiredApprovals()
}

// Apply adjusts an evaluation for rollout and team strictness. The action id
// and team are read from action metadata.
func (p Policy) Apply(action types.Action, res types.EnforcementResult) types.EnforcementResult {
	if actionID := action.MetadataString("action_id"); actionID != "" && !p.ShouldEnforce(actionID) {
		return types.EnforcementResult{
			Verdict:               types.VerdictAllow,
			Reason:                fmt.Sprintf("Action '%s' is outside rollout (%g%% enforced); action is allowed.", actionID, p.Rollout()),
			MatchedDecisions:      []string{},
			RequiredConfirmations: []string{},
		}
	}

	team := action.MetadataString("team")
	switch p.EnforcementLevel(team) {
	case LevelStrict:
		if res.Verdict == types.VerdictConfirm {
			res.Verdict = types.VerdictBlock
			res.Reason = fmt.Sprintf("%s (team '%s' is strict: confirmation escalated to block)", res.Reason, team)
		}
	case LevelRelaxed:
		if res.Verdict == types.VerdictBlock {
			res.Verdict = types.VerdictConfirm
			res.Reason = fmt.Sprintf("%s (team '%s' is relaxed: block downgraded to confirmation)", res.Reason, team)
			res.RequiredConfirmations = append(res.RequiredConfirmations, res.Reason)
		}
	}
	return res
}

// Override turns a block into an override when approvals meet the threshold.
func Override(res types.EnforcementResult, approvals []string, required int) types.EnforcementResult {
	if required < 1 {
		required = 1
	}
	if res.Verdict != types.VerdictBlock || uniqueCount(approvals) < required {
		return res
	}
	res.Verdict = types.VerdictOverride
	res.Reason = fmt.Sprintf("Override accepted with %d of %d required approvals: %s", uniqueCount(approvals), required, res.Reason)
	return res
}

func uniqueCount(values []string) int {
	seen := map[string]struct{}{}
	for _, v := range values {
		if v == "" {
			continue
		}
		seen[v] = struct{}{}
	}
	return len(seen)
}
