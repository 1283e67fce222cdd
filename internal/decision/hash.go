package decision

import (
	"log/slog"
	"slices"
	"strings"

	"github.com/davidahmann/continuum/internal/crypto"
	"github.com/davidahmann/continuum/pkg/types"
)

// ValueHashLen is the number of hex characters kept from the SHA-256 digest.
const ValueHashLen = 16

// BindingKey identifies the policy point a decision answers.
func BindingKey(key, title string) string {
	if key != "" {
		return key
	}
	return title
}

// ComputeValueHash fingerprints the effective meaning of a decision. Selected
// option ids are sorted so option order never changes the hash.
func ComputeValueHash(bindingKey string, decisionType types.DecisionType, title, rationale string, selectedOptionIDs []string) string {
	selected := slices.Clone(selectedOptionIDs)
	if selected == nil {
		selected = []string{}
	}
	slices.Sort(selected)

	view := map[string]any{
		"binding_key":         bindingKey,
		"decision_type":       string(decisionType),
		"title":               title,
		"rationale":           rationale,
		"selected_option_ids": selected,
	}

	canonical, err := crypto.Canonicalize(view)
	if err != nil {
		slog.Error("decision: canonical JSON failed for value hash, using fallback",
			"binding_key", bindingKey,
			"error", err,
		)
		canonical = []byte(strings.Join(append([]string{bindingKey, string(decisionType), title, rationale}, selected...), "\x00"))
	}

	short, _ := crypto.ShortDigest(canonical, ValueHashLen)
	return short
}

// ValueHashOf recomputes the value hash from a decision's own fields.
func ValueHashOf(d types.Decision) string {
	return ComputeValueHash(d.Enforcement.BindingKey, d.Enforcement.DecisionType, d.Title, d.Rationale, d.SelectedOptionIDs())
}
