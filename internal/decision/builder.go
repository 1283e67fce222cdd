package decision

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/davidahmann/continuum/internal/crypto"
	"github.com/davidahmann/continuum/pkg/types"
)

// Draft is the caller-supplied content of a new decision.
type Draft struct {
	Title          string                 `json:"title"`
	Scope          string                 `json:"scope"`
	DecisionType   types.DecisionType     `json:"decision_type"`
	Options        []types.Option         `json:"options,omitempty"`
	Rationale      string                 `json:"rationale,omitempty"`
	Stakeholders   []string               `json:"stakeholders,omitempty"`
	Metadata       map[string]any         `json:"metadata,omitempty"`
	OverridePolicy types.OverridePolicy   `json:"override_policy,omitempty"`
	Precedence     *int                   `json:"precedence,omitempty"`
	Supersedes     string                 `json:"supersedes,omitempty"`
	Key            string                 `json:"key,omitempty"`
	Context        *types.DecisionContext `json:"context,omitempty"`
	IssuerType     string                 `json:"issuer_type,omitempty"`
	Authority      string                 `json:"authority,omitempty"`
}

// NewID returns a fresh decision identifier.
func NewID() string {
	return "dec_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// ValidDecisionType reports whether t is one of the known decision types.
func ValidDecisionType(t types.DecisionType) bool {
	switch t {
	case types.TypeInterpretation, types.TypeRejection, types.TypePreference, types.TypeBehaviorRule:
		return true
	}
	return false
}

// ValidOverridePolicy reports whether p is one of the known override policies.
func ValidOverridePolicy(p types.OverridePolicy) bool {
	switch p {
	case types.OverrideInvalidByDefault, types.OverrideWarn, types.OverrideAllow:
		return true
	}
	return false
}

// Build assembles a draft decision with its binding key and value hash.
func Build(in Draft, id, createdAt string) (types.Decision, error) {
	if strings.TrimSpace(in.Title) == "" {
		return types.Decision{}, fmt.Errorf("%w: title is required", ErrValidation)
	}
	if strings.TrimSpace(in.Scope) == "" {
		return types.Decision{}, fmt.Errorf("%w: scope is required", ErrValidation)
	}
	if !ValidDecisionType(in.DecisionType) {
		return types.Decision{}, fmt.Errorf("%w: unknown decision_type %q", ErrValidation, in.DecisionType)
	}
	policy := in.OverridePolicy
	if policy == "" {
		policy = types.OverrideInvalidByDefault
	}
	if !ValidOverridePolicy(policy) {
		return types.Decision{}, fmt.Errorf("%w: unknown override_policy %q", ErrValidation, policy)
	}

	options, err := assignOptionIDs(in.Options)
	if err != nil {
		return types.Decision{}, err
	}

	metadata := map[string]any{}
	for k, v := range in.Metadata {
		metadata[k] = v
	}
	stakeholders := append([]string{}, in.Stakeholders...)

	d := types.Decision{
		ID:                id,
		Version:           0,
		Status:            types.StatusDraft,
		Title:             in.Title,
		Rationale:         in.Rationale,
		OptionsConsidered: options,
		Context:           in.Context,
		Stakeholders:      stakeholders,
		Metadata:          metadata,
		CreatedAt:         createdAt,
		UpdatedAt:         createdAt,
		Enforcement: types.Enforcement{
			Scope:          in.Scope,
			Key:            in.Key,
			BindingKey:     BindingKey(in.Key, in.Title),
			DecisionType:   in.DecisionType,
			Supersedes:     in.Supersedes,
			Precedence:     in.Precedence,
			OverridePolicy: policy,
			IssuerType:     in.IssuerType,
			Authority:      in.Authority,
		},
	}
	d.Enforcement.ValueHash = ValueHashOf(d)

	if err := Validate(d); err != nil {
		return types.Decision{}, err
	}
	return d, nil
}

// assignOptionIDs fills missing option ids from a digest of the title so
// identical drafts hash identically.
func assignOptionIDs(in []types.Option) ([]types.Option, error) {
	out := make([]types.Option, 0, len(in))
	seen := map[string]bool{}
	for _, opt := range in {
		if strings.TrimSpace(opt.Title) == "" {
			return nil, fmt.Errorf("%w: option title is required", ErrValidation)
		}
		if opt.ID == "" {
			opt.ID = optionID(opt.Title, seen)
		} else if seen[opt.ID] {
			return nil, fmt.Errorf("%w: duplicate option id %q", ErrValidation, opt.ID)
		}
		seen[opt.ID] = true
		out = append(out, opt)
	}
	return out, nil
}

func optionID(title string, seen map[string]bool) string {
	short, _ := crypto.ShortDigest([]byte(title), 10)
	base := "opt_" + short
	id := base
	for n := 2; seen[id]; n++ {
		id = base + "_" + strconv.Itoa(n)
	}
	return id
}
