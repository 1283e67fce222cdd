// Package service orchestrates decision storage, the activation gate and the
// read-side engines behind one API shared by the HTTP server and the CLI.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/davidahmann/continuum/internal/decision"
	"github.com/davidahmann/continuum/internal/enforce"
	"github.com/davidahmann/continuum/internal/gate"
	"github.com/davidahmann/continuum/internal/ledger"
	"github.com/davidahmann/continuum/internal/observability"
	"github.com/davidahmann/continuum/internal/policy"
	"github.com/davidahmann/continuum/internal/precedence"
	"github.com/davidahmann/continuum/internal/resolve"
	"github.com/davidahmann/continuum/internal/scope"
	"github.com/davidahmann/continuum/internal/scoring"
	"github.com/davidahmann/continuum/pkg/types"
)

type Service struct {
	store     ledger.Store
	gate      *gate.Gate
	policy    *policy.Policy
	analyzer  scoring.Analyzer
	telemetry *observability.Telemetry
	logger    *slog.Logger
	now       func() time.Time
}

type Option func(*Service)

// WithLocker replaces the in-process binding lock.
func WithLocker(l gate.Locker) Option {
	return func(s *Service) { s.gate = gate.New(l) }
}

// WithPolicy enables rollout, team strictness and override approvals.
func WithPolicy(p policy.Policy) Option {
	return func(s *Service) { s.policy = &p }
}

func WithAnalyzer(a scoring.Analyzer) Option {
	return func(s *Service) { s.analyzer = a }
}

func WithTelemetry(t *observability.Telemetry) Option {
	return func(s *Service) {
		if t != nil {
			s.telemetry = t
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(store ledger.Store, opts ...Option) *Service {
	s := &Service{
		store:     store,
		gate:      gate.New(nil),
		telemetry: observability.Noop(),
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "service")
	return s
}

// Policy returns the configured policy set, or nil.
func (s *Service) Policy() *policy.Policy {
	return s.policy
}

func (s *Service) timestamp() string {
	return types.Timestamp(s.now())
}

// Commit builds a draft decision and persists it.
func (s *Service) Commit(ctx context.Context, in decision.Draft) (d types.Decision, err error) {
	ctx, done := s.telemetry.Track(ctx, "commit", attribute.String("scope", in.Scope))
	defer func() { done(err) }()

	d, err = decision.Build(in, decision.NewID(), s.timestamp())
	if err != nil {
		return types.Decision{}, err
	}
	if err := s.store.PutDecision(ctx, d); err != nil {
		s.logger.ErrorContext(ctx, "commit failed", "decision_id", d.ID, "error", err)
		return types.Decision{}, err
	}
	s.logger.InfoContext(ctx, "decision committed",
		"decision_id", d.ID,
		"scope", d.Enforcement.Scope,
		"binding_key", d.Enforcement.BindingKey,
	)
	return d, nil
}

func (s *Service) Get(ctx context.Context, id string) (d types.Decision, err error) {
	ctx, done := s.telemetry.Track(ctx, "get")
	defer func() { done(err) }()
	return s.store.GetDecision(ctx, id)
}

// List returns decisions whose own scope is matched by filter. An empty
// filter returns everything.
func (s *Service) List(ctx context.Context, filter string) (out []types.Decision, err error) {
	ctx, done := s.telemetry.Track(ctx, "list", attribute.String("scope", filter))
	defer func() { done(err) }()

	all, err := s.store.ListDecisions(ctx)
	if err != nil {
		return nil, err
	}
	if filter == "" {
		return all, nil
	}
	out = []types.Decision{}
	for _, d := range all {
		if scope.Matches(filter, d.Enforcement.Scope) {
			out = append(out, d)
		}
	}
	return out, nil
}

// UpdateStatus moves id to target. Activation goes through the gate, which
// may return a different, already active decision.
func (s *Service) UpdateStatus(ctx context.Context, id string, target types.DecisionStatus) (d types.Decision, err error) {
	ctx, done := s.telemetry.Track(ctx, "update_status", attribute.String("target", string(target)))
	defer func() { done(err) }()

	if !decision.ValidStatus(target) {
		return types.Decision{}, fmt.Errorf("%w: unknown status %q", decision.ErrValidation, target)
	}
	if target == types.StatusActive {
		return s.activate(ctx, id)
	}

	err = s.store.WithTx(ctx, func(tx ledger.Tx) error {
		cur, err := tx.GetDecision(id)
		if err != nil {
			return err
		}
		next, err := decision.Transition(cur, target, s.timestamp())
		if err != nil {
			return err
		}
		d = next
		return tx.PutDecision(next)
	})
	if err != nil {
		return types.Decision{}, err
	}
	s.logger.InfoContext(ctx, "status changed", "decision_id", d.ID, "status", d.Status)
	return d, nil
}

func (s *Service) activate(ctx context.Context, id string) (types.Decision, error) {
	out, err := s.gate.Activate(ctx, s.store, id, s.timestamp())
	if err != nil {
		if !isKnownKind(err) {
			s.logger.ErrorContext(ctx, "activation failed", "decision_id", id, "error", err)
		}
		return types.Decision{}, err
	}

	d := out.Decision
	attrs := []any{
		"decision_id", d.ID,
		"scope", d.Enforcement.Scope,
		"binding_key", d.Enforcement.BindingKey,
	}
	switch {
	case out.Idempotent:
		s.telemetry.RecordActivation(ctx, "idempotent")
		s.logger.InfoContext(ctx, "activation idempotent", append(attrs, "discarded_draft", id)...)
	default:
		s.telemetry.RecordActivation(ctx, "activated")
		if len(out.Superseded) > 0 {
			s.telemetry.RecordActivation(ctx, "superseded")
			s.logger.InfoContext(ctx, "decisions superseded", append(attrs, "superseded", out.Superseded)...)
		}
		s.logger.InfoContext(ctx, "decision activated", attrs...)
	}
	return d, nil
}

// SupersedeInput describes the replacement for a superseded decision. Empty
// Scope, DecisionType and Key are inherited from the old decision.
type SupersedeInput struct {
	Title          string                 `json:"title"`
	Scope          string                 `json:"scope,omitempty"`
	DecisionType   types.DecisionType     `json:"decision_type,omitempty"`
	Options        []types.Option         `json:"options,omitempty"`
	Rationale      string                 `json:"rationale,omitempty"`
	Stakeholders   []string               `json:"stakeholders,omitempty"`
	Metadata       map[string]any         `json:"metadata,omitempty"`
	OverridePolicy types.OverridePolicy   `json:"override_policy,omitempty"`
	Precedence     *int                   `json:"precedence,omitempty"`
	Key            string                 `json:"key,omitempty"`
	Context        *types.DecisionContext `json:"context,omitempty"`
}

// Supersede retires oldID and activates its replacement.
func (s *Service) Supersede(ctx context.Context, oldID string, in SupersedeInput) (d types.Decision, err error) {
	ctx, done := s.telemetry.Track(ctx, "supersede")
	defer func() { done(err) }()

	old, err := s.store.GetDecision(ctx, oldID)
	if err != nil {
		return types.Decision{}, err
	}

	draft := decision.Draft{
		Title:          in.Title,
		Scope:          in.Scope,
		DecisionType:   in.DecisionType,
		Options:        in.Options,
		Rationale:      in.Rationale,
		Stakeholders:   in.Stakeholders,
		Metadata:       in.Metadata,
		OverridePolicy: in.OverridePolicy,
		Precedence:     in.Precedence,
		Supersedes:     oldID,
		Key:            in.Key,
		Context:        in.Context,
	}
	if draft.Scope == "" {
		draft.Scope = old.Enforcement.Scope
	}
	if draft.DecisionType == "" {
		draft.DecisionType = old.Enforcement.DecisionType
	}
	if draft.Key == "" {
		draft.Key = old.Enforcement.Key
	}

	now := s.timestamp()
	replacement, err := decision.Build(draft, decision.NewID(), now)
	if err != nil {
		return types.Decision{}, err
	}

	err = s.store.WithTx(ctx, func(tx ledger.Tx) error {
		cur, err := tx.GetDecision(oldID)
		if err != nil {
			return err
		}
		retired, err := decision.Transition(cur, types.StatusSuperseded, now)
		if err != nil {
			return err
		}
		if err := tx.PutDecision(retired); err != nil {
			return err
		}
		return tx.PutDecision(replacement)
	})
	if err != nil {
		return types.Decision{}, err
	}
	s.logger.InfoContext(ctx, "decision superseded", "decision_id", oldID, "replacement_id", replacement.ID)

	return s.UpdateStatus(ctx, replacement.ID, types.StatusActive)
}

// Inspect returns the effective bindings for target.
func (s *Service) Inspect(ctx context.Context, target string) (res types.InspectResult, err error) {
	ctx, done := s.telemetry.Track(ctx, "inspect", attribute.String("scope", target))
	defer func() { done(err) }()

	all, err := s.store.ListDecisions(ctx)
	if err != nil {
		return types.InspectResult{}, err
	}
	return gate.Inspect(all, target), nil
}

// Enforce evaluates action at target scope, then applies the policy set if any.
func (s *Service) Enforce(ctx context.Context, action types.Action, target string) (res types.EnforcementResult, err error) {
	ctx, done := s.telemetry.Track(ctx, "enforce", attribute.String("action_type", string(action.Type)))
	defer func() { done(err) }()

	res, err = s.evaluate(ctx, action, target)
	if err != nil {
		return types.EnforcementResult{}, err
	}
	s.telemetry.RecordVerdict(ctx, string(res.Verdict))
	return res, nil
}

func (s *Service) evaluate(ctx context.Context, action types.Action, target string) (types.EnforcementResult, error) {
	if target != "" {
		action.Scope = target
	}
	all, err := s.store.ListDecisions(ctx)
	if err != nil {
		return types.EnforcementResult{}, err
	}
	res := enforce.Evaluate(action, all)
	if s.policy != nil {
		res = s.policy.Apply(action, res)
	}
	return res, nil
}

// Override evaluates action and lifts a block when enough distinct
// approvals are supplied.
func (s *Service) Override(ctx context.Context, action types.Action, target string, approvals []string) (res types.EnforcementResult, err error) {
	ctx, done := s.telemetry.Track(ctx, "override")
	defer func() { done(err) }()

	res, err = s.evaluate(ctx, action, target)
	if err != nil {
		return types.EnforcementResult{}, err
	}
	required := 1
	if s.policy != nil {
		required = s.policy.RequiredApprovals()
	}
	res = policy.Override(res, approvals, required)
	if res.Verdict == types.VerdictOverride {
		s.logger.InfoContext(ctx, "override accepted", "approvals", approvals, "matched", res.MatchedDecisions)
	}
	s.telemetry.RecordVerdict(ctx, string(res.Verdict))
	return res, nil
}

func (s *Service) Resolve(ctx context.Context, query, target string, candidates []types.Candidate) (res types.ResolveResult, err error) {
	ctx, done := s.telemetry.Track(ctx, "resolve", attribute.String("scope", target))
	defer func() { done(err) }()

	all, err := s.store.ListDecisions(ctx)
	if err != nil {
		return types.ResolveResult{}, err
	}
	return resolve.Resolve(query, target, candidates, all), nil
}

// Arbitration is an arbitration result with its explanation.
type Arbitration struct {
	precedence.Result
	Explanation string `json:"explanation"`
}

// Arbitrate ranks the actives bound to bindingKey whose scope applies to target.
func (s *Service) Arbitrate(ctx context.Context, target, bindingKey string) (res Arbitration, err error) {
	ctx, done := s.telemetry.Track(ctx, "arbitrate", attribute.String("scope", target))
	defer func() { done(err) }()

	all, err := s.store.ListDecisions(ctx)
	if err != nil {
		return Arbitration{}, err
	}
	var candidates []types.Decision
	for _, d := range all {
		if d.Status != types.StatusActive || !scope.Matches(d.Enforcement.Scope, target) {
			continue
		}
		if d.Enforcement.BindingKey == bindingKey {
			candidates = append(candidates, d)
		}
	}
	r := precedence.Arbitrate(candidates)
	return Arbitration{Result: r, Explanation: precedence.ExplainWinner(r)}, nil
}

// Analyze runs the scorers and compiler over one stored decision.
func (s *Service) Analyze(ctx context.Context, id, actionScope string) (a scoring.Analysis, err error) {
	ctx, done := s.telemetry.Track(ctx, "analyze")
	defer func() { done(err) }()

	d, err := s.store.GetDecision(ctx, id)
	if err != nil {
		return scoring.Analysis{}, err
	}
	return s.analyzer.Analyze(d, actionScope), nil
}
