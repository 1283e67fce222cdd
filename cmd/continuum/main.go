package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/davidahmann/continuum/internal/backend"
	"github.com/davidahmann/continuum/internal/config"
	"github.com/davidahmann/continuum/internal/decision"
	"github.com/davidahmann/continuum/internal/observability"
	"github.com/davidahmann/continuum/internal/policy"
	"github.com/davidahmann/continuum/internal/service"
	"github.com/davidahmann/continuum/pkg/types"
)

func main() {
	exitFn(run(os.Args, os.Stdout, os.Stderr))
}

var exitFn = os.Exit

type globals struct {
	store      config.StoreConfig
	policyPath string
	logLevel   string
}

func run(args []string, stdout io.Writer, stderr io.Writer) int {
	if len(args) < 2 {
		usage(stderr)
		return 2
	}

	fs := flag.NewFlagSet("continuum", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { usage(stderr) }
	var g globals
	fs.StringVar(&g.store.Driver, "store", envOrDefault("CONTINUUM_STORE_DRIVER", "file"), "store driver: memory|file|sqlite|postgres")
	fs.StringVar(&g.store.DSN, "dsn", os.Getenv("CONTINUUM_STORE_DSN"), "sqlite or postgres DSN")
	fs.StringVar(&g.store.Dir, "dir", envOrDefault("CONTINUUM_STORE_DIR", backend.DefaultDir), "file store directory")
	fs.StringVar(&g.policyPath, "policy", os.Getenv("CONTINUUM_POLICY_PATH"), "enforcement policy YAML")
	fs.StringVar(&g.logLevel, "log-level", envOrDefault("CONTINUUM_LOG_LEVEL", "warn"), "log level")
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}
	rest := fs.Args()
	if len(rest) == 0 {
		usage(stderr)
		return 2
	}

	cmd, cmdArgs := rest[0], rest[1:]
	if cmd == "policy" {
		return handlePolicy(cmdArgs, stdout, stderr)
	}
	handler, ok := commands[cmd]
	if !ok {
		usage(stderr)
		return 2
	}

	ctx := context.Background()
	svc, closeFn, err := openService(ctx, g, stderr)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	defer func() { _ = closeFn() }()

	return handler(ctx, svc, cmdArgs, stdout, stderr)
}

func openService(ctx context.Context, g globals, stderr io.Writer) (*service.Service, func() error, error) {
	logger, err := observability.NewLogger(observability.LogConfig{Level: g.logLevel}, stderr)
	if err != nil {
		return nil, nil, err
	}
	store, closeFn, err := backend.OpenStore(ctx, g.store)
	if err != nil {
		return nil, nil, err
	}
	opts := []service.Option{service.WithLogger(logger)}
	if g.policyPath != "" {
		loaded, err := policy.LoadPolicy(g.policyPath)
		if err != nil {
			_ = closeFn()
			return nil, nil, err
		}
		opts = append(opts, service.WithPolicy(loaded.Policy))
	}
	return service.New(store, opts...), closeFn, nil
}

type commandFn func(ctx context.Context, svc *service.Service, args []string, stdout io.Writer, stderr io.Writer) int

var commands = map[string]commandFn{
	"commit":    handleCommit,
	"get":       handleGet,
	"list":      handleList,
	"status":    handleStatus,
	"supersede": handleSupersede,
	"inspect":   handleInspect,
	"enforce":   handleEnforce,
	"resolve":   handleResolve,
	"arbitrate": handleArbitrate,
	"analyze":   handleAnalyze,
}

// optionFlags collects -select and -reject options in the order given.
type optionFlags struct {
	options []types.Option
}

func (o *optionFlags) bind(fs *flag.FlagSet) {
	fs.Func("select", "selected option title (repeatable)", func(v string) error {
		o.options = append(o.options, types.Option{Title: v, Selected: true})
		return nil
	})
	fs.Func("reject", "rejected option as title or title=reason (repeatable)", func(v string) error {
		title, reason, _ := strings.Cut(v, "=")
		o.options = append(o.options, types.Option{Title: title, RejectedReason: reason})
		return nil
	})
}

type precedenceFlag struct {
	value *int
}

func (p *precedenceFlag) String() string {
	if p.value == nil {
		return ""
	}
	return strconv.Itoa(*p.value)
}

func (p *precedenceFlag) Set(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	p.value = &n
	return nil
}

func handleCommit(ctx context.Context, svc *service.Service, args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("commit", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var in decision.Draft
	var opts optionFlags
	var prec precedenceFlag
	var decisionType, overridePolicy string
	fs.StringVar(&in.Title, "title", "", "decision title")
	fs.StringVar(&in.Scope, "scope", "", "decision scope")
	fs.StringVar(&decisionType, "type", string(types.TypeInterpretation), "interpretation|rejection|preference|behavior_rule")
	fs.StringVar(&in.Rationale, "rationale", "", "rationale")
	fs.StringVar(&in.Key, "key", "", "binding key (defaults to title)")
	fs.StringVar(&overridePolicy, "override-policy", "", "invalid_by_default|warn|allow")
	fs.StringVar(&in.IssuerType, "issuer", "", "issuer type: system|human|agent")
	fs.StringVar(&in.Authority, "authority", "", "authority: admin|lead|member")
	fs.Var(&prec, "precedence", "explicit precedence")
	opts.bind(fs)
	activate := fs.Bool("activate", false, "activate after commit")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	in.DecisionType = types.DecisionType(decisionType)
	in.OverridePolicy = types.OverridePolicy(overridePolicy)
	in.Precedence = prec.value
	in.Options = opts.options

	d, err := svc.Commit(ctx, in)
	if err != nil {
		return fail(stderr, err)
	}
	if *activate {
		if d, err = svc.UpdateStatus(ctx, d.ID, types.StatusActive); err != nil {
			return fail(stderr, err)
		}
	}
	return writeJSON(stdout, stderr, d)
}

func handleGet(ctx context.Context, svc *service.Service, args []string, stdout io.Writer, stderr io.Writer) int {
	if len(args) != 1 {
		fmt.Fprintln(stderr, "get requires <decision_id>")
		return 2
	}
	d, err := svc.Get(ctx, args[0])
	if err != nil {
		return fail(stderr, err)
	}
	return writeJSON(stdout, stderr, d)
}

func handleList(ctx context.Context, svc *service.Service, args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	fs.SetOutput(stderr)
	scopeFilter := fs.String("scope", "", "scope filter, wildcards allowed")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	ds, err := svc.List(ctx, *scopeFilter)
	if err != nil {
		return fail(stderr, err)
	}
	return writeJSON(stdout, stderr, ds)
}

func handleStatus(ctx context.Context, svc *service.Service, args []string, stdout io.Writer, stderr io.Writer) int {
	if len(args) != 2 {
		fmt.Fprintln(stderr, "status requires <decision_id> <draft|active|superseded|archived>")
		return 2
	}
	d, err := svc.UpdateStatus(ctx, args[0], types.DecisionStatus(args[1]))
	if err != nil {
		return fail(stderr, err)
	}
	return writeJSON(stdout, stderr, d)
}

func handleSupersede(ctx context.Context, svc *service.Service, args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("supersede", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var in service.SupersedeInput
	var opts optionFlags
	var prec precedenceFlag
	var overridePolicy string
	fs.StringVar(&in.Title, "title", "", "replacement title")
	fs.StringVar(&in.Rationale, "rationale", "", "rationale")
	fs.StringVar(&in.Key, "key", "", "binding key (inherited when empty)")
	fs.StringVar(&overridePolicy, "override-policy", "", "invalid_by_default|warn|allow")
	fs.Var(&prec, "precedence", "explicit precedence")
	opts.bind(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "supersede requires <decision_id>")
		return 2
	}
	in.OverridePolicy = types.OverridePolicy(overridePolicy)
	in.Precedence = prec.value
	in.Options = opts.options

	d, err := svc.Supersede(ctx, fs.Arg(0), in)
	if err != nil {
		return fail(stderr, err)
	}
	return writeJSON(stdout, stderr, d)
}

func handleInspect(ctx context.Context, svc *service.Service, args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	fs.SetOutput(stderr)
	target := fs.String("scope", "", "target scope")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	res, err := svc.Inspect(ctx, *target)
	if err != nil {
		return fail(stderr, err)
	}
	return writeJSON(stdout, stderr, res)
}

// handleEnforce exits 1 on a block verdict so scripts can gate on it.
func handleEnforce(ctx context.Context, svc *service.Service, args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("enforce", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var action types.Action
	var actionType string
	var approvals []string
	target := fs.String("scope", "", "action scope")
	fs.StringVar(&actionType, "type", string(types.ActionGeneric), "code_change|migration|api_break|deployment|config_change|generic")
	fs.StringVar(&action.Description, "description", "", "action description")
	fs.Func("meta", "action metadata key=value (repeatable)", func(v string) error {
		k, val, ok := strings.Cut(v, "=")
		if !ok {
			return errors.New("expected key=value")
		}
		if action.Metadata == nil {
			action.Metadata = map[string]any{}
		}
		action.Metadata[k] = val
		return nil
	})
	fs.Func("approve", "override approver (repeatable)", func(v string) error {
		approvals = append(approvals, v)
		return nil
	})
	if err := fs.Parse(args); err != nil {
		return 2
	}
	action.Type = types.ActionType(actionType)

	var res types.EnforcementResult
	var err error
	if len(approvals) > 0 {
		res, err = svc.Override(ctx, action, *target, approvals)
	} else {
		res, err = svc.Enforce(ctx, action, *target)
	}
	if err != nil {
		return fail(stderr, err)
	}
	if code := writeJSON(stdout, stderr, res); code != 0 {
		return code
	}
	if res.Verdict == types.VerdictBlock {
		return 1
	}
	return 0
}

func handleResolve(ctx context.Context, svc *service.Service, args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("resolve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	target := fs.String("scope", "", "target scope")
	var candidates []types.Candidate
	fs.Func("candidate", "clarification candidate as id=title (repeatable)", func(v string) error {
		id, title, ok := strings.Cut(v, "=")
		if !ok {
			return errors.New("expected id=title")
		}
		candidates = append(candidates, types.Candidate{ID: id, Title: title})
		return nil
	})
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "resolve requires <query>")
		return 2
	}
	res, err := svc.Resolve(ctx, fs.Arg(0), *target, candidates)
	if err != nil {
		return fail(stderr, err)
	}
	return writeJSON(stdout, stderr, res)
}

func handleArbitrate(ctx context.Context, svc *service.Service, args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("arbitrate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	target := fs.String("scope", "", "target scope")
	bindingKey := fs.String("binding-key", "", "binding key")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *bindingKey == "" {
		fmt.Fprintln(stderr, "arbitrate requires -binding-key")
		return 2
	}
	res, err := svc.Arbitrate(ctx, *target, *bindingKey)
	if err != nil {
		return fail(stderr, err)
	}
	return writeJSON(stdout, stderr, res)
}

func handleAnalyze(ctx context.Context, svc *service.Service, args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	fs.SetOutput(stderr)
	target := fs.String("scope", "", "action scope for risk scoring")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "analyze requires <decision_id>")
		return 2
	}
	a, err := svc.Analyze(ctx, fs.Arg(0), *target)
	if err != nil {
		return fail(stderr, err)
	}
	return writeJSON(stdout, stderr, a)
}

func handlePolicy(args []string, stdout io.Writer, stderr io.Writer) int {
	if len(args) == 0 || args[0] != "lint" {
		usage(stderr)
		return 2
	}
	fs := flag.NewFlagSet("policy lint", flag.ContinueOnError)
	fs.SetOutput(stderr)
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "policy lint requires <policy_path>")
		return 2
	}
	loaded, err := policy.LoadPolicy(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	fmt.Fprintf(stdout, "ok policy_id=%s policy_hash=%s\n", loaded.Policy.PolicyID, loaded.Hash)
	return 0
}

func fail(stderr io.Writer, err error) int {
	fmt.Fprintln(stderr, err.Error())
	return 1
}

func writeJSON(stdout io.Writer, stderr io.Writer, v any) int {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fail(stderr, err)
	}
	return 0
}

func envOrDefault(key string, fallback string) string {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	return fallback
}

func usage(w io.Writer) {
	fmt.Fprint(w, `Continuum CLI

Usage:
  continuum [-store file|memory|sqlite|postgres] [-dir DIR] [-dsn DSN] [-policy PATH] <command>

Commands:
  commit -title T -scope S [-type TYPE] [-rationale R] [-key K] [-select OPT] [-reject OPT=REASON] [-activate]
  get <decision_id>
  list [-scope FILTER]
  status <decision_id> <draft|active|superseded|archived>
  supersede -title T [-rationale R] <decision_id>
  inspect -scope S
  enforce -scope S -type TYPE -description D [-meta k=v] [-approve NAME]
  resolve -scope S [-candidate id=title] <query>
  arbitrate -scope S -binding-key K
  analyze [-scope S] <decision_id>
  policy lint <policy_path>
`)
}
