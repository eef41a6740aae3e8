// Package engine orchestrates rule execution: load the rule, resolve the
// fields it references, evaluate the tree, and package the outcome with
// timing, traces, and a classified error kind.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ankitjan/rules-engine/internal/calc"
	"github.com/ankitjan/rules-engine/internal/dataservice"
	"github.com/ankitjan/rules-engine/internal/depgraph"
	"github.com/ankitjan/rules-engine/internal/evaluator"
	"github.com/ankitjan/rules-engine/internal/eventbus"
	"github.com/ankitjan/rules-engine/internal/events"
	"github.com/ankitjan/rules-engine/internal/execid"
	"github.com/ankitjan/rules-engine/internal/field"
	"github.com/ankitjan/rules-engine/internal/mapper"
	"github.com/ankitjan/rules-engine/internal/resolver"
	"github.com/ankitjan/rules-engine/internal/rule"
	"github.com/ankitjan/rules-engine/internal/store"
)

// State is the execution lifecycle. ERRORED is terminal and carries the
// originating error kind in the result.
type State string

const (
	StateLoaded     State = "LOADED"
	StateResolving  State = "RESOLVING"
	StateEvaluating State = "EVALUATING"
	StateDone       State = "DONE"
	StateErrored    State = "ERRORED"
)

// ErrorKind classifies execution failures into the closed set surfaced to
// callers.
type ErrorKind string

const (
	KindNone               ErrorKind = ""
	KindValidation         ErrorKind = "ValidationFailure"
	KindRuleNotFound       ErrorKind = "RuleNotFound"
	KindFieldConfigMissing ErrorKind = "FieldConfigNotFound"
	KindEntityTypeMissing  ErrorKind = "EntityTypeNotFound"
	KindCircularDependency ErrorKind = "CircularDependency"
	KindFieldMapping       ErrorKind = "FieldMappingFailure"
	KindCalculation        ErrorKind = "CalculationFailure"
	KindDataService        ErrorKind = "DataServiceFailure"
	KindAuth               ErrorKind = "AuthFailure"
	KindTimeout            ErrorKind = "Timeout"
	KindCancelled          ErrorKind = "Cancelled"
)

// Classify maps an error chain to its kind.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.Is(err, store.ErrRuleNotFound):
		return KindRuleNotFound
	case errors.Is(err, store.ErrFieldConfigNotFound):
		return KindFieldConfigMissing
	case errors.Is(err, store.ErrEntityTypeNotFound):
		return KindEntityTypeMissing
	}
	var (
		cycleErr   *depgraph.CycleError
		mapErr     *mapper.MappingError
		calcErr    *calc.CalculationError
		authErr    *dataservice.AuthError
		serviceErr *dataservice.ServiceError
		validation rule.ValidationError
	)
	switch {
	case errors.As(err, &cycleErr):
		return KindCircularDependency
	case errors.As(err, &authErr):
		return KindAuth
	case errors.As(err, &calcErr):
		return KindCalculation
	case errors.As(err, &mapErr):
		return KindFieldMapping
	case errors.As(err, &serviceErr):
		return KindDataService
	case errors.As(err, &validation):
		return KindValidation
	}
	return KindValidation
}

// Result is the user-visible outcome of one rule execution. When Err is
// set, Outcome is always false and Traces reflect how far evaluation
// proceeded.
type Result struct {
	RuleID         string
	RuleName       string
	Outcome        bool
	Err            error
	ErrorKind      ErrorKind
	State          State
	Duration       time.Duration
	Traces         []evaluator.Trace
	ResolvedValues map[string]any
}

// ExecOptions controls one execution.
type ExecOptions struct {
	IncludeTraces bool
}

// BatchOptions controls executeBatch.
type BatchOptions struct {
	// StopOnFirstFailure stops after the first rule whose outcome is
	// false without an error.
	StopOnFirstFailure bool
	IncludeTraces      bool
}

// Engine is the rule execution orchestrator.
type Engine struct {
	rules    store.RuleStore
	fields   store.FieldConfigStore
	resolver *resolver.Engine
	calc     *calc.Runtime
	log      *logrus.Entry
}

// New wires the orchestrator. The calc runtime is only needed for
// configuration-time validation; execution goes through the resolver.
func New(rules store.RuleStore, fields store.FieldConfigStore, res *resolver.Engine, calcrt *calc.Runtime) *Engine {
	return &Engine{
		rules:    rules,
		fields:   fields,
		resolver: res,
		calc:     calcrt,
		log:      logrus.WithField("component", "engine"),
	}
}

// ExecuteRule loads a rule by id and executes it against the context.
func (e *Engine) ExecuteRule(ctx context.Context, ruleID string, rc *resolver.Context, opts ExecOptions) *Result {
	start := time.Now()
	def, err := e.rules.GetRuleByID(ctx, ruleID)
	if err != nil {
		return &Result{
			RuleID: ruleID, Outcome: false, Err: err, ErrorKind: Classify(err),
			State: StateErrored, Duration: time.Since(start),
		}
	}
	return e.execute(ctx, def, rc, opts, start)
}

// ExecuteWithDefinition executes an ad-hoc rule definition.
func (e *Engine) ExecuteWithDefinition(ctx context.Context, def *rule.Definition, rc *resolver.Context, opts ExecOptions) *Result {
	return e.execute(ctx, def, rc, opts, time.Now())
}

// ExecuteBatch evaluates each rule against the same context. A rule's
// failure yields a per-rule error result without aborting the batch; with
// StopOnFirstFailure, the batch stops after the first clean false outcome.
func (e *Engine) ExecuteBatch(ctx context.Context, ruleIDs []string, rc *resolver.Context, opts BatchOptions) []*Result {
	out := make([]*Result, 0, len(ruleIDs))
	for _, id := range ruleIDs {
		res := e.ExecuteRule(ctx, id, rc, ExecOptions{IncludeTraces: opts.IncludeTraces})
		out = append(out, res)
		if opts.StopOnFirstFailure && res.Err == nil && !res.Outcome {
			break
		}
	}
	return out
}

func (e *Engine) execute(ctx context.Context, def *rule.Definition, rc *resolver.Context, opts ExecOptions, start time.Time) *Result {
	ctx, id := execid.NewContext(ctx)
	res := &Result{RuleID: def.ID, RuleName: def.Name, State: StateLoaded}
	eventbus.Publish(ctx, events.ExecStart{RuleID: def.ID, RuleName: def.Name})
	e.log.WithFields(logrus.Fields{"rule": def.ID, "execution": id}).Debug("execution started")

	finish := func() *Result {
		res.Duration = time.Since(start)
		eventbus.Publish(ctx, events.ExecFinish{
			RuleID: def.ID, RuleName: def.Name,
			Outcome: res.Outcome, ErrorKind: string(res.ErrorKind), Duration: res.Duration,
		})
		return res
	}
	failWith := func(err error) *Result {
		res.Outcome = false
		res.Err = err
		res.ErrorKind = Classify(err)
		res.State = StateErrored
		return finish()
	}

	if err := rule.Validate(def.Root); err != nil {
		return failWith(err)
	}

	res.State = StateResolving
	referenced := rule.ReferencedFields(def.Root)
	resolved, err := e.resolver.Resolve(ctx, referenced, rc)
	if resolved != nil {
		res.ResolvedValues = resolved.Values
	}
	if err != nil {
		return failWith(err)
	}

	// Resolved values win over caller-supplied ones.
	values := make(map[string]any, len(rc.Inputs)+len(resolved.Values))
	for k, v := range rc.Inputs {
		values[k] = v
	}
	for k, v := range resolved.Values {
		values[k] = v
	}
	res.ResolvedValues = values

	res.State = StateEvaluating
	if opts.IncludeTraces {
		res.Outcome, res.Traces = evaluator.EvaluateWithTrace(def.Root, values)
	} else {
		res.Outcome = evaluator.Evaluate(def.Root, values)
	}

	// A required field that failed to resolve forces a false outcome with
	// the originating error, however far evaluation proceeded.
	if len(resolved.Errors) > 0 {
		var firstErr error
		for _, n := range referenced {
			if ferr, ok := resolved.Errors[n]; ok {
				firstErr = ferr
				break
			}
		}
		if firstErr == nil {
			for _, ferr := range resolved.Errors {
				firstErr = ferr
				break
			}
		}
		res.Outcome = false
		res.Err = firstErr
		res.ErrorKind = Classify(firstErr)
		res.State = StateErrored
		return finish()
	}

	res.State = StateDone
	return finish()
}

// Validate checks a rule definition before execution: structure, operator
// compatibility with the referenced fields' declared types, and the
// calculated-field dependency graph.
func (e *Engine) Validate(ctx context.Context, def *rule.Definition) error {
	if err := rule.Validate(def.Root); err != nil {
		return err
	}
	var out rule.ValidationError
	names := rule.ReferencedFields(def.Root)
	configs, err := e.fields.ListByNames(ctx, names)
	if err != nil {
		return err
	}
	byName := make(map[string]field.Type, len(configs))
	for _, cfg := range configs {
		byName[cfg.Name] = cfg.Type
	}
	checkOperatorTypes(def.Root, "root", byName, &out)

	// Calculated fields must have existing dependencies and an acyclic
	// graph; Build reports cycles, the plan step reports unknown names.
	all := configs
	seen := make(map[string]struct{}, len(configs))
	for _, cfg := range configs {
		seen[cfg.Name] = struct{}{}
	}
	pending := make([]string, 0)
	for _, cfg := range configs {
		pending = append(pending, cfg.DependsOn()...)
	}
	for len(pending) > 0 {
		var next []string
		batch := make([]string, 0, len(pending))
		for _, n := range pending {
			if _, ok := seen[n]; !ok {
				seen[n] = struct{}{}
				batch = append(batch, n)
			}
		}
		deps, lerr := e.fields.ListByNames(ctx, batch)
		if lerr != nil {
			return lerr
		}
		for _, cfg := range deps {
			all = append(all, cfg)
			next = append(next, cfg.DependsOn()...)
		}
		pending = next
	}
	if _, err := depgraph.Build(all); err != nil {
		return err
	}
	for _, cfg := range all {
		if cfg.IsCalculated {
			if cerr := e.calc.ValidateConfig(cfg); cerr != nil {
				return cerr
			}
		}
	}
	if len(out) > 0 {
		return out
	}
	return nil
}

// checkOperatorTypes verifies each condition's operator against the
// declared type of the referenced field. Fields without a configuration
// are skipped; their values come from caller input with unknown type.
func checkOperatorTypes(g *rule.Group, path string, types map[string]field.Type, out *rule.ValidationError) {
	for i, item := range g.Items {
		itemPath := fmt.Sprintf("%s.rules[%d]", path, i)
		switch {
		case item.Group != nil:
			checkOperatorTypes(item.Group, itemPath, types, out)
		case item.Condition != nil:
			t, known := types[item.Condition.Field]
			if !known {
				continue
			}
			if !rule.CompatibleWith(item.Condition.Operator, t) {
				*out = append(*out, &rule.Violation{
					Message: fmt.Sprintf("operator %s is not applicable to %s field %q",
						item.Condition.Operator, t, item.Condition.Field),
					Path: itemPath,
				})
			}
		}
	}
}
