// Package resolver plans and executes field resolution: static values seed
// the result, independent fetches run concurrently through a bounded
// worker pool, dependent fetches run serially per chain, and calculated
// fields evaluate last in topological order. A per-execution cache
// short-circuits identical fetches.
package resolver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ankitjan/rules-engine/internal/calc"
	"github.com/ankitjan/rules-engine/internal/dataservice"
	"github.com/ankitjan/rules-engine/internal/depgraph"
	"github.com/ankitjan/rules-engine/internal/eventbus"
	"github.com/ankitjan/rules-engine/internal/events"
	"github.com/ankitjan/rules-engine/internal/field"
	"github.com/ankitjan/rules-engine/internal/mapper"
	"github.com/ankitjan/rules-engine/internal/store"
)

// Fetcher executes one data-service invocation. *dataservice.Client
// satisfies it; tests substitute call-recording fakes.
type Fetcher interface {
	Execute(ctx context.Context, cfg *field.ServiceConfig, params map[string]any) (any, error)
}

// Context carries the caller-supplied information driving one resolution.
// Input values are authoritative: a field whose value the caller supplies
// is never fetched or calculated.
type Context struct {
	EntityID   string
	EntityType string
	Inputs     map[string]any
	Metadata   map[string]any
	// CacheKey, when set, scopes the field cache instead of the derived
	// (entity, time-bucket) key, letting related executions share fetches.
	CacheKey string
}

// Result is the outcome of one resolution. Values holds every resolved
// field. Errors holds per-field failures for required fields without a
// default; those fields have no entry in Values.
type Result struct {
	Values map[string]any
	Errors map[string]error
}

// Plan pairs the dependency graph with its partition into resolution steps.
type Plan struct {
	Graph *depgraph.Graph
	Steps *depgraph.Plan
}

// Engine resolves field values. Safe for concurrent use; each Resolve call
// is independent except for the shared field cache.
type Engine struct {
	fields  store.FieldConfigStore
	fetcher Fetcher
	calc    *calc.Runtime
	opts    *Options
	cache   *fieldCache
	log     *logrus.Entry
}

// New creates a resolution engine.
func New(fields store.FieldConfigStore, fetcher Fetcher, calcrt *calc.Runtime, opts ...Option) *Engine {
	o := defaultOptions()
	for _, f := range opts {
		f(o)
	}
	return &Engine{
		fields:  fields,
		fetcher: fetcher,
		calc:    calcrt,
		opts:    o,
		cache:   newFieldCache(o.CacheTTL, o.now),
		log:     logrus.WithField("component", "resolver"),
	}
}

// BuildPlan loads the configurations for the named fields plus their
// transitive dependencies and partitions them into resolution steps.
// Names without a configuration must be satisfied by rc.Inputs.
func (e *Engine) BuildPlan(ctx context.Context, names []string, rc *Context) (*Plan, error) {
	configs, err := e.loadConfigs(ctx, names, rc)
	if err != nil {
		return nil, err
	}
	g, err := depgraph.Build(configs)
	if err != nil {
		return nil, err
	}
	available := make(map[string]struct{}, len(rc.Inputs))
	for n := range rc.Inputs {
		available[n] = struct{}{}
	}
	steps, err := g.BuildPlan(available)
	if err != nil {
		return nil, err
	}
	return &Plan{Graph: g, Steps: steps}, nil
}

// Resolve builds and executes a plan for the named fields.
func (e *Engine) Resolve(ctx context.Context, names []string, rc *Context) (*Result, error) {
	plan, err := e.BuildPlan(ctx, names, rc)
	if err != nil {
		return nil, err
	}
	return e.ExecutePlan(ctx, plan, rc)
}

// loadConfigs fetches configurations for the requested names and,
// iteratively, for every dependency they introduce. A requested name with
// neither a configuration nor a caller-supplied value is an error.
func (e *Engine) loadConfigs(ctx context.Context, names []string, rc *Context) ([]*field.Config, error) {
	loaded := make(map[string]*field.Config)
	pending := append([]string(nil), names...)
	requested := make(map[string]struct{}, len(names))
	for _, n := range names {
		requested[n] = struct{}{}
	}
	for len(pending) > 0 {
		batch := pending
		pending = nil
		configs, err := e.fields.ListByNames(ctx, batch)
		if err != nil {
			return nil, err
		}
		found := make(map[string]struct{}, len(configs))
		for _, cfg := range configs {
			found[cfg.Name] = struct{}{}
			if _, seen := loaded[cfg.Name]; seen {
				continue
			}
			loaded[cfg.Name] = cfg
			for _, dep := range cfg.DependsOn() {
				if _, seen := loaded[dep]; !seen {
					pending = append(pending, dep)
				}
			}
		}
		for _, n := range batch {
			if _, ok := found[n]; ok {
				continue
			}
			if _, have := rc.Inputs[n]; have {
				continue
			}
			if _, wasRequested := requested[n]; wasRequested {
				return nil, fmt.Errorf("field %q: %w", n, store.ErrFieldConfigNotFound)
			}
			// A dependency without a config or input surfaces at plan time.
		}
	}
	out := make([]*field.Config, 0, len(loaded))
	for _, cfg := range loaded {
		out = append(out, cfg)
	}
	return out, nil
}

// execution is the mutable state of one ExecutePlan call. The value map
// and error map are the only cross-goroutine shared state; both are
// guarded by mu.
type execution struct {
	mu      sync.Mutex
	values  map[string]any
	errs    map[string]error
	execKey string
	rc      *Context
}

func (x *execution) set(name string, v any) {
	x.mu.Lock()
	x.values[name] = v
	x.mu.Unlock()
}

func (x *execution) fail(name string, err error) {
	x.mu.Lock()
	x.errs[name] = err
	x.mu.Unlock()
}

// params snapshots the current values plus entity identity and metadata
// for parameterizing a fetch.
func (x *execution) params() map[string]any {
	x.mu.Lock()
	defer x.mu.Unlock()
	out := make(map[string]any, len(x.values)+len(x.rc.Metadata)+2)
	for k, v := range x.rc.Metadata {
		out[k] = v
	}
	if x.rc.EntityID != "" {
		out["entityId"] = x.rc.EntityID
	}
	if x.rc.EntityType != "" {
		out["entityType"] = x.rc.EntityType
	}
	for k, v := range x.values {
		out[k] = v
	}
	return out
}

func (x *execution) snapshot() map[string]any {
	x.mu.Lock()
	defer x.mu.Unlock()
	out := make(map[string]any, len(x.values))
	for k, v := range x.values {
		out[k] = v
	}
	return out
}

// ExecutePlan runs a previously built plan. The ordering guarantee: every
// dependency of a field is resolved (or defaulted) before the field itself
// is fetched or computed.
func (e *Engine) ExecutePlan(ctx context.Context, plan *Plan, rc *Context) (*Result, error) {
	start := time.Now()
	x := &execution{
		values:  make(map[string]any),
		errs:    make(map[string]error),
		execKey: e.cache.executionKey(rc.CacheKey, rc.EntityID, rc.EntityType),
		rc:      rc,
	}
	var planned []string
	planned = append(planned, plan.Steps.Static...)
	for _, g := range plan.Steps.Groups {
		planned = append(planned, g.Fields...)
	}
	for _, c := range plan.Steps.Chains {
		planned = append(planned, c.Fields...)
	}
	planned = append(planned, plan.Steps.Calculated...)
	eventbus.Publish(ctx, events.ResolveStart{Fields: planned})

	for k, v := range rc.Inputs {
		x.values[k] = v
	}
	for _, name := range plan.Steps.Static {
		cfg := plan.Graph.Config(name)
		if _, have := x.values[name]; !have {
			x.values[name] = cfg.DefaultValue
		}
	}

	err := e.runFetches(ctx, plan, x)
	if err == nil {
		err = e.runCalculations(ctx, plan, x)
	}

	eventbus.Publish(ctx, events.ResolveFinish{
		Resolved: len(x.values),
		Failed:   len(x.errs),
		Duration: time.Since(start),
	})
	if err != nil {
		return &Result{Values: x.snapshot(), Errors: x.errs}, err
	}
	return &Result{Values: x.values, Errors: x.errs}, nil
}

// runFetches executes the parallel groups in order, then the sequential
// chains concurrently with one another.
func (e *Engine) runFetches(ctx context.Context, plan *Plan, x *execution) error {
	sem := make(chan struct{}, e.opts.WorkerLimit)

	for _, group := range plan.Steps.Groups {
		if err := ctx.Err(); err != nil {
			return err
		}
		var wg sync.WaitGroup
		for _, name := range group.Fields {
			if ctx.Err() != nil {
				break
			}
			wg.Add(1)
			go func(name string) {
				defer wg.Done()
				sem <- struct{}{}
				defer func() { <-sem }()
				e.resolveFetched(ctx, plan.Graph.Config(name), x)
			}(name)
		}
		wg.Wait()
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	var wg sync.WaitGroup
	for _, chain := range plan.Steps.Chains {
		wg.Add(1)
		go func(fields []string) {
			defer wg.Done()
			for _, name := range fields {
				if ctx.Err() != nil {
					return
				}
				sem <- struct{}{}
				e.resolveFetched(ctx, plan.Graph.Config(name), x)
				<-sem
			}
		}(chain.Fields)
	}
	wg.Wait()
	return ctx.Err()
}

// resolveFetched resolves one fetched field: cache, then data service plus
// mapper extraction and type coercion. Failure policy: a required field
// with no default records an error; anything else degrades to the default
// value (or null) with a warning.
func (e *Engine) resolveFetched(ctx context.Context, cfg *field.Config, x *execution) {
	key := cacheKey(x.execKey, cfg.Name)
	if v, ok := e.cache.get(key); ok {
		eventbus.Publish(ctx, events.CacheHit{Field: cfg.Name})
		x.set(cfg.Name, v)
		return
	}

	fetchCtx := dataservice.WithFieldName(ctx, cfg.Name)
	raw, err := e.fetcher.Execute(fetchCtx, cfg.DataService, x.params())
	var value any
	if err == nil {
		value, err = mapper.Extract(raw, cfg.MapperExpression)
	}
	if err == nil {
		value, err = mapper.ConvertType(value, cfg.Type)
	}
	if err != nil {
		e.degrade(cfg, err, x)
		return
	}
	x.set(cfg.Name, value)
	e.cache.put(key, value)
}

// runCalculations evaluates calculated fields in topological order against
// the current value snapshot.
func (e *Engine) runCalculations(ctx context.Context, plan *Plan, x *execution) error {
	for _, name := range plan.Steps.Calculated {
		if err := ctx.Err(); err != nil {
			return err
		}
		cfg := plan.Graph.Config(name)
		value, err := e.calc.Evaluate(ctx, cfg, x.snapshot())
		if err == nil {
			value, err = mapper.ConvertType(value, cfg.Type)
		}
		if err != nil {
			e.degrade(cfg, err, x)
			continue
		}
		x.set(name, value)
	}
	return nil
}

func (e *Engine) degrade(cfg *field.Config, err error, x *execution) {
	if cfg.IsRequired && cfg.DefaultValue == nil {
		x.fail(cfg.Name, err)
		return
	}
	e.log.WithField("field", cfg.Name).WithError(err).Warn("field resolution degraded to default")
	x.set(cfg.Name, cfg.DefaultValue)
}
