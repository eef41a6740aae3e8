// Package calc evaluates calculated fields. Three dispatch modes exist:
// EXPRESSION compiles and runs an expression over the dependency bindings,
// BUILTIN dispatches a named function from the registry, and CUSTOM defers
// to an injected loader. Every runtime failure surfaces as a
// CalculationError annotated with the field name.
package calc

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/sirupsen/logrus"

	"github.com/ankitjan/rules-engine/internal/field"
)

// CalculationError reports a calculator that raised or produced an
// incompatible value.
type CalculationError struct {
	Field string
	Err   error
}

func (e *CalculationError) Error() string {
	return fmt.Sprintf("calc: field %q: %v", e.Field, e.Err)
}

func (e *CalculationError) Unwrap() error { return e.Err }

// Custom is an externally registered computation unit. Implementations must
// be reentrant: the engine may invoke the same Custom concurrently from
// independent executions and adds no synchronization on its behalf.
type Custom func(ctx context.Context, params map[string]any, bindings map[string]any) (any, error)

// CustomLoader resolves CUSTOM calculator names. It is an external
// collaborator; Load must fail for unknown names so configuration-time
// validation can reject them.
type CustomLoader interface {
	Load(name string) (Custom, error)
}

// Runtime dispatches calculator configurations. It is safe for concurrent
// use; compiled expressions are cached by source.
type Runtime struct {
	reg    *Registry
	loader CustomLoader
	log    *logrus.Entry

	mu       sync.Mutex
	programs map[string]*vm.Program
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithCustomLoader installs the loader backing CUSTOM calculators.
func WithCustomLoader(l CustomLoader) Option { return func(r *Runtime) { r.loader = l } }

// WithRegistry replaces the default builtin registry.
func WithRegistry(reg *Registry) Option { return func(r *Runtime) { r.reg = reg } }

// New creates a Runtime with the default builtin registry.
func New(opts ...Option) *Runtime {
	r := &Runtime{
		reg:      DefaultRegistry(),
		log:      logrus.WithField("component", "calc"),
		programs: make(map[string]*vm.Program),
	}
	for _, f := range opts {
		f(r)
	}
	return r
}

// Evaluate computes the value of the calculated field fc from a read-only
// snapshot of its dependency values.
func (r *Runtime) Evaluate(ctx context.Context, fc *field.Config, bindings map[string]any) (any, error) {
	cfg := fc.Calculator
	if cfg == nil {
		return nil, &CalculationError{Field: fc.Name, Err: fmt.Errorf("no calculator configured")}
	}
	var (
		out any
		err error
	)
	switch cfg.Type {
	case field.CalcExpression:
		out, err = r.evalExpression(cfg.Expression, bindings)
	case field.CalcBuiltin:
		out, err = r.evalBuiltin(cfg, fc.Dependencies, bindings)
	case field.CalcCustom:
		out, err = r.evalCustom(ctx, cfg, bindings)
	default:
		err = fmt.Errorf("unknown calculator type %q", cfg.Type)
	}
	if err != nil {
		return nil, &CalculationError{Field: fc.Name, Err: err}
	}
	return out, nil
}

// ValidateConfig checks a calculator configuration without running it:
// expressions must compile, builtins must exist with valid parameters, and
// customs must load.
func (r *Runtime) ValidateConfig(fc *field.Config) error {
	cfg := fc.Calculator
	if cfg == nil {
		return &CalculationError{Field: fc.Name, Err: fmt.Errorf("no calculator configured")}
	}
	if err := cfg.Validate(); err != nil {
		return &CalculationError{Field: fc.Name, Err: err}
	}
	switch cfg.Type {
	case field.CalcExpression:
		if _, err := r.compile(cfg.Expression); err != nil {
			return &CalculationError{Field: fc.Name, Err: err}
		}
	case field.CalcBuiltin:
		b, err := r.reg.Lookup(cfg.Function)
		if err != nil {
			return &CalculationError{Field: fc.Name, Err: err}
		}
		if err := b.ValidateParameters(cfg.Params); err != nil {
			return &CalculationError{Field: fc.Name, Err: err}
		}
	case field.CalcCustom:
		if r.loader == nil {
			return &CalculationError{Field: fc.Name, Err: fmt.Errorf("no custom calculator loader configured")}
		}
		if _, err := r.loader.Load(cfg.Name); err != nil {
			return &CalculationError{Field: fc.Name, Err: fmt.Errorf("custom calculator %q: %w", cfg.Name, err)}
		}
	}
	return nil
}

func (r *Runtime) compile(src string) (*vm.Program, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.programs[src]; ok {
		return p, nil
	}
	p, err := expr.Compile(src)
	if err != nil {
		return nil, fmt.Errorf("compile expression: %w", err)
	}
	r.programs[src] = p
	return p, nil
}

func (r *Runtime) evalExpression(src string, bindings map[string]any) (any, error) {
	p, err := r.compile(src)
	if err != nil {
		return nil, err
	}
	env := r.reg.ExpressionFuncs()
	for k, v := range bindings {
		env[k] = v
	}
	out, err := expr.Run(p, env)
	if err != nil {
		return nil, err
	}
	if f, ok := out.(float64); ok && (math.IsInf(f, 0) || math.IsNaN(f)) {
		return nil, fmt.Errorf("expression produced a non-finite number (division by zero?)")
	}
	return out, nil
}

func (r *Runtime) evalBuiltin(cfg *field.CalculatorConfig, deps []string, bindings map[string]any) (any, error) {
	b, err := r.reg.Lookup(cfg.Function)
	if err != nil {
		return nil, err
	}
	if err := b.ValidateParameters(cfg.Params); err != nil {
		return nil, err
	}
	inputs := make([]any, 0, len(deps))
	for _, dep := range deps {
		inputs = append(inputs, bindings[dep])
	}
	if b.MinInputs >= 0 && len(inputs) < b.MinInputs {
		return nil, fmt.Errorf("builtin %q needs at least %d inputs, got %d", b.Name, b.MinInputs, len(inputs))
	}
	if b.MaxInputs >= 0 && len(inputs) > b.MaxInputs {
		return nil, fmt.Errorf("builtin %q accepts at most %d inputs, got %d", b.Name, b.MaxInputs, len(inputs))
	}
	return b.Fn(cfg.Params, inputs)
}

func (r *Runtime) evalCustom(ctx context.Context, cfg *field.CalculatorConfig, bindings map[string]any) (any, error) {
	if r.loader == nil {
		return nil, fmt.Errorf("no custom calculator loader configured")
	}
	fn, err := r.loader.Load(cfg.Name)
	if err != nil {
		return nil, fmt.Errorf("custom calculator %q: %w", cfg.Name, err)
	}
	return fn(ctx, cfg.Params, bindings)
}

// LoaderFunc adapts a function to the CustomLoader interface.
type LoaderFunc func(name string) (Custom, error)

// Load implements CustomLoader.
func (f LoaderFunc) Load(name string) (Custom, error) { return f(name) }
