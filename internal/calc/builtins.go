package calc

import (
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/spf13/cast"

	"github.com/ankitjan/rules-engine/internal/field"
)

// decCtx governs decimal arithmetic inside builtins.
var decCtx = apd.BaseContext.WithPrecision(34)

// ParamSpec declares a static parameter of a builtin function.
type ParamSpec struct {
	Name     string
	Type     field.Type
	Required bool
}

// Builtin is one registered function. Inputs are the dependency-field
// values in declaration order; Params come from the calculator config.
type Builtin struct {
	Name      string
	MinInputs int // minimum dependency inputs; -1 for no bound
	MaxInputs int // maximum dependency inputs; -1 for unbounded
	Params    []ParamSpec
	Fn        func(params map[string]any, inputs []any) (any, error)
}

// ValidateParameters checks the static parameters against the declaration.
func (b *Builtin) ValidateParameters(params map[string]any) error {
	for _, spec := range b.Params {
		v, present := params[spec.Name]
		if !present {
			if spec.Required {
				return fmt.Errorf("builtin %q: missing required parameter %q", b.Name, spec.Name)
			}
			continue
		}
		if spec.Type != "" {
			if _, err := coerceParam(v, spec.Type); err != nil {
				return fmt.Errorf("builtin %q: parameter %q: %w", b.Name, spec.Name, err)
			}
		}
	}
	return nil
}

func coerceParam(v any, t field.Type) (any, error) {
	switch t {
	case field.TypeNumber:
		return cast.ToFloat64E(v)
	case field.TypeString:
		return cast.ToStringE(v)
	case field.TypeBoolean:
		return cast.ToBoolE(v)
	}
	return v, nil
}

// Registry holds builtin functions by name.
type Registry struct {
	funcs map[string]*Builtin
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry { return &Registry{funcs: make(map[string]*Builtin)} }

// Register adds or replaces a builtin.
func (r *Registry) Register(b *Builtin) { r.funcs[b.Name] = b }

// Lookup finds a builtin by name.
func (r *Registry) Lookup(name string) (*Builtin, error) {
	b, ok := r.funcs[name]
	if !ok {
		return nil, fmt.Errorf("unknown builtin function %q", name)
	}
	return b, nil
}

// ExpressionFuncs exposes the registry to expression environments as
// positional functions. Parameter-taking builtins (dateAdd, dateDiff,
// concat) accept their parameters as trailing arguments.
func (r *Registry) ExpressionFuncs() map[string]any {
	env := map[string]any{
		"sum":      func(args ...any) (any, error) { return sumFn(nil, args) },
		"avg":      func(args ...any) (any, error) { return avgFn(nil, args) },
		"min":      func(args ...any) (any, error) { return minFn(nil, args) },
		"max":      func(args ...any) (any, error) { return maxFn(nil, args) },
		"count":    func(args ...any) (any, error) { return countFn(nil, args) },
		"coalesce": func(args ...any) (any, error) { return coalesceFn(nil, args) },
		"upper": func(v any) (any, error) {
			return upperFn(nil, []any{v})
		},
		"lower": func(v any) (any, error) {
			return lowerFn(nil, []any{v})
		},
		"concat": func(args ...any) (any, error) {
			return concatFn(nil, args)
		},
		"dateAdd": func(date any, amount float64, unit string) (any, error) {
			return dateAddFn(map[string]any{"amount": amount, "unit": unit}, []any{date})
		},
		"dateDiff": func(a, b any, unit string) (any, error) {
			return dateDiffFn(map[string]any{"unit": unit}, []any{a, b})
		},
	}
	return env
}

// DefaultRegistry returns the standard builtin set.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(&Builtin{Name: "sum", MinInputs: 1, MaxInputs: -1, Fn: sumFn})
	r.Register(&Builtin{Name: "avg", MinInputs: 1, MaxInputs: -1, Fn: avgFn})
	r.Register(&Builtin{Name: "min", MinInputs: 1, MaxInputs: -1, Fn: minFn})
	r.Register(&Builtin{Name: "max", MinInputs: 1, MaxInputs: -1, Fn: maxFn})
	r.Register(&Builtin{Name: "count", MinInputs: 1, MaxInputs: -1, Fn: countFn})
	r.Register(&Builtin{Name: "coalesce", MinInputs: 1, MaxInputs: -1, Fn: coalesceFn})
	r.Register(&Builtin{Name: "upper", MinInputs: 1, MaxInputs: 1, Fn: upperFn})
	r.Register(&Builtin{Name: "lower", MinInputs: 1, MaxInputs: 1, Fn: lowerFn})
	r.Register(&Builtin{
		Name: "concat", MinInputs: 1, MaxInputs: -1,
		Params: []ParamSpec{{Name: "separator", Type: field.TypeString}},
		Fn:     concatFn,
	})
	r.Register(&Builtin{
		Name: "dateAdd", MinInputs: 1, MaxInputs: 1,
		Params: []ParamSpec{
			{Name: "amount", Type: field.TypeNumber, Required: true},
			{Name: "unit", Type: field.TypeString, Required: true},
		},
		Fn: dateAddFn,
	})
	r.Register(&Builtin{
		Name: "dateDiff", MinInputs: 2, MaxInputs: 2,
		Params: []ParamSpec{{Name: "unit", Type: field.TypeString}},
		Fn:     dateDiffFn,
	})
	return r
}

// flatten expands slice inputs so sum over an ARRAY dependency works the
// same as sum over several NUMBER dependencies.
func flatten(inputs []any) []any {
	out := make([]any, 0, len(inputs))
	for _, in := range inputs {
		if list, ok := in.([]any); ok {
			out = append(out, list...)
			continue
		}
		out = append(out, in)
	}
	return out
}

func toDec(v any) (*apd.Decimal, error) {
	s, err := cast.ToStringE(v)
	if err != nil {
		return nil, fmt.Errorf("value %v is not numeric", v)
	}
	d, _, err := apd.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("value %q is not numeric", s)
	}
	return d, nil
}

func decResult(d *apd.Decimal) (any, error) {
	f, err := d.Float64()
	if err != nil {
		return nil, err
	}
	return f, nil
}

func sumFn(_ map[string]any, inputs []any) (any, error) {
	total := apd.New(0, 0)
	for _, in := range flatten(inputs) {
		d, err := toDec(in)
		if err != nil {
			return nil, err
		}
		if _, err := decCtx.Add(total, total, d); err != nil {
			return nil, err
		}
	}
	return decResult(total)
}

func avgFn(params map[string]any, inputs []any) (any, error) {
	vals := flatten(inputs)
	if len(vals) == 0 {
		return nil, fmt.Errorf("avg of no values")
	}
	totalAny, err := sumFn(params, vals)
	if err != nil {
		return nil, err
	}
	total := apd.New(0, 0)
	if _, _, err := total.SetString(cast.ToString(totalAny)); err != nil {
		return nil, err
	}
	out := new(apd.Decimal)
	if _, err := decCtx.Quo(out, total, apd.New(int64(len(vals)), 0)); err != nil {
		return nil, err
	}
	return decResult(out)
}

func minFn(_ map[string]any, inputs []any) (any, error) { return extremum(inputs, -1) }
func maxFn(_ map[string]any, inputs []any) (any, error) { return extremum(inputs, 1) }

func extremum(inputs []any, sign int) (any, error) {
	vals := flatten(inputs)
	if len(vals) == 0 {
		return nil, fmt.Errorf("extremum of no values")
	}
	best, err := toDec(vals[0])
	if err != nil {
		return nil, err
	}
	for _, in := range vals[1:] {
		d, err := toDec(in)
		if err != nil {
			return nil, err
		}
		if d.Cmp(best) == sign {
			best = d
		}
	}
	return decResult(best)
}

func countFn(_ map[string]any, inputs []any) (any, error) {
	if len(inputs) == 1 {
		if list, ok := inputs[0].([]any); ok {
			return float64(len(list)), nil
		}
	}
	n := 0
	for _, in := range inputs {
		if in != nil {
			n++
		}
	}
	return float64(n), nil
}

func coalesceFn(_ map[string]any, inputs []any) (any, error) {
	for _, in := range inputs {
		if in != nil {
			return in, nil
		}
	}
	return nil, nil
}

func upperFn(_ map[string]any, inputs []any) (any, error) {
	s, err := cast.ToStringE(inputs[0])
	if err != nil {
		return nil, err
	}
	return strings.ToUpper(s), nil
}

func lowerFn(_ map[string]any, inputs []any) (any, error) {
	s, err := cast.ToStringE(inputs[0])
	if err != nil {
		return nil, err
	}
	return strings.ToLower(s), nil
}

func concatFn(params map[string]any, inputs []any) (any, error) {
	sep := cast.ToString(params["separator"])
	parts := make([]string, 0, len(inputs))
	for _, in := range flatten(inputs) {
		s, err := cast.ToStringE(in)
		if err != nil {
			return nil, err
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, sep), nil
}

func toTime(v any) (time.Time, error) {
	switch tv := v.(type) {
	case time.Time:
		return tv, nil
	case string:
		for _, layout := range []string{"2006-01-02", time.RFC3339, time.RFC3339Nano} {
			if t, err := time.Parse(layout, tv); err == nil {
				return t, nil
			}
		}
	}
	return time.Time{}, fmt.Errorf("value %v is not a date", v)
}

func dateAddFn(params map[string]any, inputs []any) (any, error) {
	t, err := toTime(inputs[0])
	if err != nil {
		return nil, err
	}
	amount, err := cast.ToIntE(params["amount"])
	if err != nil {
		return nil, fmt.Errorf("dateAdd amount: %w", err)
	}
	switch unit := strings.ToLower(cast.ToString(params["unit"])); unit {
	case "days", "day":
		return t.AddDate(0, 0, amount), nil
	case "months", "month":
		return t.AddDate(0, amount, 0), nil
	case "years", "year":
		return t.AddDate(amount, 0, 0), nil
	case "hours", "hour":
		return t.Add(time.Duration(amount) * time.Hour), nil
	case "minutes", "minute":
		return t.Add(time.Duration(amount) * time.Minute), nil
	default:
		return nil, fmt.Errorf("dateAdd: unknown unit %q", unit)
	}
}

func dateDiffFn(params map[string]any, inputs []any) (any, error) {
	a, err := toTime(inputs[0])
	if err != nil {
		return nil, err
	}
	b, err := toTime(inputs[1])
	if err != nil {
		return nil, err
	}
	d := b.Sub(a)
	unit := strings.ToLower(cast.ToString(params["unit"]))
	if unit == "" {
		unit = "days"
	}
	switch unit {
	case "days", "day":
		return d.Hours() / 24, nil
	case "hours", "hour":
		return d.Hours(), nil
	case "minutes", "minute":
		return d.Minutes(), nil
	case "seconds", "second":
		return d.Seconds(), nil
	default:
		return nil, fmt.Errorf("dateDiff: unknown unit %q", unit)
	}
}
