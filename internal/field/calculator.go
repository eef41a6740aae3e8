package field

import "fmt"

// CalculatorType discriminates calculator configurations on the wire
// ("type" key).
type CalculatorType string

const (
	CalcExpression CalculatorType = "EXPRESSION"
	CalcBuiltin    CalculatorType = "BUILTIN"
	CalcCustom     CalculatorType = "CUSTOM"
)

// CalculatorConfig describes how a calculated field derives its value.
//
// EXPRESSION evaluates Expression with the field's dependencies bound as
// free variables. BUILTIN dispatches Function from the builtin registry with
// the dependency values as inputs and Params as static parameters. CUSTOM
// loads Name from the injected custom-calculator loader.
type CalculatorConfig struct {
	Type       CalculatorType `json:"type"`
	Expression string         `json:"expression,omitempty"`
	Function   string         `json:"function,omitempty"`
	Name       string         `json:"name,omitempty"`
	Params     map[string]any `json:"params,omitempty"`
}

// Validate checks the variant-specific required settings.
func (c *CalculatorConfig) Validate() error {
	switch c.Type {
	case CalcExpression:
		if c.Expression == "" {
			return fmt.Errorf("EXPRESSION calculator requires expression")
		}
	case CalcBuiltin:
		if c.Function == "" {
			return fmt.Errorf("BUILTIN calculator requires function")
		}
	case CalcCustom:
		if c.Name == "" {
			return fmt.Errorf("CUSTOM calculator requires name")
		}
	default:
		return fmt.Errorf("unknown calculator type %q", c.Type)
	}
	return nil
}
