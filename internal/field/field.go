// Package field defines the configuration model for fields: how a field's
// value is typed, fetched from a data service, extracted from a response,
// or calculated from other fields. Configurations are read-only snapshots
// for the lifetime of one rule execution; the engine never mutates them.
package field

import (
	"fmt"
	"regexp"
)

// Type is the declared value type of a field.
type Type string

const (
	TypeString  Type = "STRING"
	TypeNumber  Type = "NUMBER"
	TypeDate    Type = "DATE"
	TypeBoolean Type = "BOOLEAN"
	TypeArray   Type = "ARRAY"
	TypeObject  Type = "OBJECT"
)

// KnownType reports whether t is one of the closed type set.
func KnownType(t Type) bool {
	switch t {
	case TypeString, TypeNumber, TypeDate, TypeBoolean, TypeArray, TypeObject:
		return true
	}
	return false
}

var nameRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// Config describes one field.
type Config struct {
	Name             string            `json:"name"`
	Type             Type              `json:"type"`
	Description      string            `json:"description,omitempty"`
	DataService      *ServiceConfig    `json:"dataServiceConfig,omitempty"`
	MapperExpression string            `json:"mapperExpression,omitempty"`
	IsCalculated     bool              `json:"isCalculated"`
	Calculator       *CalculatorConfig `json:"calculatorConfig,omitempty"`
	Dependencies     []string          `json:"dependencies,omitempty"`
	DefaultValue     any               `json:"defaultValue,omitempty"`
	IsRequired       bool              `json:"isRequired"`
}

// IsFetched reports whether the field's value comes from a data service.
func (c *Config) IsFetched() bool {
	return !c.IsCalculated && c.DataService != nil
}

// IsStatic reports whether the field has neither a data service nor a
// calculator; its value comes from caller input or the default.
func (c *Config) IsStatic() bool {
	return !c.IsCalculated && c.DataService == nil
}

// DependsOn returns the union of declared dependencies and the data-service
// parameter dependencies, in declaration order without duplicates.
func (c *Config) DependsOn() []string {
	seen := make(map[string]struct{}, len(c.Dependencies))
	var out []string
	add := func(names []string) {
		for _, n := range names {
			if _, ok := seen[n]; ok {
				continue
			}
			seen[n] = struct{}{}
			out = append(out, n)
		}
	}
	add(c.Dependencies)
	if c.DataService != nil {
		add(c.DataService.DependsOn)
	}
	return out
}

// Validate checks the structural invariants of a field configuration.
func (c *Config) Validate() error {
	if !nameRe.MatchString(c.Name) {
		return fmt.Errorf("field name %q is not a valid identifier", c.Name)
	}
	if !KnownType(c.Type) {
		return fmt.Errorf("field %q: unknown type %q", c.Name, c.Type)
	}
	if c.IsCalculated && c.Calculator == nil {
		return fmt.Errorf("field %q: calculated field requires calculatorConfig", c.Name)
	}
	if !c.IsCalculated && c.DataService != nil && c.MapperExpression == "" {
		return fmt.Errorf("field %q: data-service field requires mapperExpression", c.Name)
	}
	if c.DataService != nil {
		if err := c.DataService.Validate(); err != nil {
			return fmt.Errorf("field %q: %w", c.Name, err)
		}
	}
	if c.Calculator != nil {
		if err := c.Calculator.Validate(); err != nil {
			return fmt.Errorf("field %q: %w", c.Name, err)
		}
	}
	return nil
}

// EntityType names a kind of entity rules are evaluated against, together
// with the fields it carries.
type EntityType struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Fields      []string `json:"fields,omitempty"`
}
