// Package rule defines the boolean rule tree, its JSON wire form, and
// structural validation. A rule is a group combining conditions and nested
// groups with AND/OR semantics; groups and conditions may be negated.
package rule

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Combinator joins the items of a group.
type Combinator string

const (
	And Combinator = "AND"
	Or  Combinator = "OR"
)

// NormalizeCombinator accepts any casing and returns the canonical form.
// Unknown values are returned uppercased and unrecognized; callers decide
// whether that is a validation error or an evaluate-as-AND warning.
func NormalizeCombinator(s string) Combinator {
	return Combinator(strings.ToUpper(strings.TrimSpace(s)))
}

// Definition is a stored rule: identity plus the root group.
type Definition struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Root        *Group `json:"definition"`
}

// Group is an inner node of the rule tree.
type Group struct {
	Combinator Combinator
	Not        bool
	Items      []Item
}

// Condition is a leaf comparing a field against a value.
type Condition struct {
	Field    string
	Operator Operator
	Value    any
	Not      bool
}

// Item is a tagged variant: exactly one of Condition or Group is non-nil.
type Item struct {
	Condition *Condition
	Group     *Group
}

type groupWire struct {
	Combinator string            `json:"combinator"`
	Not        bool              `json:"not,omitempty"`
	Items      []json.RawMessage `json:"items"`
}

type conditionWire struct {
	Field    string          `json:"field"`
	Operator string          `json:"operator"`
	Value    json.RawMessage `json:"value,omitempty"`
	Not      bool            `json:"not,omitempty"`
}

func (g *Group) UnmarshalJSON(data []byte) error {
	var w groupWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	g.Combinator = NormalizeCombinator(w.Combinator)
	g.Not = w.Not
	g.Items = make([]Item, 0, len(w.Items))
	for i, raw := range w.Items {
		item, err := unmarshalItem(raw)
		if err != nil {
			return fmt.Errorf("items[%d]: %w", i, err)
		}
		g.Items = append(g.Items, item)
	}
	return nil
}

// unmarshalItem distinguishes conditions from nested groups by the presence
// of the "combinator" key.
func unmarshalItem(raw json.RawMessage) (Item, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return Item{}, err
	}
	if _, isGroup := probe["combinator"]; isGroup {
		var g Group
		if err := json.Unmarshal(raw, &g); err != nil {
			return Item{}, err
		}
		return Item{Group: &g}, nil
	}
	var w conditionWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return Item{}, err
	}
	c := &Condition{
		Field:    w.Field,
		Operator: Operator(strings.ToUpper(strings.TrimSpace(w.Operator))),
		Not:      w.Not,
	}
	if len(w.Value) > 0 {
		if err := json.Unmarshal(w.Value, &c.Value); err != nil {
			return Item{}, err
		}
	}
	return Item{Condition: c}, nil
}

func (g Group) MarshalJSON() ([]byte, error) {
	w := groupWire{Combinator: string(g.Combinator), Not: g.Not, Items: make([]json.RawMessage, 0, len(g.Items))}
	for _, item := range g.Items {
		var (
			raw []byte
			err error
		)
		switch {
		case item.Condition != nil:
			cw := conditionWire{Field: item.Condition.Field, Operator: string(item.Condition.Operator), Not: item.Condition.Not}
			if item.Condition.Value != nil {
				cw.Value, err = json.Marshal(item.Condition.Value)
				if err != nil {
					return nil, err
				}
			}
			raw, err = json.Marshal(cw)
		case item.Group != nil:
			raw, err = json.Marshal(*item.Group)
		default:
			err = fmt.Errorf("empty rule item")
		}
		if err != nil {
			return nil, err
		}
		w.Items = append(w.Items, raw)
	}
	return json.Marshal(w)
}

// Parse decodes a serialized rule group.
func Parse(data []byte) (*Group, error) {
	var g Group
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parse rule: %w", err)
	}
	return &g, nil
}

// ReferencedFields returns the sorted set of field names the rule compares.
func ReferencedFields(g *Group) []string {
	seen := make(map[string]struct{})
	collectFields(g, seen)
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func collectFields(g *Group, seen map[string]struct{}) {
	if g == nil {
		return
	}
	for _, item := range g.Items {
		switch {
		case item.Condition != nil:
			seen[item.Condition.Field] = struct{}{}
		case item.Group != nil:
			collectFields(item.Group, seen)
		}
	}
}
