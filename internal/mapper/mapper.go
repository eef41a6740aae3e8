// Package mapper extracts values from parsed data-service responses via
// dot-path expressions and coerces them to declared field types. Responses
// are dynamic JSON trees (maps, slices, scalars); no reflection over host
// types is involved.
package mapper

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/ankitjan/rules-engine/internal/field"
)

// MappingError reports a path expression that could not be applied,
// including the sub-path at which navigation failed.
type MappingError struct {
	Expression string
	SubPath    string
	Reason     string
}

func (e *MappingError) Error() string {
	if e.SubPath != "" {
		return fmt.Sprintf("mapper: %s at %q in %q", e.Reason, e.SubPath, e.Expression)
	}
	return fmt.Sprintf("mapper: %s in %q", e.Reason, e.Expression)
}

// segment is one step of a path expression: a key lookup optionally
// followed by an index or a [key=literal] filter.
type segment struct {
	key       string
	index     int
	hasIndex  bool
	filterKey string
	filterVal string
	hasFilter bool
}

// Extract navigates doc along expr.
//
// Grammar: dot-separated segments, each an object key with an optional
// bracket suffix: a 0-based index ("orders[0]") or a first-match filter
// ("items[active=true]"). A null anywhere on the path collapses the result
// to null; missing keys and out-of-range indexes are null too. Navigating
// into a scalar is a MappingError.
func Extract(doc any, expr string) (any, error) {
	segs, err := parse(expr)
	if err != nil {
		return nil, err
	}
	cur := doc
	walked := make([]string, 0, len(segs))
	for _, s := range segs {
		walked = append(walked, s.String())
		if s.key != "" {
			if cur == nil {
				return nil, nil
			}
			m, ok := cur.(map[string]any)
			if !ok {
				return nil, &MappingError{Expression: expr, SubPath: strings.Join(walked, "."), Reason: fmt.Sprintf("cannot look up key on %T", cur)}
			}
			v, present := m[s.key]
			if !present {
				return nil, nil
			}
			cur = v
		}
		if s.hasIndex || s.hasFilter {
			if cur == nil {
				return nil, nil
			}
			list, ok := cur.([]any)
			if !ok {
				return nil, &MappingError{Expression: expr, SubPath: strings.Join(walked, "."), Reason: fmt.Sprintf("cannot index %T", cur)}
			}
			if s.hasIndex {
				if s.index < 0 || s.index >= len(list) {
					return nil, nil
				}
				cur = list[s.index]
			} else {
				cur = firstMatch(list, s.filterKey, s.filterVal)
			}
		}
	}
	return cur, nil
}

func firstMatch(list []any, key, literal string) any {
	for _, el := range list {
		m, ok := el.(map[string]any)
		if !ok {
			continue
		}
		v, present := m[key]
		if !present {
			continue
		}
		if s, err := cast.ToStringE(v); err == nil && s == literal {
			return el
		}
	}
	return nil
}

func (s segment) String() string {
	out := s.key
	if s.hasIndex {
		out += fmt.Sprintf("[%d]", s.index)
	}
	if s.hasFilter {
		out += fmt.Sprintf("[%s=%s]", s.filterKey, s.filterVal)
	}
	return out
}

func parse(expr string) ([]segment, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, &MappingError{Expression: expr, Reason: "empty expression"}
	}
	parts := strings.Split(expr, ".")
	segs := make([]segment, 0, len(parts))
	for _, part := range parts {
		s, err := parseSegment(expr, part)
		if err != nil {
			return nil, err
		}
		segs = append(segs, s)
	}
	return segs, nil
}

func parseSegment(expr, part string) (segment, error) {
	var s segment
	open := strings.IndexByte(part, '[')
	if open < 0 {
		if part == "" {
			return s, &MappingError{Expression: expr, Reason: "empty path segment"}
		}
		s.key = part
		return s, nil
	}
	if !strings.HasSuffix(part, "]") {
		return s, &MappingError{Expression: expr, SubPath: part, Reason: "unterminated bracket"}
	}
	s.key = part[:open]
	inner := part[open+1 : len(part)-1]
	if eq := strings.IndexByte(inner, '='); eq >= 0 {
		s.filterKey = inner[:eq]
		s.filterVal = strings.Trim(inner[eq+1:], `"'`)
		s.hasFilter = true
		if s.filterKey == "" {
			return s, &MappingError{Expression: expr, SubPath: part, Reason: "filter has no key"}
		}
		return s, nil
	}
	idx, err := strconv.Atoi(inner)
	if err != nil {
		return s, &MappingError{Expression: expr, SubPath: part, Reason: "index is not a number"}
	}
	s.index = idx
	s.hasIndex = true
	return s, nil
}

// dateLayouts are the accepted string forms for DATE coercion.
var dateLayouts = []string{"2006-01-02", time.RFC3339, time.RFC3339Nano}

// ConvertType deterministically coerces value to the declared field type.
// A nil value stays nil regardless of type. Failure is a MappingError.
func ConvertType(value any, t field.Type) (any, error) {
	if value == nil {
		return nil, nil
	}
	fail := func(reason string) (any, error) {
		return nil, &MappingError{Expression: string(t), Reason: fmt.Sprintf("cannot convert %T to %s: %s", value, t, reason)}
	}
	switch t {
	case field.TypeString:
		s, err := cast.ToStringE(value)
		if err != nil {
			return fail(err.Error())
		}
		return s, nil
	case field.TypeNumber:
		f, err := cast.ToFloat64E(value)
		if err != nil {
			return fail(err.Error())
		}
		return f, nil
	case field.TypeBoolean:
		b, err := cast.ToBoolE(value)
		if err != nil {
			return fail(err.Error())
		}
		return b, nil
	case field.TypeDate:
		if tv, ok := value.(time.Time); ok {
			return tv, nil
		}
		s, err := cast.ToStringE(value)
		if err != nil {
			return fail(err.Error())
		}
		for _, layout := range dateLayouts {
			if tv, perr := time.Parse(layout, s); perr == nil {
				return tv, nil
			}
		}
		return fail("not a YYYY-MM-DD or ISO-8601 datetime")
	case field.TypeArray:
		if list, ok := value.([]any); ok {
			return list, nil
		}
		out, err := cast.ToSliceE(value)
		if err != nil {
			return fail(err.Error())
		}
		return out, nil
	case field.TypeObject:
		if m, ok := value.(map[string]any); ok {
			return m, nil
		}
		out, err := cast.ToStringMapE(value)
		if err != nil {
			return fail(err.Error())
		}
		return out, nil
	}
	return fail("unknown target type")
}
