// Package compare implements the type-coercing value comparator backing
// rule conditions. Compare never returns an error: any coercion or parse
// failure degrades to false and is logged at Warn, so one malformed value
// cannot abort a rule execution.
package compare

import (
	"reflect"
	"strings"

	"github.com/cockroachdb/apd/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"

	"github.com/ankitjan/rules-engine/internal/rule"
)

var log = logrus.WithField("component", "compare")

// Compare applies op between the actual and expected values.
func Compare(actual any, op rule.Operator, expected any) bool {
	switch op {
	case rule.OpEQ:
		return equal(actual, expected)
	case rule.OpNE:
		return !equal(actual, expected)
	case rule.OpLT, rule.OpLE, rule.OpGT, rule.OpGE:
		return ordered(actual, op, expected)
	case rule.OpContains, rule.OpStartsWith, rule.OpEndsWith:
		return substring(actual, op, expected)
	case rule.OpIn:
		return member(actual, expected)
	case rule.OpNotIn:
		return !member(actual, expected)
	case rule.OpIsEmpty:
		return empty(actual)
	case rule.OpIsNotEmpty:
		return !empty(actual)
	}
	log.WithField("operator", op).Warn("unknown operator, comparison is false")
	return false
}

// equal is null-aware: two nulls are equal, a single null is not equal to
// anything. Deep equality is tried first, then the canonical string forms.
func equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if reflect.DeepEqual(a, b) {
		return true
	}
	as, aerr := cast.ToStringE(a)
	bs, berr := cast.ToStringE(b)
	if aerr != nil || berr != nil {
		return false
	}
	return as == bs
}

// ordered coerces both sides to arbitrary-precision decimals. A side that
// is neither a number nor a numeric string fails the comparison.
func ordered(a any, op rule.Operator, b any) bool {
	da, ok := toDecimal(a)
	if !ok {
		log.WithField("value", a).Warn("left side of ordering comparison is not numeric")
		return false
	}
	db, ok := toDecimal(b)
	if !ok {
		log.WithField("value", b).Warn("right side of ordering comparison is not numeric")
		return false
	}
	c := da.Cmp(db)
	switch op {
	case rule.OpLT:
		return c < 0
	case rule.OpLE:
		return c <= 0
	case rule.OpGT:
		return c > 0
	case rule.OpGE:
		return c >= 0
	}
	return false
}

func toDecimal(v any) (*apd.Decimal, bool) {
	if v == nil {
		return nil, false
	}
	s, err := cast.ToStringE(v)
	if err != nil || strings.TrimSpace(s) == "" {
		return nil, false
	}
	d, _, err := apd.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return nil, false
	}
	return d, true
}

// substring applies case-insensitive contains/prefix/suffix on canonical
// string forms. A null on either side is false.
func substring(a any, op rule.Operator, b any) bool {
	if a == nil || b == nil {
		return false
	}
	as, aerr := cast.ToStringE(a)
	bs, berr := cast.ToStringE(b)
	if aerr != nil || berr != nil {
		log.WithField("operator", op).Warn("operand has no string form, comparison is false")
		return false
	}
	as = strings.ToLower(as)
	bs = strings.ToLower(bs)
	switch op {
	case rule.OpContains:
		return strings.Contains(as, bs)
	case rule.OpStartsWith:
		return strings.HasPrefix(as, bs)
	case rule.OpEndsWith:
		return strings.HasSuffix(as, bs)
	}
	return false
}

// member reports whether a equals any element of the expected sequence,
// using the EQ rule per element.
func member(a any, seq any) bool {
	if seq == nil {
		return false
	}
	rv := reflect.ValueOf(seq)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		log.WithField("value", seq).Warn("IN/NOT_IN expects a sequence, comparison is false")
		return false
	}
	for i := 0; i < rv.Len(); i++ {
		if equal(a, rv.Index(i).Interface()) {
			return true
		}
	}
	return false
}

// empty reports whether v is null, a blank string after trimming, or an
// empty sequence or map.
func empty(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len() == 0
	}
	return false
}
