package rule

import "github.com/ankitjan/rules-engine/internal/field"

// Operator is a condition's comparison operator. The set is closed.
type Operator string

const (
	OpEQ         Operator = "EQ"
	OpNE         Operator = "NE"
	OpLT         Operator = "LT"
	OpLE         Operator = "LE"
	OpGT         Operator = "GT"
	OpGE         Operator = "GE"
	OpContains   Operator = "CONTAINS"
	OpStartsWith Operator = "STARTS_WITH"
	OpEndsWith   Operator = "ENDS_WITH"
	OpIn         Operator = "IN"
	OpNotIn      Operator = "NOT_IN"
	OpIsEmpty    Operator = "IS_EMPTY"
	OpIsNotEmpty Operator = "IS_NOT_EMPTY"
)

// KnownOperator reports whether op is part of the closed operator set.
func KnownOperator(op Operator) bool {
	switch op {
	case OpEQ, OpNE, OpLT, OpLE, OpGT, OpGE,
		OpContains, OpStartsWith, OpEndsWith,
		OpIn, OpNotIn, OpIsEmpty, OpIsNotEmpty:
		return true
	}
	return false
}

// Valueless reports whether op takes no comparison value.
func Valueless(op Operator) bool {
	return op == OpIsEmpty || op == OpIsNotEmpty
}

// CompatibleWith reports whether op makes sense for a field of type t.
// EQ/NE and the emptiness checks apply to every type; ordering applies to
// numbers and dates; string operators to strings; membership to any scalar
// plus arrays.
func CompatibleWith(op Operator, t field.Type) bool {
	switch op {
	case OpEQ, OpNE, OpIsEmpty, OpIsNotEmpty:
		return true
	case OpLT, OpLE, OpGT, OpGE:
		return t == field.TypeNumber || t == field.TypeDate || t == field.TypeString
	case OpContains, OpStartsWith, OpEndsWith:
		return t == field.TypeString || t == field.TypeArray
	case OpIn, OpNotIn:
		return t != field.TypeObject
	}
	return false
}
