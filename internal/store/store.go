// Package store declares the repository interfaces through which the core
// obtains rule, field-configuration, and entity-type snapshots. Lifecycle
// concerns (versioning, soft delete) belong to the implementations; the
// core treats everything returned here as immutable for the duration of
// an execution.
package store

import (
	"context"
	"errors"

	"github.com/ankitjan/rules-engine/internal/field"
	"github.com/ankitjan/rules-engine/internal/rule"
)

// Lookup-miss sentinels. Implementations wrap these so callers can
// classify misses with errors.Is.
var (
	ErrRuleNotFound        = errors.New("store: rule not found")
	ErrFieldConfigNotFound = errors.New("store: field config not found")
	ErrEntityTypeNotFound  = errors.New("store: entity type not found")
)

// RuleStore loads rule definitions.
type RuleStore interface {
	GetRuleByID(ctx context.Context, id string) (*rule.Definition, error)
	FindRuleByName(ctx context.Context, name string) (*rule.Definition, error)
}

// FieldConfigStore loads field configurations.
type FieldConfigStore interface {
	// ListByNames returns the configurations that exist for the given
	// names. Missing names are omitted, not an error; the caller decides
	// whether a miss matters.
	ListByNames(ctx context.Context, names []string) ([]*field.Config, error)
	FindByFieldName(ctx context.Context, name string) (*field.Config, error)
}

// EntityTypeStore loads entity-type descriptors.
type EntityTypeStore interface {
	FindByTypeName(ctx context.Context, name string) (*field.EntityType, error)
}
