package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ankitjan/rules-engine/internal/field"
	"github.com/ankitjan/rules-engine/internal/rule"
)

func TestInMemory_Rules(t *testing.T) {
	s := NewInMemory()
	def := &rule.Definition{ID: "r1", Name: "premium", Root: &rule.Group{Combinator: rule.And}}
	s.PutRule(def)

	got, err := s.GetRuleByID(context.Background(), "r1")
	require.NoError(t, err)
	assert.Same(t, def, got)

	got, err = s.FindRuleByName(context.Background(), "premium")
	require.NoError(t, err)
	assert.Same(t, def, got)

	_, err = s.GetRuleByID(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrRuleNotFound)
	_, err = s.FindRuleByName(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrRuleNotFound)
}

func TestInMemory_FieldConfigs(t *testing.T) {
	s := NewInMemory()
	s.PutFieldConfig(&field.Config{Name: "creditScore", Type: field.TypeNumber})
	s.PutFieldConfig(&field.Config{Name: "region", Type: field.TypeString})

	// Missing names are omitted, not an error.
	configs, err := s.ListByNames(context.Background(), []string{"creditScore", "ghost", "region"})
	require.NoError(t, err)
	require.Len(t, configs, 2)

	cfg, err := s.FindByFieldName(context.Background(), "region")
	require.NoError(t, err)
	assert.Equal(t, field.TypeString, cfg.Type)

	_, err = s.FindByFieldName(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrFieldConfigNotFound)
}

func TestInMemory_EntityTypes(t *testing.T) {
	s := NewInMemory()
	s.PutEntityType(&field.EntityType{Name: "CUSTOMER"})

	et, err := s.FindByTypeName(context.Background(), "CUSTOMER")
	require.NoError(t, err)
	assert.Equal(t, "CUSTOMER", et.Name)

	_, err = s.FindByTypeName(context.Background(), "ORDER")
	assert.ErrorIs(t, err, ErrEntityTypeNotFound)
}
