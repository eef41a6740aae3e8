package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/ankitjan/rules-engine/internal/field"
	"github.com/ankitjan/rules-engine/internal/rule"
)

// InMemory implements the three store interfaces over maps. It backs tests
// and embedded deployments where configurations ship with the binary.
type InMemory struct {
	mu       sync.RWMutex
	rules    map[string]*rule.Definition // by id
	byName   map[string]*rule.Definition
	fields   map[string]*field.Config
	entities map[string]*field.EntityType
}

// NewInMemory creates an empty InMemory store.
func NewInMemory() *InMemory {
	return &InMemory{
		rules:    make(map[string]*rule.Definition),
		byName:   make(map[string]*rule.Definition),
		fields:   make(map[string]*field.Config),
		entities: make(map[string]*field.EntityType),
	}
}

// PutRule registers a rule definition.
func (s *InMemory) PutRule(def *rule.Definition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules[def.ID] = def
	if def.Name != "" {
		s.byName[def.Name] = def
	}
}

// PutFieldConfig registers a field configuration.
func (s *InMemory) PutFieldConfig(cfg *field.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fields[cfg.Name] = cfg
}

// PutEntityType registers an entity type.
func (s *InMemory) PutEntityType(et *field.EntityType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities[et.Name] = et
}

// GetRuleByID implements RuleStore.
func (s *InMemory) GetRuleByID(_ context.Context, id string) (*rule.Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	def, ok := s.rules[id]
	if !ok {
		return nil, fmt.Errorf("rule %q: %w", id, ErrRuleNotFound)
	}
	return def, nil
}

// FindRuleByName implements RuleStore.
func (s *InMemory) FindRuleByName(_ context.Context, name string) (*rule.Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	def, ok := s.byName[name]
	if !ok {
		return nil, fmt.Errorf("rule %q: %w", name, ErrRuleNotFound)
	}
	return def, nil
}

// ListByNames implements FieldConfigStore.
func (s *InMemory) ListByNames(_ context.Context, names []string) ([]*field.Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*field.Config, 0, len(names))
	for _, n := range names {
		if cfg, ok := s.fields[n]; ok {
			out = append(out, cfg)
		}
	}
	return out, nil
}

// FindByFieldName implements FieldConfigStore.
func (s *InMemory) FindByFieldName(_ context.Context, name string) (*field.Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.fields[name]
	if !ok {
		return nil, fmt.Errorf("field %q: %w", name, ErrFieldConfigNotFound)
	}
	return cfg, nil
}

// FindByTypeName implements EntityTypeStore.
func (s *InMemory) FindByTypeName(_ context.Context, name string) (*field.EntityType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	et, ok := s.entities[name]
	if !ok {
		return nil, fmt.Errorf("entity type %q: %w", name, ErrEntityTypeNotFound)
	}
	return et, nil
}
