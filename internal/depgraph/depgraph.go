// Package depgraph builds the dependency graph over field configurations,
// rejects cycles, and partitions resolution work into parallel fetch
// groups, sequential fetch chains, and a calculated-field evaluation
// order. The analyzer is pure: identical inputs produce identical plans,
// with ties broken by field name.
package depgraph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ankitjan/rules-engine/internal/field"
)

// CycleError reports a dependency cycle, listing the fields along one
// elementary cycle.
type CycleError struct {
	Fields []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("depgraph: circular dependency: %s", strings.Join(e.Fields, " -> "))
}

// Graph is the dependency graph over a set of field configurations.
// An edge u -> v means u depends on v.
type Graph struct {
	configs map[string]*field.Config
	deps    map[string][]string // sorted, restricted to configured fields
	// external names a field depends on that have no configuration; they
	// must be satisfied by caller input at plan time.
	external map[string][]string
	names    []string // sorted
}

// Build constructs the graph from a configuration set. Dependencies naming
// fields outside the set are recorded as external; whether they are an
// error is decided at plan time against the caller-supplied values.
func Build(configs []*field.Config) (*Graph, error) {
	g := &Graph{
		configs:  make(map[string]*field.Config, len(configs)),
		deps:     make(map[string][]string, len(configs)),
		external: make(map[string][]string),
	}
	for _, c := range configs {
		if _, dup := g.configs[c.Name]; dup {
			return nil, fmt.Errorf("depgraph: duplicate field configuration %q", c.Name)
		}
		g.configs[c.Name] = c
		g.names = append(g.names, c.Name)
	}
	sort.Strings(g.names)
	for _, c := range configs {
		var in, ext []string
		for _, dep := range c.DependsOn() {
			if _, known := g.configs[dep]; known {
				in = append(in, dep)
			} else {
				ext = append(ext, dep)
			}
		}
		sort.Strings(in)
		sort.Strings(ext)
		g.deps[c.Name] = in
		if len(ext) > 0 {
			g.external[c.Name] = ext
		}
	}
	if err := g.checkAcyclic(); err != nil {
		return nil, err
	}
	return g, nil
}

// Config returns the configuration for a field in the graph.
func (g *Graph) Config(name string) *field.Config { return g.configs[name] }

const (
	white = iota // unvisited
	gray         // on the current DFS stack
	black        // finished
)

func (g *Graph) checkAcyclic() error {
	color := make(map[string]int, len(g.names))
	var stack []string

	var visit func(n string) *CycleError
	visit = func(n string) *CycleError {
		color[n] = gray
		stack = append(stack, n)
		for _, dep := range g.deps[n] {
			switch color[dep] {
			case gray:
				// Back edge: the cycle is the stack suffix from dep.
				for i, s := range stack {
					if s == dep {
						cycle := append(append([]string(nil), stack[i:]...), dep)
						return &CycleError{Fields: cycle}
					}
				}
			case white:
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[n] = black
		return nil
	}

	for _, n := range g.names {
		if color[n] == white {
			if err := visit(n); err != nil {
				return err
			}
		}
	}
	return nil
}

// TopoOrder returns all configured fields in dependency order: every field
// appears after all of its configured dependencies. Ties break by name.
func (g *Graph) TopoOrder() []string {
	indegree := make(map[string]int, len(g.names))
	dependents := make(map[string][]string, len(g.names))
	for _, n := range g.names {
		indegree[n] = len(g.deps[n])
		for _, dep := range g.deps[n] {
			dependents[dep] = append(dependents[dep], n)
		}
	}
	ready := make([]string, 0, len(g.names))
	for _, n := range g.names {
		if indegree[n] == 0 {
			ready = append(ready, n)
		}
	}
	sort.Strings(ready)

	out := make([]string, 0, len(g.names))
	for len(ready) > 0 {
		n := ready[0]
		ready = ready[1:]
		out = append(out, n)
		released := dependents[n]
		sort.Strings(released)
		for _, m := range released {
			indegree[m]--
			if indegree[m] == 0 {
				ready = insertSorted(ready, m)
			}
		}
	}
	return out
}

func insertSorted(list []string, s string) []string {
	i := sort.SearchStrings(list, s)
	list = append(list, "")
	copy(list[i+1:], list[i:])
	list[i] = s
	return list
}

// ParallelGroup is a set of fetched fields whose data-service invocations
// are mutually independent and may run concurrently.
type ParallelGroup struct {
	Fields []string
}

// SequentialChain is an ordered list of fetched fields where each element
// may depend on values fetched earlier in the chain. Chains execute after
// the parallel groups; distinct chains are independent of one another.
type SequentialChain struct {
	Fields []string
}

// Plan is the partition of a field set into resolution steps.
type Plan struct {
	// Static fields resolve from caller input or their default value.
	Static []string
	// Groups fetch concurrently, in order.
	Groups []ParallelGroup
	// Chains fetch serially per chain after all groups complete.
	Chains []SequentialChain
	// Calculated fields evaluate last, in topological order.
	Calculated []string
}

// BuildPlan partitions the graph's fields given the set of names whose
// values the caller already supplied. Supplied values are authoritative:
// a fetched or calculated field present in available is not scheduled.
func (g *Graph) BuildPlan(available map[string]struct{}) (*Plan, error) {
	plan := &Plan{}
	satisfied := make(map[string]struct{}, len(available))
	for n := range available {
		satisfied[n] = struct{}{}
	}

	var fetched []string
	for _, n := range g.names {
		c := g.configs[n]
		if _, have := available[n]; have {
			continue
		}
		switch {
		case c.IsStatic():
			plan.Static = append(plan.Static, n)
			satisfied[n] = struct{}{}
		case c.IsFetched():
			fetched = append(fetched, n)
		}
	}

	// External dependencies must come from the caller.
	for _, n := range g.names {
		if _, have := available[n]; have {
			continue
		}
		for _, ext := range g.external[n] {
			if _, have := available[ext]; !have {
				return nil, fmt.Errorf("depgraph: field %q depends on unknown field %q", n, ext)
			}
		}
	}

	// A fetch cannot wait on a calculated value; calculation runs last.
	for _, n := range fetched {
		for _, dep := range g.deps[n] {
			if _, have := satisfied[dep]; have {
				continue
			}
			if g.configs[dep].IsCalculated {
				return nil, fmt.Errorf("depgraph: fetched field %q depends on calculated field %q", n, dep)
			}
		}
	}

	g.partitionFetched(plan, fetched, satisfied)

	order := g.TopoOrder()
	for _, n := range order {
		if _, have := available[n]; have {
			continue
		}
		if g.configs[n].IsCalculated {
			plan.Calculated = append(plan.Calculated, n)
		}
	}
	return plan, nil
}

// partitionFetched splits fetched fields into one parallel group of fields
// with no outstanding fetched dependencies, plus sequential chains for
// fields that wait on other fetches. Chains sharing a downstream field are
// merged in topological order so every dependency precedes its dependent.
func (g *Graph) partitionFetched(plan *Plan, fetched []string, satisfied map[string]struct{}) {
	isFetched := make(map[string]struct{}, len(fetched))
	for _, n := range fetched {
		isFetched[n] = struct{}{}
	}
	outstanding := func(n string) []string {
		var out []string
		for _, dep := range g.deps[n] {
			if _, have := satisfied[dep]; have {
				continue
			}
			if _, f := isFetched[dep]; f {
				out = append(out, dep)
			}
		}
		return out
	}

	var independent []string
	var chained []string
	for _, n := range fetched {
		if len(outstanding(n)) == 0 {
			independent = append(independent, n)
		} else {
			chained = append(chained, n)
		}
	}
	sort.Strings(independent)
	if len(independent) > 0 {
		plan.Groups = append(plan.Groups, ParallelGroup{Fields: independent})
	}
	if len(chained) == 0 {
		return
	}

	inChainSet := make(map[string]struct{}, len(chained))
	for _, n := range chained {
		inChainSet[n] = struct{}{}
	}
	chainOf := make(map[string]int)
	var chains [][]string
	for _, n := range g.TopoOrder() {
		if _, ok := inChainSet[n]; !ok {
			continue
		}
		ids := make(map[int]struct{})
		for _, dep := range outstanding(n) {
			if id, ok := chainOf[dep]; ok {
				ids[id] = struct{}{}
			}
		}
		switch len(ids) {
		case 0:
			chainOf[n] = len(chains)
			chains = append(chains, []string{n})
		case 1:
			for id := range ids {
				chains[id] = append(chains[id], n)
				chainOf[n] = id
			}
		default:
			// Merge every involved chain into the lowest id, preserving
			// the topological order in which members were appended.
			sorted := make([]int, 0, len(ids))
			for id := range ids {
				sorted = append(sorted, id)
			}
			sort.Ints(sorted)
			target := sorted[0]
			for _, id := range sorted[1:] {
				for _, m := range chains[id] {
					chainOf[m] = target
				}
				chains[target] = append(chains[target], chains[id]...)
				chains[id] = nil
			}
			chains[target] = append(chains[target], n)
			chainOf[n] = target
		}
	}
	for _, c := range chains {
		if len(c) > 0 {
			plan.Chains = append(plan.Chains, SequentialChain{Fields: c})
		}
	}
}
