package resolver

import (
	"context"
	"fmt"

	"github.com/platinummonkey/noderegistry/pkg/descriptor"
	"github.com/platinummonkey/noderegistry/pkg/manifest"
	"github.com/platinummonkey/noderegistry/pkg/scanner"
)

// Snapshot answers membership questions about committed registry state
type Snapshot interface {
	HasModule(name string) bool
}

// ModuleSource finds a single module by name. *scanner.Scanner satisfies it.
type ModuleSource interface {
	ScanModule(ctx context.Context, name string) (*scanner.Result, error)
}

// Edge is a dependency from a module in the closure on another module
type Edge struct {
	Dependent  string
	Dependency string
}

// Closure is the set of new modules an install brings in. Result.Order lists
// dependencies before the modules that need them.
type Closure struct {
	Requested string
	Result    *scanner.Result
	Edges     []Edge
}

// Modules returns the closure's modules, dependencies first
func (c *Closure) Modules() []*descriptor.Module {
	return c.Result.List()
}

type emptySnapshot struct{}

func (emptySnapshot) HasModule(string) bool { return false }

// BuildPlan drops modules the registry already knows and modules whose host
// version constraint fails, then partitions the units of the rest into the
// plugin and node phases. Version-rejected modules stay in discovered with
// Err set so they remain visible.
func BuildPlan(discovered *scanner.Result, known Snapshot, hostVersion string) *descriptor.Plan {
	if known == nil {
		known = emptySnapshot{}
	}

	plan := &descriptor.Plan{}
	plan.Rejected = append(plan.Rejected, discovered.Rejected...)

	for _, m := range discovered.List() {
		if known.HasModule(m.Name) {
			continue
		}
		if err := manifest.CheckHostVersion(m.RedVersion, hostVersion); err != nil {
			m.Err = err
			plan.Rejected = append(plan.Rejected, descriptor.Rejection{Module: m.Name, Reason: err})
			continue
		}
		plan.PluginUnits = append(plan.PluginUnits, m.UnitsOfKind(descriptor.KindPlugin)...)
		plan.NodeUnits = append(plan.NodeUnits, m.UnitsOfKind(descriptor.KindNode)...)
	}

	return plan
}

// Resolve finds name and every dependency it transitively needs that the
// registry does not already hold. Dependencies on known modules become edges
// without being scanned again.
func Resolve(ctx context.Context, source ModuleSource, name string, known Snapshot) (*Closure, error) {
	if known == nil {
		known = emptySnapshot{}
	}
	if known.HasModule(name) {
		return nil, fmt.Errorf("%w: %s", descriptor.ErrModuleAlreadyLoaded, name)
	}

	closure := &Closure{Requested: name}
	var found []*descriptor.Module

	queue := []string{name}
	requiredBy := map[string]string{}
	seen := map[string]bool{name: true}

	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]

		result, err := source.ScanModule(ctx, next)
		if err != nil {
			return nil, err
		}
		m, ok := result.Get(next)
		if !ok {
			if next == name {
				return nil, fmt.Errorf("%w: %s", descriptor.ErrModuleNotFound, name)
			}
			return nil, descriptor.MissingDependencyError(requiredBy[next], next)
		}
		found = append(found, m)

		for _, dep := range m.Dependencies {
			closure.Edges = append(closure.Edges, Edge{Dependent: m.Name, Dependency: dep})
			if known.HasModule(dep) || seen[dep] {
				continue
			}
			seen[dep] = true
			requiredBy[dep] = m.Name
			queue = append(queue, dep)
		}
	}

	closure.Result = scanner.NewResult()
	for i := len(found) - 1; i >= 0; i-- {
		closure.Result.Add(found[i])
	}
	return closure, nil
}
