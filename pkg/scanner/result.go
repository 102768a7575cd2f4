package scanner

import (
	"github.com/platinummonkey/noderegistry/pkg/descriptor"
)

// Result is the output of a scan: admitted modules in discovery order plus
// the modules that were rejected and why
type Result struct {
	Modules  map[string]*descriptor.Module
	Order    []string
	Rejected []descriptor.Rejection
}

// NewResult creates an empty result
func NewResult() *Result {
	return &Result{
		Modules: make(map[string]*descriptor.Module),
	}
}

// Add admits a module. A local copy replaces an earlier non-local one;
// otherwise the first module seen under a name wins. Add reports whether m
// was kept.
func (r *Result) Add(m *descriptor.Module) bool {
	existing, ok := r.Modules[m.Name]
	if !ok {
		r.Modules[m.Name] = m
		r.Order = append(r.Order, m.Name)
		return true
	}
	if m.Local && !existing.Local {
		r.Modules[m.Name] = m
		return true
	}
	return false
}

// Get returns a module by name
func (r *Result) Get(name string) (*descriptor.Module, bool) {
	m, ok := r.Modules[name]
	return m, ok
}

// List returns the admitted modules in discovery order
func (r *Result) List() []*descriptor.Module {
	out := make([]*descriptor.Module, 0, len(r.Order))
	for _, name := range r.Order {
		out = append(out, r.Modules[name])
	}
	return out
}

// Reject removes a module from the admitted set and records the reason
func (r *Result) Reject(m *descriptor.Module, reason error) {
	m.Err = reason
	r.Rejected = append(r.Rejected, descriptor.Rejection{Module: m.Name, Reason: reason})
	if _, ok := r.Modules[m.Name]; !ok {
		return
	}
	delete(r.Modules, m.Name)
	for i, name := range r.Order {
		if name == m.Name {
			r.Order = append(r.Order[:i], r.Order[i+1:]...)
			break
		}
	}
}

// Len returns the number of admitted modules
func (r *Result) Len() int {
	return len(r.Order)
}
