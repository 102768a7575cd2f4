package descriptor

import (
	"context"
	"strings"
)

// Kind distinguishes the two unit categories a module can declare
type Kind string

const (
	// KindNode units define message-processing types instantiated by the flow engine
	KindNode Kind = "node"
	// KindPlugin units define runtime/editor extensions that must load before any node
	KindPlugin Kind = "plugin"
)

// Constructor builds one instance of a registered type from its node configuration
type Constructor func(ctx context.Context, config map[string]interface{}) (interface{}, error)

// TypeOptions carries the optional settings passed alongside registerType
type TypeOptions map[string]interface{}

// IconDir is a directory of icons shipped by a module
type IconDir struct {
	Path  string   `json:"path"`
	Icons []string `json:"icons"`
}

// Module describes one installable package bundling node and plugin units
type Module struct {
	Name          string    `json:"name"`
	Version       string    `json:"version"`
	Path          string    `json:"path"`
	Local         bool      `json:"local"`
	User          bool      `json:"user"`
	Dependencies  []string  `json:"dependencies,omitempty"`
	RedVersion    string    `json:"redVersion,omitempty"`
	Units         []*Unit   `json:"units"`
	Icons         []IconDir `json:"icons,omitempty"`
	ExamplesPath  string    `json:"examplesPath,omitempty"`
	ResourcesPath string    `json:"resourcesPath,omitempty"`
	UsedBy        []string  `json:"usedBy,omitempty"`
	Err           error     `json:"-"`
}

// Unit describes a single node-type or plugin-type definition within a module
type Unit struct {
	ID        string            `json:"id"`
	Module    string            `json:"module"`
	Name      string            `json:"name"`
	Kind      Kind              `json:"kind"`
	File      string            `json:"file"`
	Template  string            `json:"template,omitempty"`
	Types     []string          `json:"types"`
	Enabled   bool              `json:"enabled"`
	Loaded    bool              `json:"loaded"`
	Err       *UnitError        `json:"err,omitempty"`
	Namespace string            `json:"namespace"`
	Config    string            `json:"-"`
	Help      map[string]string `json:"-"`
}

// UnitError is the diagnostic captured when a unit fails to load
type UnitError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
}

func (e *UnitError) Error() string {
	return e.Message
}

// TypeBinding maps a registered type name to its implementation
type TypeBinding struct {
	Type        string
	UnitID      string
	Kind        Kind
	Constructor Constructor
	Options     TypeOptions
}

// Rejection records a module excluded from a load pass and why
type Rejection struct {
	Module string `json:"module"`
	Reason error  `json:"-"`
}

// Plan is the ordered set of units for one load pass. Every plugin unit
// precedes every node unit.
type Plan struct {
	PluginUnits []*Unit
	NodeUnits   []*Unit
	Rejected    []Rejection
}

// Units returns the whole plan in load order
func (p *Plan) Units() []*Unit {
	out := make([]*Unit, 0, len(p.PluginUnits)+len(p.NodeUnits))
	out = append(out, p.PluginUnits...)
	return append(out, p.NodeUnits...)
}

// UnitID builds the globally unique id of a unit
func UnitID(module, name string) string {
	return module + "/" + name
}

// SplitUnitID splits a unit id into module and unit name. Scoped module
// names contain a slash, so the split happens on the last one.
func SplitUnitID(id string) (module, name string, ok bool) {
	i := strings.LastIndex(id, "/")
	if i <= 0 || i == len(id)-1 {
		return "", "", false
	}
	return id[:i], id[i+1:], true
}

// NewUnit creates an unloaded, enabled unit for a module
func NewUnit(module, name string, kind Kind, file string) *Unit {
	return &Unit{
		ID:        UnitID(module, name),
		Module:    module,
		Name:      name,
		Kind:      kind,
		File:      file,
		Types:     []string{},
		Enabled:   true,
		Namespace: module,
	}
}

// Clone returns a deep copy of the unit
func (u *Unit) Clone() *Unit {
	if u == nil {
		return nil
	}
	c := *u
	c.Types = append([]string{}, u.Types...)
	if u.Err != nil {
		e := *u.Err
		c.Err = &e
	}
	if u.Help != nil {
		c.Help = make(map[string]string, len(u.Help))
		for k, v := range u.Help {
			c.Help[k] = v
		}
	}
	return &c
}

// Clone returns a deep copy of the module and its units
func (m *Module) Clone() *Module {
	if m == nil {
		return nil
	}
	c := *m
	c.Dependencies = append([]string(nil), m.Dependencies...)
	c.UsedBy = append([]string(nil), m.UsedBy...)
	c.Icons = append([]IconDir(nil), m.Icons...)
	c.Units = make([]*Unit, len(m.Units))
	for i, u := range m.Units {
		c.Units[i] = u.Clone()
	}
	return &c
}

// Unit returns the unit with the given name
func (m *Module) Unit(name string) *Unit {
	for _, u := range m.Units {
		if u.Name == name {
			return u
		}
	}
	return nil
}

// UnitsOfKind returns the module's units of one kind in declaration order
func (m *Module) UnitsOfKind(kind Kind) []*Unit {
	var out []*Unit
	for _, u := range m.Units {
		if u.Kind == kind {
			out = append(out, u)
		}
	}
	return out
}

// Types returns every type name declared by the module's units
func (m *Module) Types() []string {
	var out []string
	for _, u := range m.Units {
		out = append(out, u.Types...)
	}
	return out
}

// AddUsedBy records that another module depends on this one
func (m *Module) AddUsedBy(name string) {
	for _, n := range m.UsedBy {
		if n == name {
			return
		}
	}
	m.UsedBy = append(m.UsedBy, name)
}

// RemoveUsedBy drops a reverse dependency edge
func (m *Module) RemoveUsedBy(name string) {
	out := m.UsedBy[:0]
	for _, n := range m.UsedBy {
		if n != name {
			out = append(out, n)
		}
	}
	m.UsedBy = out
}
