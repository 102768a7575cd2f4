package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/platinummonkey/noderegistry/pkg/descriptor"
	"github.com/platinummonkey/noderegistry/pkg/i18n"
	"github.com/platinummonkey/noderegistry/pkg/template"
)

// UnitPredicate selects units in ListUnits
type UnitPredicate func(u *descriptor.Unit) bool

// HasError selects units carrying a load error
func HasError(u *descriptor.Unit) bool { return u.Err != nil }

// IsLoaded selects loaded units
func IsLoaded(u *descriptor.Unit) bool { return u.Loaded }

// IsEnabled selects enabled units
func IsEnabled(u *descriptor.Unit) bool { return u.Enabled }

// OfKind selects units of one kind
func OfKind(kind descriptor.Kind) UnitPredicate {
	return func(u *descriptor.Unit) bool { return u.Kind == kind }
}

// InModule selects the units of one module
func InModule(name string) UnitPredicate {
	return func(u *descriptor.Unit) bool { return u.Module == name }
}

// ListModules returns copies of every committed module in commit order
func (r *Registry) ListModules() []*descriptor.Module {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*descriptor.Module, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.modules[name].Clone())
	}
	return out
}

// GetModule returns a copy of a committed module
func (r *Registry) GetModule(name string) (*descriptor.Module, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.modules[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", descriptor.ErrModuleNotFound, name)
	}
	return m.Clone(), nil
}

// ListUnits returns copies of the units matching every predicate, in module
// order
func (r *Registry) ListUnits(preds ...UnitPredicate) []*descriptor.Unit {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*descriptor.Unit
	for _, name := range r.order {
	next:
		for _, u := range r.modules[name].Units {
			for _, p := range preds {
				if !p(u) {
					continue next
				}
			}
			out = append(out, u.Clone())
		}
	}
	return out
}

// GetUnit returns a copy of a unit by id
func (r *Registry) GetUnit(id string) (*descriptor.Unit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.units[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", descriptor.ErrUnitNotFound, id)
	}
	return u.Clone(), nil
}

// Rejected lists the modules the last boot pass excluded
func (r *Registry) Rejected() []descriptor.Rejection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]descriptor.Rejection(nil), r.rejected...)
}

// GetType returns the binding for a type name. Bindings of disabled units
// are not returned.
func (r *Registry) GetType(name string) (*descriptor.TypeBinding, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.types[name]
	if !ok || !r.ownerEnabled(b.UnitID) {
		return nil, false
	}
	c := *b
	return &c, true
}

// Types lists the type names with a live binding
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []string
	for _, name := range r.order {
		for _, u := range r.modules[name].Units {
			for _, t := range u.Types {
				if b, ok := r.types[t]; ok && b.UnitID == u.ID && u.Enabled {
					out = append(out, t)
				}
			}
		}
	}
	return out
}

// GetUnitConfig renders a unit's config with its help for lang, falling back
// to the base language and then the host default. Disabled and errored units
// render nothing.
func (r *Registry) GetUnitConfig(id, lang string) (string, error) {
	key := id + "\x00" + lang
	if cfg, ok := r.configs.Get(key); ok {
		r.cacheHit()
		return cfg, nil
	}
	r.cacheMiss()

	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.units[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", descriptor.ErrUnitNotFound, id)
	}
	// added under the read lock so a concurrent purge cannot be undone
	cfg := r.renderLocked(u, lang)
	r.configs.Add(key, cfg)
	return cfg, nil
}

// GetAllConfigs renders every enabled, error free node unit for lang
func (r *Registry) GetAllConfigs(lang string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var parts []string
	for _, name := range r.order {
		for _, u := range r.modules[name].Units {
			if u.Kind != descriptor.KindNode {
				continue
			}
			if cfg := r.renderLocked(u, lang); cfg != "" {
				parts = append(parts, cfg)
			}
		}
	}
	return strings.Join(parts, "\n")
}

func (r *Registry) renderLocked(u *descriptor.Unit, lang string) string {
	if !u.Enabled || u.Err != nil {
		return ""
	}
	help, _, _ := i18n.Pick(u.Help, lang, r.loader.Catalog().DefaultLang())
	return template.Render(u.Config, help)
}

// GetCatalog returns the message catalog of a namespace for lang and the
// language actually served
func (r *Registry) GetCatalog(namespace, lang string) (i18n.Messages, string, bool) {
	return r.loader.Catalog().Lookup(namespace, lang)
}

// GetModuleIcons returns the icon directories of a module
func (r *Registry) GetModuleIcons(name string) ([]descriptor.IconDir, error) {
	m, err := r.GetModule(name)
	if err != nil {
		return nil, err
	}
	return m.Icons, nil
}

// GetModuleExamples returns the examples directory of a module, or "" when
// it ships none
func (r *Registry) GetModuleExamples(name string) (string, error) {
	m, err := r.GetModule(name)
	if err != nil {
		return "", err
	}
	return m.ExamplesPath, nil
}

// GetModuleResource resolves a path relative to a module's resources
// directory. Paths leaving that directory are refused.
func (r *Registry) GetModuleResource(name, rel string) (string, error) {
	m, err := r.GetModule(name)
	if err != nil {
		return "", err
	}
	if m.ResourcesPath == "" {
		return "", fmt.Errorf("%w: %s has no resources", ErrResourceNotFound, name)
	}
	return resolveWithin(m.ResourcesPath, rel)
}

// GetIcon resolves an icon file shipped by a module
func (r *Registry) GetIcon(name, icon string) (string, error) {
	m, err := r.GetModule(name)
	if err != nil {
		return "", err
	}
	for _, dir := range m.Icons {
		for _, i := range dir.Icons {
			if i == icon {
				return resolveWithin(dir.Path, icon)
			}
		}
	}
	return "", fmt.Errorf("%w: %s/%s", ErrResourceNotFound, name, icon)
}

func resolveWithin(base, rel string) (string, error) {
	full := filepath.Join(base, filepath.FromSlash(rel))
	within, err := filepath.Rel(base, full)
	if err != nil || within == ".." || strings.HasPrefix(within, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrInvalidPath, rel)
	}
	info, err := os.Stat(full)
	if err != nil || info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrResourceNotFound, rel)
	}
	return full, nil
}

func (r *Registry) cacheHit() {
	if r.metrics != nil {
		r.metrics.ConfigCacheHits.Inc()
	}
}

func (r *Registry) cacheMiss() {
	if r.metrics != nil {
		r.metrics.ConfigCacheMisses.Inc()
	}
}
