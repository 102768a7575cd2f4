package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/noderegistry/pkg/descriptor"
	"github.com/platinummonkey/noderegistry/pkg/loader"
	"github.com/platinummonkey/noderegistry/pkg/observability"
	"github.com/platinummonkey/noderegistry/pkg/scanner"
	"github.com/platinummonkey/noderegistry/pkg/storage"
)

// DefaultConfigCacheSize is the number of rendered unit configs kept in memory
const DefaultConfigCacheSize = 256

var (
	// ErrClosed is returned by operations on a closed registry
	ErrClosed = errors.New("registry closed")

	// ErrInvalidPath is returned for a resource path that leaves the module directory
	ErrInvalidPath = errors.New("invalid resource path")

	// ErrResourceNotFound is returned for a module resource that does not exist
	ErrResourceNotFound = errors.New("resource not found")
)

// Scanner discovers modules on disk. *scanner.Scanner satisfies it.
type Scanner interface {
	Scan(ctx context.Context) (*scanner.Result, error)
	ScanModule(ctx context.Context, name string) (*scanner.Result, error)
	ScanPath(ctx context.Context, dir string) (*scanner.Result, error)
	HostName() string
}

// FlowInspector reports whether a deployed flow references a type
type FlowInspector interface {
	TypeInUse(ctx context.Context, typeName string) bool
}

// FlowInspectorFunc adapts a function to FlowInspector
type FlowInspectorFunc func(ctx context.Context, typeName string) bool

// TypeInUse implements FlowInspector
func (f FlowInspectorFunc) TypeInUse(ctx context.Context, typeName string) bool {
	return f(ctx, typeName)
}

type noFlows struct{}

func (noFlows) TypeInUse(context.Context, string) bool { return false }

// Options configures a Registry
type Options struct {
	Scanner         Scanner
	Loader          *loader.Loader
	Store           storage.Store
	Flows           FlowInspector
	HostVersion     string
	Metrics         *observability.Metrics
	ConfigCacheSize int
	Logger          *logrus.Logger
}

// Registry owns the committed module, unit and type state of a host process
type Registry struct {
	scanner     Scanner
	loader      *loader.Loader
	store       storage.Store
	flows       FlowInspector
	hostVersion string
	metrics     *observability.Metrics
	log         *logrus.Logger

	// opMu serializes load passes and admin mutations; mu guards the maps
	opMu      sync.Mutex
	mu        sync.RWMutex
	modules   map[string]*descriptor.Module
	order     []string
	units     map[string]*descriptor.Unit
	types     map[string]*descriptor.TypeBinding
	rejected  []descriptor.Rejection
	persisted map[string]storage.ModuleRecord
	closed    bool

	persistMu sync.Mutex
	configs   *lru.Cache[string, string]
}

// New creates an empty registry
func New(opts Options) (*Registry, error) {
	if opts.Scanner == nil {
		return nil, fmt.Errorf("scanner is required")
	}
	if opts.Loader == nil {
		return nil, fmt.Errorf("loader is required")
	}
	if opts.Store == nil {
		opts.Store = storage.NewMemoryStore()
	}
	if opts.Flows == nil {
		opts.Flows = noFlows{}
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	if opts.ConfigCacheSize <= 0 {
		opts.ConfigCacheSize = DefaultConfigCacheSize
	}

	cache, err := lru.New[string, string](opts.ConfigCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create config cache: %w", err)
	}

	return &Registry{
		scanner:     opts.Scanner,
		loader:      opts.Loader,
		store:       opts.Store,
		flows:       opts.Flows,
		hostVersion: opts.HostVersion,
		metrics:     opts.Metrics,
		log:         opts.Logger,
		modules:     make(map[string]*descriptor.Module),
		units:       make(map[string]*descriptor.Unit),
		types:       make(map[string]*descriptor.TypeBinding),
		persisted:   make(map[string]storage.ModuleRecord),
		configs:     cache,
	}, nil
}

// Close releases every loaded implementation and the store. The registry
// cannot be used afterwards.
func (r *Registry) Close() error {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	units := make([]*descriptor.Unit, 0, len(r.units))
	for _, u := range r.units {
		units = append(units, u)
	}
	r.types = make(map[string]*descriptor.TypeBinding)
	r.mu.Unlock()

	for _, u := range units {
		r.loader.Release(u)
	}
	r.configs.Purge()

	return r.store.Close()
}

// RegisterType binds a type name to the constructor of a unit of the given
// kind. A name bound to another enabled unit is rejected; a binding left by
// a disabled unit is replaced.
func (r *Registry) RegisterType(unitID string, kind descriptor.Kind, typeName string, ctor descriptor.Constructor, opts descriptor.TypeOptions) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.types[typeName]; ok && existing.UnitID != unitID {
		if r.ownerEnabled(existing.UnitID) {
			return fmt.Errorf("%w: %s is already registered by %s", descriptor.ErrTypeAlreadyRegistered, typeName, existing.UnitID)
		}
		r.log.WithFields(logrus.Fields{
			"type":     typeName,
			"previous": existing.UnitID,
			"unit":     unitID,
		}).Debug("Replacing binding of disabled unit")
	}

	r.types[typeName] = &descriptor.TypeBinding{
		Type:        typeName,
		UnitID:      unitID,
		Kind:        kind,
		Constructor: ctor,
		Options:     opts,
	}
	return nil
}

// RemoveUnitTypes drops every binding owned by a unit
func (r *Registry) RemoveUnitTypes(unitID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeUnitTypesLocked(unitID)
}

func (r *Registry) removeUnitTypesLocked(unitID string) {
	for name, b := range r.types {
		if b.UnitID == unitID {
			delete(r.types, name)
		}
	}
}

// ownerEnabled must be called with mu held. Units that are not committed yet
// belong to the running load pass, which only executes enabled units.
func (r *Registry) ownerEnabled(unitID string) bool {
	if u, ok := r.units[unitID]; ok {
		return u.Enabled
	}
	return true
}

// HasModule reports whether a module is committed
func (r *Registry) HasModule(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.modules[name]
	return ok
}

// AddModule commits a module descriptor. It fails with
// descriptor.ErrModuleAlreadyLoaded when the name is taken.
func (r *Registry) AddModule(m *descriptor.Module) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	return r.addModuleLocked(m)
}

func (r *Registry) addModuleLocked(m *descriptor.Module) error {
	if err := r.commitModuleLocked(m); err != nil {
		return err
	}
	for _, dep := range m.Dependencies {
		if d, ok := r.modules[dep]; ok {
			d.AddUsedBy(m.Name)
		}
	}
	return nil
}

// commitModuleLocked stores m and its units. UsedBy edges from m onto its
// own dependencies are left to the caller.
func (r *Registry) commitModuleLocked(m *descriptor.Module) error {
	if _, ok := r.modules[m.Name]; ok {
		return fmt.Errorf("%w: %s", descriptor.ErrModuleAlreadyLoaded, m.Name)
	}

	r.modules[m.Name] = m
	r.order = append(r.order, m.Name)
	for _, u := range m.Units {
		r.units[u.ID] = u
	}
	// modules committed earlier may depend on this one
	for _, other := range r.modules {
		for _, dep := range other.Dependencies {
			if dep == m.Name {
				m.AddUsedBy(other.Name)
			}
		}
	}

	r.configs.Purge()
	return nil
}

func (r *Registry) removeModuleLocked(name string) *descriptor.Module {
	m, ok := r.modules[name]
	if !ok {
		return nil
	}
	delete(r.modules, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	for _, u := range m.Units {
		r.removeUnitTypesLocked(u.ID)
		delete(r.units, u.ID)
	}
	for _, dep := range m.Dependencies {
		if d, ok := r.modules[dep]; ok {
			d.RemoveUsedBy(name)
		}
	}

	r.configs.Purge()
	return m
}

// records must be called with mu held
func (r *Registry) records() []storage.ModuleRecord {
	out := make([]storage.ModuleRecord, 0, len(r.order))
	for _, name := range r.order {
		m := r.modules[name]
		rec := storage.ModuleRecord{
			Name:    m.Name,
			Version: m.Version,
			Path:    m.Path,
			Local:   m.Local,
			User:    m.User,
			Units:   make([]storage.UnitRecord, 0, len(m.Units)),
		}
		for _, u := range m.Units {
			rec.Units = append(rec.Units, storage.UnitRecord{
				Name:    u.Name,
				Enabled: u.Enabled,
				Types:   append([]string{}, u.Types...),
			})
		}
		out = append(out, rec)
	}
	return out
}

// persist writes the committed module list. Failures are logged; the
// in-memory state stays authoritative.
func (r *Registry) persist(ctx context.Context) {
	r.persistMu.Lock()
	defer r.persistMu.Unlock()

	r.mu.RLock()
	records := r.records()
	r.mu.RUnlock()

	if err := r.store.Save(ctx, records); err != nil {
		r.log.WithError(err).Error("Failed to persist module list")
		if r.metrics != nil {
			r.metrics.PersistFailures.Inc()
		}
		return
	}

	r.mu.Lock()
	r.persisted = make(map[string]storage.ModuleRecord, len(records))
	for _, rec := range records {
		r.persisted[rec.Name] = rec
	}
	r.mu.Unlock()
}

// updateGauges must be called with mu held
func (r *Registry) updateGauges() {
	if r.metrics == nil {
		return
	}
	r.metrics.ModulesTotal.Set(float64(len(r.modules)))
	r.metrics.TypesTotal.Set(float64(len(r.types)))
}

func (r *Registry) recordUnits(units []*descriptor.Unit) {
	if r.metrics == nil {
		return
	}
	for _, u := range units {
		switch {
		case u.Loaded:
			r.metrics.UnitsLoadedTotal.WithLabelValues(string(u.Kind)).Inc()
		case u.Err != nil:
			r.metrics.UnitsFailedTotal.WithLabelValues(string(u.Kind), u.Err.Code).Inc()
		}
	}
}
