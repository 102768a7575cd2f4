package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/platinummonkey/noderegistry/pkg/descriptor"
	"github.com/platinummonkey/noderegistry/pkg/observability"
	"github.com/platinummonkey/noderegistry/pkg/resolver"
	"github.com/platinummonkey/noderegistry/pkg/scanner"
)

// InstallOptions narrows an install. Version, when set, must match the
// version found on disk. Path installs from an explicit package directory.
type InstallOptions struct {
	Version string
	Path    string
}

// Load runs the boot pass: it seeds enable state from the store, scans every
// root, and loads and commits all modules the registry does not hold yet.
// Calling it again picks up modules that appeared since.
func (r *Registry) Load(ctx context.Context) error {
	r.opMu.Lock()
	defer r.opMu.Unlock()
	if r.isClosed() {
		return ErrClosed
	}

	pass := uuid.NewString()
	log := r.log.WithField("pass", pass)
	ctx, span := observability.StartSpan(ctx, "registry.load", attribute.String("pass", pass))
	start := time.Now()

	r.seedFromStore(ctx, log)

	result, err := r.scanner.Scan(ctx)
	if err != nil {
		observability.EndSpan(span, err)
		return fmt.Errorf("scan failed: %w", err)
	}
	r.applyPriorState(result)

	plan := resolver.BuildPlan(result, r, r.hostVersion)
	for _, m := range result.List() {
		if m.Err == nil && !r.HasModule(m.Name) {
			r.loader.AttachModuleLocales(m)
		}
	}
	units := r.loader.LoadPlan(ctx, plan, r)
	r.recordUnits(units)
	r.recordRejections(plan.Rejected)

	r.mu.Lock()
	r.rejected = append([]descriptor.Rejection(nil), plan.Rejected...)
	for _, m := range result.List() {
		if _, ok := r.modules[m.Name]; ok {
			continue
		}
		if m.Err != nil {
			markRejected(m)
		}
		if err := r.addModuleLocked(m); err != nil {
			log.WithError(err).Warn("Module not committed")
		}
	}
	r.updateGauges()
	r.mu.Unlock()

	r.persist(ctx)

	if r.metrics != nil {
		r.metrics.LoadPassDuration.WithLabelValues("boot").Observe(time.Since(start).Seconds())
	}
	log.WithFields(logrus.Fields{
		"modules":  result.Len(),
		"units":    len(units),
		"rejected": len(plan.Rejected),
		"duration": time.Since(start),
	}).Info("Load pass complete")

	observability.EndSpan(span, nil)
	return nil
}

// InstallModule resolves a module and every dependency the registry does
// not hold, loads them, and commits them together. Nothing is committed when
// the module or any dependency cannot be found, or when one of them requires
// another host version.
func (r *Registry) InstallModule(ctx context.Context, name string, opts InstallOptions) (mod *descriptor.Module, err error) {
	r.opMu.Lock()
	defer r.opMu.Unlock()
	if r.isClosed() {
		return nil, ErrClosed
	}

	pass := uuid.NewString()
	log := r.log.WithFields(logrus.Fields{"pass": pass, "module": name})
	ctx, span := observability.StartSpan(ctx, "registry.install",
		attribute.String("pass", pass),
		attribute.String("module", name),
	)
	start := time.Now()
	defer func() {
		r.recordInstall("install", err)
		observability.EndSpan(span, err)
	}()

	var source resolver.ModuleSource = r.scanner
	if opts.Path != "" {
		source, err = r.pathSource(ctx, name, opts.Path)
		if err != nil {
			return nil, err
		}
	}

	closure, err := resolver.Resolve(ctx, source, name, r)
	if err != nil {
		log.WithError(err).Warn("Install failed")
		return nil, err
	}

	requested, _ := closure.Result.Get(name)
	if opts.Version != "" && requested.Version != opts.Version {
		err = fmt.Errorf("%w: %s@%s (found %s)", descriptor.ErrModuleNotFound, name, opts.Version, requested.Version)
		log.WithError(err).Warn("Install failed")
		return nil, err
	}
	requested.User = true
	r.applyPriorState(closure.Result)

	plan := resolver.BuildPlan(closure.Result, r, r.hostVersion)
	if len(plan.Rejected) > 0 {
		rej := plan.Rejected[0]
		err = fmt.Errorf("cannot install %s: %s: %w", name, rej.Module, rej.Reason)
		log.WithError(err).Warn("Install failed")
		return nil, err
	}

	for _, m := range closure.Modules() {
		r.loader.AttachModuleLocales(m)
	}
	units := r.loader.LoadPlan(ctx, plan, r)
	r.recordUnits(units)

	r.mu.Lock()
	for _, m := range closure.Modules() {
		if err := r.commitModuleLocked(m); err != nil {
			log.WithError(err).Warn("Module not committed")
		}
	}
	r.linkLocked(closure.Edges)
	mod = r.modules[name].Clone()
	r.updateGauges()
	r.mu.Unlock()

	r.persist(ctx)

	if r.metrics != nil {
		r.metrics.LoadPassDuration.WithLabelValues("install").Observe(time.Since(start).Seconds())
	}
	log.WithFields(logrus.Fields{
		"version":  mod.Version,
		"modules":  len(closure.Modules()),
		"units":    len(units),
		"duration": time.Since(start),
	}).Info("Module installed")

	return mod, nil
}

// linkLocked records each committed dependent in the UsedBy list of the
// module it depends on
func (r *Registry) linkLocked(edges []resolver.Edge) {
	for _, e := range edges {
		if _, ok := r.modules[e.Dependent]; !ok {
			continue
		}
		if d, ok := r.modules[e.Dependency]; ok {
			d.AddUsedBy(e.Dependent)
		}
	}
}

// UninstallModule removes a module, its units and their bindings. The host
// module cannot be removed, nor can a module another module depends on or
// one whose types a deployed flow uses.
func (r *Registry) UninstallModule(ctx context.Context, name string) (err error) {
	r.opMu.Lock()
	defer r.opMu.Unlock()
	if r.isClosed() {
		return ErrClosed
	}

	ctx, span := observability.StartSpan(ctx, "registry.uninstall", attribute.String("module", name))
	defer func() {
		r.recordInstall("uninstall", err)
		observability.EndSpan(span, err)
	}()

	r.mu.RLock()
	m, ok := r.modules[name]
	var usedBy []string
	var types []string
	if ok {
		usedBy = append(usedBy, m.UsedBy...)
		types = r.boundTypesLocked(m.Units...)
	}
	r.mu.RUnlock()

	switch {
	case !ok:
		return fmt.Errorf("%w: %s", descriptor.ErrModuleNotFound, name)
	case name == r.scanner.HostName():
		return fmt.Errorf("%w: %s", descriptor.ErrModuleNotRemovable, name)
	case len(usedBy) > 0:
		return fmt.Errorf("%w: %s is required by %v", descriptor.ErrModuleInUse, name, usedBy)
	}
	if t, inUse := r.firstInUse(ctx, types); inUse {
		return fmt.Errorf("%w: %s", descriptor.ErrTypeInUse, t)
	}

	r.mu.Lock()
	removed := r.removeModuleLocked(name)
	r.updateGauges()
	r.mu.Unlock()

	for _, u := range removed.Units {
		r.loader.Release(u)
	}
	r.loader.Catalog().Remove(name, true)

	r.persist(ctx)
	r.log.WithField("module", name).Info("Module uninstalled")
	return nil
}

// EnableNode enables a unit and loads it if it is not loaded yet
func (r *Registry) EnableNode(ctx context.Context, id string) (*descriptor.Unit, error) {
	r.opMu.Lock()
	defer r.opMu.Unlock()
	if r.isClosed() {
		return nil, ErrClosed
	}

	u, err := r.enableLocked(ctx, id)
	if err != nil {
		return nil, err
	}
	r.persist(ctx)
	return u, nil
}

// DisableNode disables a unit and drops its bindings. It fails with
// descriptor.ErrTypeInUse, leaving the unit enabled, when a deployed flow uses
// one of its types.
func (r *Registry) DisableNode(ctx context.Context, id string) (*descriptor.Unit, error) {
	r.opMu.Lock()
	defer r.opMu.Unlock()
	if r.isClosed() {
		return nil, ErrClosed
	}

	r.mu.RLock()
	u, ok := r.units[id]
	var types []string
	if ok {
		types = r.boundTypesLocked(u)
	}
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", descriptor.ErrUnitNotFound, id)
	}
	if t, inUse := r.firstInUse(ctx, types); inUse {
		return nil, fmt.Errorf("%w: %s", descriptor.ErrTypeInUse, t)
	}

	out := r.disable(u)
	r.persist(ctx)
	return out, nil
}

// SetModuleEnabled enables or disables every unit of a module. Disabling
// checks all of the module's types before changing anything.
func (r *Registry) SetModuleEnabled(ctx context.Context, name string, enabled bool) (*descriptor.Module, error) {
	r.opMu.Lock()
	defer r.opMu.Unlock()
	if r.isClosed() {
		return nil, ErrClosed
	}

	r.mu.RLock()
	m, ok := r.modules[name]
	var ids []string
	var types []string
	if ok {
		for _, u := range m.Units {
			ids = append(ids, u.ID)
		}
		types = r.boundTypesLocked(m.Units...)
	}
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", descriptor.ErrModuleNotFound, name)
	}

	if enabled {
		for _, id := range ids {
			if _, err := r.enableLocked(ctx, id); err != nil {
				return nil, err
			}
		}
	} else {
		if t, inUse := r.firstInUse(ctx, types); inUse {
			return nil, fmt.Errorf("%w: %s", descriptor.ErrTypeInUse, t)
		}
		r.mu.RLock()
		units := append([]*descriptor.Unit(nil), r.modules[name].Units...)
		r.mu.RUnlock()
		for _, u := range units {
			r.disable(u)
		}
	}

	r.persist(ctx)
	return r.GetModule(name)
}

// enableLocked must be called with opMu held
func (r *Registry) enableLocked(ctx context.Context, id string) (*descriptor.Unit, error) {
	r.mu.Lock()
	u, ok := r.units[id]
	if !ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", descriptor.ErrUnitNotFound, id)
	}
	m := r.modules[u.Module]
	if m.Err != nil {
		r.mu.Unlock()
		return nil, fmt.Errorf("cannot enable %s: %w", id, m.Err)
	}
	if u.Enabled && u.Loaded {
		r.mu.Unlock()
		return u.Clone(), nil
	}
	work := u.Clone()
	r.mu.Unlock()

	work.Enabled = true
	work.Loaded = false
	work.Err = nil
	r.loader.LoadUnit(ctx, work, r)
	r.recordUnits([]*descriptor.Unit{work})

	r.mu.Lock()
	r.replaceUnitLocked(work)
	r.updateGauges()
	r.mu.Unlock()

	r.log.WithFields(logrus.Fields{
		"unit":   id,
		"loaded": work.Loaded,
	}).Info("Unit enabled")
	return work.Clone(), nil
}

func (r *Registry) disable(u *descriptor.Unit) *descriptor.Unit {
	r.mu.Lock()
	work := u.Clone()
	wasLoaded := work.Loaded
	work.Enabled = false
	work.Loaded = false
	r.removeUnitTypesLocked(work.ID)
	r.replaceUnitLocked(work)
	r.updateGauges()
	r.mu.Unlock()

	if wasLoaded {
		r.loader.Release(work)
	}
	r.log.WithField("unit", work.ID).Info("Unit disabled")
	return work.Clone()
}

// replaceUnitLocked swaps a committed unit for an updated copy
func (r *Registry) replaceUnitLocked(u *descriptor.Unit) {
	m, ok := r.modules[u.Module]
	if !ok {
		return
	}
	for i, existing := range m.Units {
		if existing.ID == u.ID {
			m.Units[i] = u
		}
	}
	r.units[u.ID] = u
	r.configs.Purge()
}

// boundTypesLocked lists the type names currently bound to the given units
func (r *Registry) boundTypesLocked(units ...*descriptor.Unit) []string {
	owned := make(map[string]bool, len(units))
	for _, u := range units {
		owned[u.ID] = true
	}
	var out []string
	for _, u := range units {
		for _, t := range u.Types {
			if b, ok := r.types[t]; ok && owned[b.UnitID] {
				out = append(out, t)
			}
		}
	}
	return out
}

func (r *Registry) firstInUse(ctx context.Context, types []string) (string, bool) {
	for _, t := range types {
		if r.flows.TypeInUse(ctx, t) {
			return t, true
		}
	}
	return "", false
}

func (r *Registry) isClosed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.closed
}

func (r *Registry) seedFromStore(ctx context.Context, log *logrus.Entry) {
	records, err := r.store.Load(ctx)
	if err != nil {
		log.WithError(err).Warn("Failed to read persisted module list, starting with defaults")
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range records {
		r.persisted[rec.Name] = rec
	}
}

// applyPriorState restores the enabled flags and install origin recorded
// the last time a module was persisted
func (r *Registry) applyPriorState(result *scanner.Result) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, m := range result.List() {
		rec, ok := r.persisted[m.Name]
		if !ok {
			continue
		}
		m.User = m.User || rec.User
		for _, u := range m.Units {
			if ur, ok := rec.Unit(u.Name); ok {
				u.Enabled = ur.Enabled
			}
		}
	}
}

// pathSource resolves the requested module from an explicit directory and
// its dependencies from the scanner
func (r *Registry) pathSource(ctx context.Context, name, dir string) (resolver.ModuleSource, error) {
	result, err := r.scanner.ScanPath(ctx, dir)
	if err != nil {
		return nil, err
	}
	return &pathSource{Scanner: r.scanner, name: name, result: result}, nil
}

type pathSource struct {
	Scanner
	name   string
	result *scanner.Result
}

func (p *pathSource) ScanModule(ctx context.Context, name string) (*scanner.Result, error) {
	if name == p.name {
		return p.result, nil
	}
	return p.Scanner.ScanModule(ctx, name)
}

func (r *Registry) recordRejections(rejected []descriptor.Rejection) {
	for _, rej := range rejected {
		r.log.WithFields(logrus.Fields{
			"module": rej.Module,
			"code":   descriptor.Code(rej.Reason),
		}).WithError(rej.Reason).Warn("Module rejected")
		if r.metrics != nil {
			r.metrics.ModulesRejected.WithLabelValues(descriptor.Code(rej.Reason)).Inc()
		}
	}
}

func (r *Registry) recordInstall(op string, err error) {
	if r.metrics == nil {
		return
	}
	result := "success"
	if err != nil {
		result = descriptor.Code(err)
	}
	if op == "install" {
		r.metrics.InstallsTotal.WithLabelValues(result).Inc()
	} else {
		r.metrics.UninstallsTotal.WithLabelValues(result).Inc()
	}
}

// markRejected surfaces a module-level rejection on each of its units
func markRejected(m *descriptor.Module) {
	for _, u := range m.Units {
		if u.Err == nil {
			u.Err = descriptor.NewUnitError(m.Err, 0)
		}
		u.Loaded = false
	}
}
