package loader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/noderegistry/pkg/descriptor"
	"github.com/platinummonkey/noderegistry/pkg/i18n"
	"github.com/platinummonkey/noderegistry/pkg/template"
)

const (
	// DefaultConcurrency executes units one at a time in plan order
	DefaultConcurrency = 1

	localesDir         = "locales"
	maxMetadataWorkers = 8
)

// panicError is a recovered panic from an implementation
type panicError struct {
	value interface{}
	stack []byte
}

func (e *panicError) Error() string {
	return fmt.Sprintf("panic: %v", e.value)
}

// Options configures a Loader
type Options struct {
	Runtimes       []Runtime
	Catalog        *i18n.Catalog
	EditorDisabled bool
	Concurrency    int
	Logger         *logrus.Logger
}

// Loader loads units through their runtimes
type Loader struct {
	runtimes       map[string]Runtime
	catalog        *i18n.Catalog
	editorDisabled bool
	concurrency    int
	log            *logrus.Logger
}

// New creates a loader
func New(opts Options) *Loader {
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	if opts.Catalog == nil {
		opts.Catalog = i18n.NewCatalog("")
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}

	l := &Loader{
		runtimes:       make(map[string]Runtime),
		catalog:        opts.Catalog,
		editorDisabled: opts.EditorDisabled,
		concurrency:    opts.Concurrency,
		log:            opts.Logger,
	}
	for _, rt := range opts.Runtimes {
		for _, ext := range rt.Extensions() {
			l.runtimes[ext] = rt
		}
	}
	return l
}

// Extensions lists the implementation extensions the loader can execute
func (l *Loader) Extensions() []string {
	out := make([]string, 0, len(l.runtimes))
	for ext := range l.runtimes {
		out = append(out, ext)
	}
	return out
}

// Catalog returns the catalog locale files are registered in
func (l *Loader) Catalog() *i18n.Catalog {
	return l.catalog
}

// AttachModuleLocales registers a module's shared locales directory under
// the module name
func (l *Loader) AttachModuleLocales(m *descriptor.Module) {
	if m.Path == "" {
		return
	}
	dir := filepath.Join(m.Path, localesDir)
	if !isDir(dir) {
		return
	}
	if _, err := l.catalog.RegisterDir(m.Name, dir, ""); err != nil {
		l.log.WithField("module", m.Name).WithError(err).Warn("Failed to load module locales")
	}
}

// AttachMetadata resolves the unit's catalog namespace and reads its
// template. Disabled units are left untouched.
func (l *Loader) AttachMetadata(ctx context.Context, unit *descriptor.Unit) *descriptor.Unit {
	if !unit.Enabled || unit.Err != nil {
		return unit
	}

	base := strings.TrimSuffix(filepath.Base(unit.File), filepath.Ext(unit.File))
	dir := filepath.Join(filepath.Dir(unit.File), localesDir)
	helpFromLocales := map[string]string{}

	if isDir(dir) {
		unit.Namespace = unit.ID
		langs, err := l.catalog.RegisterDir(unit.ID, dir, base)
		if err == nil && len(langs) == 0 {
			langs, err = l.catalog.RegisterDir(unit.ID, dir, "")
		}
		if err != nil {
			l.log.WithFields(logrus.Fields{
				"module": unit.Module,
				"unit":   unit.ID,
			}).WithError(err).Warn("Failed to load unit locales")
		}
		for _, lang := range l.langDirs(dir) {
			data, err := os.ReadFile(filepath.Join(dir, lang, base+".html"))
			if err == nil {
				helpFromLocales[i18n.Canonical(lang)] = string(data)
			}
		}
	} else {
		unit.Namespace = unit.Module
	}

	if l.editorDisabled {
		return unit
	}

	parsed, err := template.ParseFile(unit.Template, l.catalog.DefaultLang())
	if err != nil {
		unit.Err = descriptor.NewUnitError(fmt.Errorf("%w: %v", descriptor.ErrLoadFailed, err), 0)
		return unit
	}

	unit.Types = mergeTypes(unit.Types, parsed.Types)
	unit.Config = parsed.Config
	unit.Help = parsed.Help
	for lang, help := range helpFromLocales {
		if _, ok := unit.Help[lang]; !ok {
			unit.Help[lang] = help
		}
	}

	return unit
}

// Execute runs the unit's implementation. Disabled units are skipped. The
// unit ends up either Loaded or carrying Err.
func (l *Loader) Execute(ctx context.Context, unit *descriptor.Unit, api RegistrationAPI) *descriptor.Unit {
	if !unit.Enabled || unit.Err != nil {
		return unit
	}

	log := l.log.WithFields(logrus.Fields{
		"module": unit.Module,
		"unit":   unit.ID,
	})

	rt, ok := l.runtimes[filepath.Ext(unit.File)]
	if !ok {
		unit.Err = descriptor.NewUnitError(fmt.Errorf("%w: no runtime for %q files", descriptor.ErrLoadFailed, filepath.Ext(unit.File)), 0)
		log.Warn("Unit has no runtime")
		return unit
	}

	red := newRED(unit, api, l.catalog, log)
	err := l.run(ctx, rt, unit, red)

	if conflict := red.conflictErr(); conflict != nil {
		err = conflict
	}

	if err != nil {
		api.RemoveUnitTypes(unit.ID)
		if rel, ok := rt.(Releaser); ok {
			rel.Release(unit.ID)
		}

		trace := err.Error()
		var pe *panicError
		if errors.As(err, &pe) {
			trace += "\n" + string(pe.stack)
		}
		if !isTaxonomyError(err) {
			err = fmt.Errorf("%w: %v", descriptor.ErrLoadFailed, err)
		}
		unit.Err = descriptor.NewUnitError(err, sourceLine(trace, unit.File))
		unit.Loaded = false
		log.WithError(err).Warn("Unit failed to load")
		return unit
	}

	unit.Types = mergeTypes(unit.Types, red.registeredTypes())
	unit.Loaded = true
	unit.Err = nil
	log.Debug("Unit loaded")
	return unit
}

// LoadUnit attaches metadata and executes the unit
func (l *Loader) LoadUnit(ctx context.Context, unit *descriptor.Unit, api RegistrationAPI) *descriptor.Unit {
	l.AttachMetadata(ctx, unit)
	return l.Execute(ctx, unit, api)
}

// LoadPhase loads a set of units and returns once every one of them has
// reached a terminal state. Metadata for the whole phase is attached before
// any implementation runs.
func (l *Loader) LoadPhase(ctx context.Context, units []*descriptor.Unit, api RegistrationAPI) []*descriptor.Unit {
	if len(units) == 0 {
		return units
	}

	// A pass is never interrupted once started; ctx only reaches the
	// implementations themselves.
	meta := new(errgroup.Group)
	meta.SetLimit(metadataWorkers(len(units)))
	for _, u := range units {
		meta.Go(func() error {
			l.AttachMetadata(ctx, u)
			return nil
		})
	}
	_ = meta.Wait()

	exec := new(errgroup.Group)
	exec.SetLimit(l.concurrency)
	for _, u := range units {
		exec.Go(func() error {
			l.Execute(ctx, u, api)
			return nil
		})
	}
	_ = exec.Wait()

	return units
}

// LoadPlan runs the plugin phase, waits for it, then runs the node phase
func (l *Loader) LoadPlan(ctx context.Context, plan *descriptor.Plan, api RegistrationAPI) []*descriptor.Unit {
	l.LoadPhase(ctx, plan.PluginUnits, api)
	l.LoadPhase(ctx, plan.NodeUnits, api)
	return plan.Units()
}

// Release frees runtime resources held for a unit
func (l *Loader) Release(unit *descriptor.Unit) {
	if rt, ok := l.runtimes[filepath.Ext(unit.File)]; ok {
		if rel, ok := rt.(Releaser); ok {
			rel.Release(unit.ID)
		}
	}
}

func (l *Loader) run(ctx context.Context, rt Runtime, unit *descriptor.Unit, red *RED) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r, stack: debug.Stack()}
		}
	}()
	return rt.Execute(ctx, unit, red)
}

func (l *Loader) langDirs(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	return out
}

func metadataWorkers(units int) int {
	if units < maxMetadataWorkers {
		return units
	}
	return maxMetadataWorkers
}

func isTaxonomyError(err error) bool {
	return descriptor.Code(err) != "unknown"
}

func mergeTypes(existing, more []string) []string {
	out := append([]string{}, existing...)
	for _, t := range more {
		found := false
		for _, e := range out {
			if e == t {
				found = true
				break
			}
		}
		if !found {
			out = append(out, t)
		}
	}
	return out
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
