package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/noderegistry/pkg/async"
	"github.com/platinummonkey/noderegistry/pkg/descriptor"
	"github.com/platinummonkey/noderegistry/pkg/observability"
	"github.com/platinummonkey/noderegistry/pkg/registry"
)

const (
	// DefaultDebounce is how long a module directory must stay quiet before
	// it is installed
	DefaultDebounce = 500 * time.Millisecond

	manifestFile    = "package.json"
	shutdownTimeout = 5 * time.Second
)

// Installer is the registry surface the watcher drives
type Installer interface {
	HasModule(name string) bool
	InstallModule(ctx context.Context, name string, opts registry.InstallOptions) (*descriptor.Module, error)
}

// Options configures a Watcher
type Options struct {
	// Dir is the node_modules directory to watch
	Dir       string
	Debounce  time.Duration
	Installer Installer
	Logger    *logrus.Logger
}

// Watcher installs modules that appear in a node_modules directory. Events
// for a module are debounced; installs run one at a time.
type Watcher struct {
	dir       string
	debounce  time.Duration
	installer Installer
	log       *logrus.Logger
	fs        *fsnotify.Watcher

	mu     sync.Mutex
	pool   *async.WorkerPool
	timers map[string]*time.Timer
}

// New creates a watcher on opts.Dir, creating the directory if needed
func New(opts Options) (*Watcher, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("watch directory is required")
	}
	if opts.Installer == nil {
		return nil, fmt.Errorf("installer is required")
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}

	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", opts.Dir, err)
	}

	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	w := &Watcher{
		dir:       filepath.Clean(opts.Dir),
		debounce:  opts.Debounce,
		installer: opts.Installer,
		log:       opts.Logger,
		fs:        fs,
		timers:    make(map[string]*time.Timer),
	}

	if err := w.setup(); err != nil {
		fs.Close()
		return nil, err
	}
	return w, nil
}

// setup watches the directory and every existing @scope directory
func (w *Watcher) setup() error {
	if err := w.fs.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", w.dir, err)
	}
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), "@") {
			if err := w.fs.Add(filepath.Join(w.dir, e.Name())); err != nil {
				return fmt.Errorf("failed to watch scope %s: %w", e.Name(), err)
			}
		}
	}
	return nil
}

// Run processes events until ctx is done, then waits for a running install
func (w *Watcher) Run(ctx context.Context) error {
	pool := async.NewWorkerPool(ctx, 1, "module-watch", 0, w.log)
	w.mu.Lock()
	w.pool = pool
	w.mu.Unlock()

	w.log.WithField("dir", w.dir).Info("Watching for new modules")

	for {
		select {
		case <-ctx.Done():
			w.stop()
			if err := pool.Shutdown(shutdownTimeout); err != nil {
				w.log.WithError(err).Warn("Install still running at shutdown")
			}
			return nil

		case event, ok := <-w.fs.Events:
			if !ok {
				w.stop()
				return pool.Shutdown(shutdownTimeout)
			}
			w.handle(event)

		case err, ok := <-w.fs.Errors:
			if !ok {
				w.stop()
				return pool.Shutdown(shutdownTimeout)
			}
			w.log.WithError(err).Warn("Watcher error")

		case err := <-pool.Errors():
			w.log.WithError(err).Error("Automatic install failed")
		}
	}
}

// Close stops watching the filesystem
func (w *Watcher) Close() error {
	w.stop()
	return w.fs.Close()
}

func (w *Watcher) handle(event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}

	rel, err := filepath.Rel(w.dir, event.Name)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if strings.HasPrefix(parts[0], ".") {
		return
	}

	depth := 1
	if strings.HasPrefix(parts[0], "@") {
		if len(parts) == 1 {
			if isDir(event.Name) {
				w.watchScope(event.Name)
			}
			return
		}
		depth = 2
	}
	name := strings.Join(parts[:depth], "/")

	switch {
	case len(parts) == depth && isDir(event.Name):
		// the manifest may be written after the directory appears
		if err := w.fs.Add(event.Name); err != nil {
			w.log.WithField("path", event.Name).WithError(err).Debug("Failed to watch module directory")
		}
		w.schedule(name)
	case len(parts) == depth+1 && parts[depth] == manifestFile:
		w.schedule(name)
	}
}

// watchScope watches a new @scope directory and picks up module
// directories created before the watch was in place
func (w *Watcher) watchScope(dir string) {
	if err := w.fs.Add(dir); err != nil {
		w.log.WithField("path", dir).WithError(err).Warn("Failed to watch scope directory")
		return
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			w.handle(fsnotify.Event{Name: filepath.Join(dir, e.Name()), Op: fsnotify.Create})
		}
	}
}

func (w *Watcher) schedule(name string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[name]; ok {
		t.Reset(w.debounce)
		return
	}
	w.timers[name] = time.AfterFunc(w.debounce, func() { w.fire(name) })
}

func (w *Watcher) fire(name string) {
	defer observability.RecoverPanic(w.log, "module watcher")

	w.mu.Lock()
	delete(w.timers, name)
	pool := w.pool
	w.mu.Unlock()

	if pool == nil {
		return
	}
	if err := pool.Submit(func(ctx context.Context) error {
		return w.install(ctx, name)
	}); err != nil {
		w.log.WithField("module", name).WithError(err).Debug("Install not queued")
	}
}

func (w *Watcher) stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for name, t := range w.timers {
		t.Stop()
		delete(w.timers, name)
	}
}

func (w *Watcher) install(ctx context.Context, name string) error {
	log := w.log.WithField("module", name)
	if w.installer.HasModule(name) {
		log.Debug("Module already loaded")
		return nil
	}

	m, err := w.installer.InstallModule(ctx, name, registry.InstallOptions{})
	switch {
	case err == nil:
		log.WithField("version", m.Version).Info("Installed new module")
		return nil
	case errors.Is(err, descriptor.ErrModuleAlreadyLoaded):
		return nil
	case errors.Is(err, descriptor.ErrModuleNotFound) && !errors.Is(err, descriptor.ErrMissingDependency):
		// not a node module, or its manifest is not complete yet
		log.WithError(err).Debug("Nothing to install")
		return nil
	}
	return fmt.Errorf("install %s: %w", name, err)
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
