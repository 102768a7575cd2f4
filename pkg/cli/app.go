package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/noderegistry/pkg/config"
	"github.com/platinummonkey/noderegistry/pkg/corenodes"
	"github.com/platinummonkey/noderegistry/pkg/filter"
	"github.com/platinummonkey/noderegistry/pkg/i18n"
	"github.com/platinummonkey/noderegistry/pkg/loader"
	"github.com/platinummonkey/noderegistry/pkg/loader/lua"
	"github.com/platinummonkey/noderegistry/pkg/observability"
	"github.com/platinummonkey/noderegistry/pkg/registry"
	"github.com/platinummonkey/noderegistry/pkg/scanner"
	"github.com/platinummonkey/noderegistry/pkg/storage"
)

// app is the registry and its collaborators built from a Config
type app struct {
	cfg      *config.Config
	log      *logrus.Logger
	registry *registry.Registry
	gatherer prometheus.Gatherer
	metrics  *observability.Metrics
	health   *observability.HealthChecker
}

func newLogger(cfg *config.Config, out io.Writer) (*logrus.Logger, error) {
	return observability.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat, out)
}

// newApp opens the store and wires scanner, loader and registry. The
// registry is not loaded yet.
func newApp(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*app, error) {
	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s storage: %w", cfg.Storage.Type, err)
	}

	sc := scanner.New(scanner.Options{
		HostName:    cfg.Host.Name,
		HostVersion: cfg.Host.Version,
		Roots: scanner.Roots{
			CoreDir:    cfg.Paths.CoreDir,
			UserDir:    cfg.Paths.UserDir,
			NodesDirs:  cfg.Paths.NodesDirs,
			InstallDir: cfg.Host.InstallDir,
		},
		Filter:           filter.New(cfg.Filter.Include, cfg.Filter.Exclude),
		MaxAncestorDepth: cfg.Loader.MaxAncestorDepth,
		Logger:           log,
	})

	native := loader.NewNativeRuntime()
	corenodes.Register(native, cfg.Host.Name)

	ld := loader.New(loader.Options{
		Runtimes:       []loader.Runtime{native, lua.New(log)},
		Catalog:        i18n.NewCatalog(cfg.Host.DefaultLang),
		EditorDisabled: cfg.Editor.Disabled,
		Concurrency:    cfg.Loader.Concurrency,
		Logger:         log,
	})

	a := &app{cfg: cfg, log: log}
	if cfg.Observability.MetricsEnabled {
		promReg := prometheus.NewRegistry()
		a.metrics = observability.NewMetrics(promReg)
		a.gatherer = promReg
	}

	reg, err := registry.New(registry.Options{
		Scanner:     sc,
		Loader:      ld,
		Store:       store,
		HostVersion: cfg.Host.Version,
		Metrics:     a.metrics,
		Logger:      log,
	})
	if err != nil {
		store.Close()
		return nil, err
	}
	a.registry = reg

	a.health = observability.NewHealthChecker(cfg.Host.Version)
	a.health.Register("storage", func(ctx context.Context) error {
		_, err := store.Load(ctx)
		return err
	}, true)

	return a, nil
}

// load runs the boot pass
func (a *app) load(ctx context.Context) error {
	if err := a.registry.Load(ctx); err != nil {
		return fmt.Errorf("load pass failed: %w", err)
	}
	return nil
}

func (a *app) close() error {
	return a.registry.Close()
}
