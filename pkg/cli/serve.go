package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/platinummonkey/noderegistry/pkg/api"
	"github.com/platinummonkey/noderegistry/pkg/observability"
	"github.com/platinummonkey/noderegistry/pkg/watcher"
)

func newServeCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Load every module and serve the admin API",
		Long: `Run a load pass over all scan roots, then serve the admin HTTP API until
interrupted. With watch.enabled, modules appearing under the user's
node_modules directory are installed automatically.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().String("addr", "", "Listen address for the admin API")
	cmd.Flags().Bool("watch", false, "Install modules as they appear in node_modules")
	_ = opts.v.BindPFlag("server.addr", cmd.Flags().Lookup("addr"))
	_ = opts.v.BindPFlag("watch.enabled", cmd.Flags().Lookup("watch"))

	return cmd
}

func runServe(cmd *cobra.Command, opts *globalOptions) error {
	a, err := opts.open(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	cfg := a.cfg

	if err := a.load(ctx); err != nil {
		a.close()
		return err
	}

	server := api.NewServer(api.Options{
		Registry: a.registry,
		Logger:   a.log,
		Metrics:  a.metrics,
		Gatherer: a.gatherer,
		Health:   a.health,
	})
	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	shutdown := observability.NewShutdownManager(a.log, httpServer, cfg.Server.ShutdownTimeout)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if cfg.Watch.Enabled {
		w, err := watcher.New(watcher.Options{
			Dir:       filepath.Join(cfg.Paths.UserDir, "node_modules"),
			Debounce:  cfg.Watch.Debounce,
			Installer: a.registry,
			Logger:    a.log,
		})
		if err != nil {
			a.close()
			return fmt.Errorf("failed to start module watcher: %w", err)
		}
		watchDone := make(chan struct{})
		go func() {
			defer close(watchDone)
			if err := w.Run(runCtx); err != nil {
				a.log.WithError(err).Warn("Module watcher stopped")
			}
		}()
		shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
			cancel()
			select {
			case <-watchDone:
			case <-ctx.Done():
			}
			return w.Close()
		})
	}

	listenErr := make(chan error, 1)
	go func() {
		a.log.WithField("addr", httpServer.Addr).Info("Admin API listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErr <- err
			cancel()
		}
	}()

	shutdownErr := shutdown.WaitForShutdown(runCtx)

	// closed last so the watcher cannot install into it
	closeErr := a.close()

	select {
	case err := <-listenErr:
		return fmt.Errorf("admin API failed: %w", err)
	default:
	}
	if shutdownErr != nil {
		return shutdownErr
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close registry: %w", closeErr)
	}
	return nil
}
