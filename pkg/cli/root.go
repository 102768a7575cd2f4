package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/platinummonkey/noderegistry/pkg/config"
)

// globalOptions are shared by every subcommand
type globalOptions struct {
	configFile string
	v          *viper.Viper
}

// NewRootCommand creates the nodereg command tree
func NewRootCommand(version string) *cobra.Command {
	opts := &globalOptions{v: config.New()}

	root := &cobra.Command{
		Use:   "nodereg",
		Short: "Node and plugin module registry",
		Long: `nodereg discovers node and plugin modules under the core, user and node_modules
directories, loads them in dependency order and serves the resulting registry.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configFile, "config", "c", "", "Path to a YAML config file")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	flags.String("log-format", "", "Log format (text, json)")
	flags.String("core-dir", "", "Directory holding the host's core units")
	flags.String("user-dir", "", "User directory containing node_modules/")
	flags.String("storage", "", "Storage backend (memory, filesystem, sqlite, postgres, redis, s3)")

	for key, flag := range map[string]string{
		"observability.log_level":  "log-level",
		"observability.log_format": "log-format",
		"paths.core_dir":           "core-dir",
		"paths.user_dir":           "user-dir",
		"storage.type":             "storage",
	} {
		// the flag names are static, binding only fails on a nil flag
		_ = opts.v.BindPFlag(key, flags.Lookup(flag))
	}

	root.AddCommand(newServeCommand(opts))
	root.AddCommand(newScanCommand(opts))
	root.AddCommand(newListCommand(opts))

	return root
}

// Execute runs the root command
func Execute(ctx context.Context, version string) error {
	return NewRootCommand(version).ExecuteContext(ctx)
}

// load reads the config file, if any, and builds the Config
func (o *globalOptions) load() (*config.Config, error) {
	if o.configFile != "" {
		o.v.SetConfigFile(o.configFile)
		if err := o.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", o.configFile, err)
		}
	}
	return config.FromViper(o.v)
}

// open loads the config and builds the app, logging to the command's stderr
func (o *globalOptions) open(cmd *cobra.Command) (*app, error) {
	cfg, err := o.load()
	if err != nil {
		return nil, err
	}
	log, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	return newApp(cmd.Context(), cfg, log)
}
