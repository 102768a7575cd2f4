// Package cli implements the nodereg command line.
//
// Commands:
//
//	nodereg serve   load every module and serve the admin API
//	nodereg scan    run a load pass and print a per-module report
//	nodereg list    list units, optionally filtered by module, kind or error state
//
// Configuration comes from an optional YAML file (--config), NODEREG_*
// environment variables and the flags below, which override both:
//
//	--log-level, --log-format, --core-dir, --user-dir, --storage
//	serve: --addr, --watch
package cli
