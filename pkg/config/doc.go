// Package config loads application configuration with viper.
//
// Values come from defaults, an optional YAML file, and NODEREG_* environment
// variables, in increasing precedence. Nested keys map to variables by
// replacing dots with underscores:
//
//	NODEREG_HOST_NAME="node-red"
//	NODEREG_HOST_VERSION="4.0.0"
//	NODEREG_PATHS_USER_DIR="/data"
//	NODEREG_LOADER_CONCURRENCY="1"
//	NODEREG_STORAGE_TYPE="sqlite"        # memory, filesystem, sqlite, postgres, redis, s3
//	NODEREG_STORAGE_SQLITE_DSN="file:/data/nodes.db"
//	NODEREG_SERVER_ADDR=":1880"
//	NODEREG_OBSERVABILITY_LOG_LEVEL="debug"
//
// The same settings in YAML:
//
//	host:
//	  name: node-red
//	  version: 4.0.0
//	paths:
//	  user_dir: /data
//	  nodes_dirs: [/opt/nodes]
//	filter:
//	  exclude: ["node-red-contrib-legacy-*"]
//	storage:
//	  type: redis
//	  redis_url: redis://localhost:6379/0
//
// Load validates the result:
//
//	cfg, err := config.Load(path)
package config
