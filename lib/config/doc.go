// Package config provides configuration management for the conngate daemon.
//
// Configuration is resolved in the usual precedence order: explicit viper
// overrides, environment variables (CONNGATE_ prefix, dots replaced by
// underscores, e.g. CONNGATE_CONTROL_ADDRESS), the config file, then the
// defaults from Defaults().
//
// The config file lives at $HOME/.conngate/config.yaml unless a path is
// supplied via the --config flag. A missing default file is created on first
// start so operators have something concrete to edit.
package config
