// Package config defines the configuration for a simulation run.
//
// Regardless of how a simulation is started, directly from Go code or from
// the command line, it uses the Config object defined in this package to
// store and forward configuration options. On top of these options, the CLI
// relies on a data directory, defined by Config.DataDir, where it looks for
// an optional gossiplearn.toml file and where the badger-backed snapshot
// cache keeps its database when the store flag is set.
package config
