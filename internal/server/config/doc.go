// Package config defines the node configuration.
//
//   - spec.go: NodeConfig struct definition
//   - default.go: default values
//   - verify.go: validation
//   - sanitize.go: masking secrets for logs
//   - convert.go: mapping onto the lifecycle, store and overlay configs
//
// Configuration is loaded via internal/infra/confloader from a YAML file,
// MESHKV_ environment variables and command-line flags.
package config
