// Package config loads and validates the modeld service configuration
// from a YAML file, with environment variable overrides for the
// settings that differ between deployments.
package config
