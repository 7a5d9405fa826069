// Package config handles configuration loading and management for hitbrowse.
//
// It provides functionality for:
//   - Loading configuration from .hitbrowse.config.json or .hitbrowserc files
//   - Default configuration values
//   - Merging file settings with command line overrides
package config
