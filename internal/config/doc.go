// Package config loads the server settings from a YAML file, an optional
// .env file and environment overrides.
package config
