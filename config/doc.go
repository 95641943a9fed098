// Package config loads dossier configuration from defaults, an optional YAML
// file, a .env file and environment variables.
package config
