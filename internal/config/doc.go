// Package config loads, validates and persists the daemon's YAML settings.
//
// Secrets (the sync token and the MQTT password) are never written to the
// YAML file; they come from the environment, optionally seeded from a .env
// file via godotenv.
package config
