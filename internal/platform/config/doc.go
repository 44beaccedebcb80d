// Package config loads gateway configuration from the environment
// (optionally seeded from a .env file) and validates it.
package config
