// Package config loads, normalizes, and validates streamgate configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// STREAMGATE_STREAM_SECRET. An optional .env file in the working directory is
// loaded first so secrets can live outside the TOML file during development.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
