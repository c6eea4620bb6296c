// Package config loads, normalizes, and validates telecine configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// AWS_ACCESS_KEY_ID. The Config type centralizes every knob the daemon and CLI
// need, allowing staging directories, object storage credentials, and playback
// signing material to be discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
