// Package config loads, normalizes, and validates callscope configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// CALLSCOPE_SOURCE_API_KEY. The Config type centralizes every knob the server
// and CLI need, so provider credentials, retry bounds, and cache lifetimes are
// discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
