// Package config loads, normalizes, and validates crossvoice configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// CROSSVOICE_MODEL_DIR. Checkpoint, metadata and dataset paths that are
// relative resolve against runtime.model_dir, so a config can point at an
// AutoVC checkout and keep the checkpoint layout it ships with.
//
// Always obtain settings through this package so downstream code receives
// absolute paths, lower-cased enum values, and clear validation errors.
package config
