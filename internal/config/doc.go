// Package config loads, normalizes, and validates bidsify configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours the BIDSIFY_SUBJECT environment
// fallback. The Config value is passed explicitly into the workflow runner;
// nothing reads it as ambient state.
package config
