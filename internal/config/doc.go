// Package config loads, validates, and normalizes clipper configuration.
//
// Configuration is read from a TOML file. The search order is an explicit
// --config path, then ~/.config/clipper/config.toml, then ./clipper.toml.
// Missing files are not an error; defaults apply and unknown keys in a
// present file are ignored. All path values accept a leading ~ and are
// resolved to absolute paths during load.
package config
