// Package config defines the settings shared by the pystrap commands and
// provides helpers to load, validate and save them in YAML format.
//
// Every field is optional: an absent settings file simply means built-in
// defaults, so a bare `pystrap` run works in a project that was never
// configured.
package config
