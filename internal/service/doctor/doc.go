// Package doctor implements read-only diagnostics for the installation.
//
// It probes the Python interpreter and the package manager, inspects the
// requirements manifest, verifies required environment variables (with
// '|'-separated alternates), looks for a usable credentials JSON in the
// configured candidate locations and reports missing workspace directories.
// The command fails only when a check fails; warnings leave the exit
// status untouched.
package doctor
