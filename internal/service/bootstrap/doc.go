// Package bootstrap implements the main setup workflow: upgrade the Python
// package manager, verify the requirements manifest and install everything
// it pins.
//
// The manifest resolves against the installer root (the directory above the
// executable), never against the caller's working directory, so the command
// behaves the same from any shell location. A run marker prevents parallel
// executions and every finished run lands in the journal.
package bootstrap
