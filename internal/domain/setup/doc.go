// Package setup contains core domain types for pystrap runs.
//
// It defines Actor (who launched a run) and Run (one bootstrap or sync
// execution) with Clone helpers to avoid leaking internal references.
package setup
