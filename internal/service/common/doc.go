// Package common holds helpers shared by several services.
//
// It provides installer-root path resolution, SHA-512 file checksums, a
// rate-limited HTTP client for fetching bundle files, the run marker that
// guards against parallel executions and utilities to detect the current
// system actor (hostname/username) for audit purposes.
//
//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common
