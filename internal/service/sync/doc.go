// Package sync refreshes local bootstrap files from a published bundle.
//
// The bundle folder hosts a YAML description mapping file names to SHA-512
// checksums. Files whose local copies differ are downloaded and applied
// atomically with checksum validation, so a half-written manifest never
// reaches the installer. The pack command produces the description.
package sync
