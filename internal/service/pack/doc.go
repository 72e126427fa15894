// Package pack produces the bundle description consumed by sync.
//
// The command is run inside the checkout being published: it hashes the
// configured bundle files from the working directory, writes
// pystrap-bundle.yaml next to them and persists the bundle folder URL into
// the settings. The operator then uploads the listed files to that folder.
package pack
