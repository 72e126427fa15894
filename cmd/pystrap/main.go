// Package main is the entry point for the pystrap command-line tool.
package main

import "github.com/oshokin/pystrap/cmd/pystrap/cmd"

func main() {
	cmd.Execute()
}
