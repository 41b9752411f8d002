// Package main provides the entry point for the docvector CLI.
package main

import (
	"os"

	"github.com/docvector/docvector/cmd/docvector/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
