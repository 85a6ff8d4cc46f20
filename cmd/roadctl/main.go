// Package main is the entry point for the roadwatch CLI tool.
package main

import (
	"os"

	"github.com/good-yellow-bee/roadwatch/cmd/roadctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
