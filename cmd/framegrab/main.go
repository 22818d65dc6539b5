// Package main is the entry point for the framegrab application.
package main

import (
	"os"

	"github.com/jmylchreest/framegrab/cmd/framegrab/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
