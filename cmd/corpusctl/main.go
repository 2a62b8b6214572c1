// Package main provides the entry point for the corpusctl CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/corpusctl/cmd/corpusctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
