// Package main is the entry point for the rpcdash CLI.
package main

import (
	"os"

	"github.com/KafClaw/rpcdash/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
