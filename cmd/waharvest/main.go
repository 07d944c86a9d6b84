// Package main is the entry point for the waharvest CLI.
package main

import (
	"os"

	"github.com/waharvest/waharvest/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
