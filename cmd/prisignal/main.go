// Package main provides the prisignal CLI.
package main

import (
	"fmt"
	"os"

	"prisignal/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
