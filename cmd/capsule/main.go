// Package main is the entry point for the capsule CLI.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/runoshun/capsule/internal/cli"
)

// version is set at build time using -ldflags.
var version = "dev"

func main() {
	if err := cli.Run(context.Background(), os.Args[1:], version, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
