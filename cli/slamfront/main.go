// Package main is the slamfront command itself.
package main

import (
	"fmt"
	"os"

	"go.viam.com/slamfront/cli"
)

func main() {
	app := cli.NewApp(os.Stdout, os.Stderr)
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
