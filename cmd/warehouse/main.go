// Package main is the entry point for the warehouse CLI binary.
package main

import (
	"os"

	"github.com/hugr-lab/warehouse-go/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
