// Package main provides the perfettosql command.
package main

import (
	"os"

	"github.com/leapstack-labs/perfettosql/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
