package main

import (
	"fmt"
	"os"

	"github.com/dreschagin/quality-gate/internal/interfaces/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "gatectl:", err)
		os.Exit(cli.ExitCode(err))
	}
}
