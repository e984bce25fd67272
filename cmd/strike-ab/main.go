package main

import (
	"os"

	"github.com/w3bsuki/strike-ab/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
