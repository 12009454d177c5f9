package main

import (
	"os"

	"github.com/openpa/chartcheck/cmd/chartcheck/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
