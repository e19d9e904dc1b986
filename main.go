package main

import (
	"os"

	"github.com/conneroisu/crucible/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
