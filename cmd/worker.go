package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/conneroisu/crucible/internal/sandbox"
)

// workerCmd is the hidden entry point the heap-isolated strategy uses when
// it re-executes this binary as a validation worker. It reads module code
// from stdin and writes a JSON verdict to stdout.
var workerCmd = &cobra.Command{
	Use:    sandbox.WorkerSubcommand,
	Hidden: true,
	Args:   cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		os.Exit(sandbox.RunWorker(os.Stdin, os.Stdout))
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
