package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conneroisu/crucible/internal/config"
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter .crucible.yml configuration file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		path := ".crucible.yml"
		if err := config.WriteDefault(path); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)

		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
