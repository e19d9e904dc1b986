package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/conneroisu/crucible/internal/errors"
	"github.com/conneroisu/crucible/internal/pipeline"
	"github.com/conneroisu/crucible/internal/sandbox"
)

var (
	compileStrategy string
	compileOutput   string
)

// compileCmd represents the compile command
var compileCmd = &cobra.Command{
	Use:   "compile <template.tsx>",
	Short: "Compile a template to an HTML document",
	Long: `Compile reads a TSX template, executes it inside the configured
sandbox, and writes the rendered HTML document.

The exit status is non-zero on any compilation failure; the error output
names the phase that failed (validation, transpile, execution, or render).

Examples:
  crucible compile welcome.tsx
  crucible compile welcome.tsx -o welcome.html
  crucible compile --strategy permissive welcome.tsx`,
	Args: cobra.ExactArgs(1),
	RunE: runCompileCommand,
}

func init() {
	rootCmd.AddCommand(compileCmd)

	compileCmd.Flags().StringVarP(&compileStrategy, "strategy", "s", "",
		"sandbox strategy (permissive, heap-isolated, wasm-validated)")
	compileCmd.Flags().StringVarP(&compileOutput, "output", "o", "",
		"write the document to a file instead of stdout")
}

func runCompileCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	strategy := cfg.Strategy()
	if compileStrategy != "" {
		strategy, err = sandbox.ParseKind(compileStrategy)
		if err != nil {
			return err
		}
	}

	source, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading template: %w", err)
	}

	p, err := pipeline.New(pipeline.Options{
		Strategy:    strategy,
		Timeout:     cfg.Compile.Timeout,
		MemoryLimit: cfg.MemoryLimit(),
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	out, err := p.Compile(cmd.Context(), string(source))
	if err != nil {
		return describeFailure(err)
	}

	if compileOutput != "" {
		if err := os.WriteFile(compileOutput, []byte(out), 0o644); err != nil {
			return fmt.Errorf("writing output: %w", err)
		}
		return nil
	}

	fmt.Fprintln(cmd.OutOrStdout(), out)

	return nil
}

// describeFailure turns a pipeline error into the CLI-facing message.
func describeFailure(err error) error {
	phase := errors.PhaseOf(err)
	if phase == "" {
		return err
	}

	hint := ""
	switch {
	case errors.IsTimeout(err):
		hint = " (the sandbox terminated the run at its time limit)"
	case phase == errors.PhaseValidation:
		hint = " (fix the template source and resubmit)"
	}

	return fmt.Errorf("%s%s", err.Error(), hint)
}
