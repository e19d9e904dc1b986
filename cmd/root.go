// Package cmd provides the command-line interface for Crucible.
//
// Configuration is layered: command-line flags take precedence over
// CRUCIBLE_-prefixed environment variables, which take precedence over the
// .crucible.yml configuration file. Examples:
//
//	CRUCIBLE_COMPILE_STRATEGY=permissive crucible compile welcome.tsx
//	crucible compile --strategy wasm-validated welcome.tsx
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/crucible/internal/config"
	"github.com/conneroisu/crucible/internal/logging"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "crucible",
	Short: "Compile sandboxed email templates to HTML",
	Long: `Crucible compiles untrusted TSX email templates into HTML documents.

Templates run inside a sandbox with no filesystem, network, or process
access; only the template runtime and component library are importable.
Three sandbox strategies are available, trading startup cost for
isolation strength: permissive, heap-isolated (default), and
wasm-validated.

Quick Start:
  crucible compile welcome.tsx          Compile a template to stdout
  crucible preview welcome.tsx          Serve it with live reload
  crucible init                         Write a starter .crucible.yml`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .crucible.yml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

// initConfig wires viper to the config file and CRUCIBLE_ environment
// variables. A missing config file is not an error.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".crucible")
	}

	viper.SetEnvPrefix("CRUCIBLE")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// loadConfig resolves the effective configuration for a command run.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	return cfg, nil
}

// newLogger builds the process logger from configuration.
func newLogger(cfg *config.Config) logging.Logger {
	level := logging.LevelInfo
	switch cfg.Log.Level {
	case "debug":
		level = logging.LevelDebug
	case "warn":
		level = logging.LevelWarn
	case "error":
		level = logging.LevelError
	}

	return logging.NewLogger(&logging.LoggerConfig{
		Level:  level,
		Format: cfg.Log.Format,
		Output: os.Stderr,
	})
}
