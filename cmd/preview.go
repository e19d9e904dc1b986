package cmd

import (
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/conneroisu/crucible/internal/pipeline"
	"github.com/conneroisu/crucible/internal/preview"
	"github.com/conneroisu/crucible/internal/watcher"
)

var (
	previewHost    string
	previewPort    int
	previewNoWatch bool
)

// previewCmd represents the preview command
var previewCmd = &cobra.Command{
	Use:   "preview <template.tsx>",
	Short: "Serve a compiled template with live reload",
	Long: `Preview starts a local HTTP server that compiles the template on
every request. With watching enabled (the default), saving the template
file reloads connected browsers over a WebSocket.

Examples:
  crucible preview welcome.tsx
  crucible preview welcome.tsx --port 9000
  crucible preview welcome.tsx --no-watch`,
	Args: cobra.ExactArgs(1),
	RunE: runPreviewCommand,
}

func init() {
	rootCmd.AddCommand(previewCmd)

	previewCmd.Flags().StringVar(&previewHost, "host", "", "host to listen on")
	previewCmd.Flags().IntVarP(&previewPort, "port", "p", 0, "port to listen on")
	previewCmd.Flags().BoolVar(&previewNoWatch, "no-watch", false, "disable file watching and live reload")
}

func runPreviewCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	host := cfg.Preview.Host
	if previewHost != "" {
		host = previewHost
	}
	port := cfg.Preview.Port
	if previewPort != 0 {
		port = previewPort
	}
	watch := cfg.Preview.Watch && !previewNoWatch

	templatePath, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("resolving template path: %w", err)
	}

	p, err := pipeline.New(pipeline.Options{
		Strategy:    cfg.Strategy(),
		Timeout:     cfg.Compile.Timeout,
		MemoryLimit: cfg.MemoryLimit(),
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	server := preview.New(p, preview.Options{
		Host:         host,
		Port:         port,
		TemplatePath: templatePath,
		LiveReload:   watch,
		Logger:       logger,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if watch {
		w, err := watcher.New(watcher.DefaultDebounce, func(paths []string) {
			server.NotifyChanged(ctx, paths)
		}, logger)
		if err != nil {
			return err
		}
		if err := w.Add(filepath.Dir(templatePath)); err != nil {
			return err
		}
		go func() { _ = w.Run(ctx) }()
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Previewing %s at http://%s\n", filepath.Base(templatePath), server.Addr())

	if err := server.Start(ctx); err != nil && ctx.Err() == nil {
		return err
	}

	return nil
}
