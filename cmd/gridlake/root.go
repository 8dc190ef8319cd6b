package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/gridlake-io/gridlake/internal/config"
	"github.com/gridlake-io/gridlake/internal/logging"
)

// globalOptions are the flags shared by every command.
type globalOptions struct {
	configPath string
	logLevel   string
	logFormat  string
	out        io.Writer
}

func execute(args []string) int {
	opts := &globalOptions{out: os.Stdout}
	root := newRootCmd(opts)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd(opts *globalOptions) *cobra.Command {
	root := &cobra.Command{
		Use:           "gridlake",
		Short:         "File ingestion and table reconciliation",
		Long:          "Convert delimited files to Parquet, catalog them and keep the query service's tables and model views current.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to configuration file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "Override log format (json, text)")

	root.AddCommand(
		newIngestCmd(opts),
		newCollisionsCmd(opts),
		newQueryCmd(opts),
		newGCCmd(opts),
		newVersionCmd(opts),
	)
	return root
}

// loadConfig reads the configuration and applies flag overrides.
func (o *globalOptions) loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if o.configPath != "" {
		cfg, err = config.LoadFromPath(o.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if o.logLevel != "" {
		cfg.Observability.LogLevel = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Observability.LogFormat = o.logFormat
	}
	return cfg, nil
}

// open loads the configuration, configures logging and builds the app.
func (o *globalOptions) open(ctx context.Context) (*app, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	logger := logging.Configure(cfg.Observability.LogLevel, cfg.Observability.LogFormat)
	return newApp(ctx, cfg, logger)
}
