package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/echorelay/backend/internal/config"
	"github.com/echorelay/backend/internal/logging"
	"github.com/echorelay/backend/internal/tracing"
	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
)

// rootOptions holds state shared by every subcommand, filled in before the
// subcommand runs.
type rootOptions struct {
	configPath string
	tracing    bool

	cfg         *config.Config
	logger      *slog.Logger
	stopTracing func(context.Context) error
}

func (o *rootOptions) load(ctx context.Context) error {
	cfg, err := config.LoadOrDefault(o.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if o.tracing {
		cfg.Tracing.Enabled = true
	}
	logger, err := logging.New(cfg.Log, os.Stderr)
	if err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	slog.SetDefault(logger)

	stop, err := tracing.Setup(ctx, cfg.Tracing)
	if err != nil {
		return fmt.Errorf("configure tracing: %w", err)
	}
	if cfg.Tracing.Enabled {
		logger.Info("tracing enabled", "endpoint", cfg.Tracing.Endpoint)
	}

	o.cfg = cfg
	o.logger = logger
	o.stopTracing = stop
	return nil
}

// close flushes spans still buffered by the tracer provider.
func (o *rootOptions) close() {
	if o.stopTracing == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.stopTracing(ctx); err != nil && o.logger != nil {
		o.logger.Warn("flush traces", "err", err)
	}
	o.stopTracing = nil
}

func newRootCmd(opts *rootOptions) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "echo-relay",
		Short: "Session-scoped TCP echo relay",
		Long: `echo-relay hosts one game session: players connect over TCP, send a
length-prefixed session token, and every byte they send is echoed back.

The session reports its lifecycle to an orchestrator and ends on its own
once no players have been connected for the configured idle timeout.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return opts.load(cmd.Context())
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "config.yaml", "Path to config file")
	rootCmd.PersistentFlags().BoolVar(&opts.tracing, "tracing", false, "Export connection spans over OTLP/HTTP (overrides tracing.enabled)")

	rootCmd.AddCommand(
		dedicatedCmd(opts),
		localCmd(opts),
		connectCmd(opts),
		versionCmd(),
	)
	return rootCmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "echo-relay %s (%s) %s %s/%s\n",
				version, commit, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}

func main() {
	opts := &rootOptions{}
	err := newRootCmd(opts).Execute()
	opts.close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
