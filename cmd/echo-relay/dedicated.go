package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/echorelay/backend/internal/config"
	"github.com/echorelay/backend/internal/metrics"
	"github.com/echorelay/backend/internal/orchestrator"
	"github.com/echorelay/backend/internal/relay"
	"github.com/echorelay/backend/internal/session"
	"github.com/echorelay/backend/internal/ws"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

func dedicatedCmd(opts *rootOptions) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "dedicated",
		Short: "Run the relay as a managed game server",
		Long: `Run the relay server until the session idles out or SIGINT/SIGTERM is
received. Lifecycle transitions are reported to the orchestrator, and the
status server exposes the session feed, health and metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			if port > 0 {
				cfg.Server.Port = port
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runDedicated(ctx, cfg, opts.logger)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "Override server port")
	return cmd
}

func runDedicated(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.New(metrics.WithRegistry(registry))

	orch := orchestrator.NewLocal(cfg.Orchestrator.Strict, logger.With("component", "orchestrator"))
	calls := orchestrator.NewCallHealth(orchestrator.DefaultFailureThreshold)
	callbacks := orchestrator.NewCallbacks(orch, logger, calls)

	state := session.NewState(callbacks, cfg.Server.IdleTimeout, session.WithObservers(collector))

	var broadcaster *ws.Broadcaster
	if cfg.Status.Enabled {
		broadcaster = ws.NewBroadcaster(
			state.Snapshot,
			cfg.Status.SnapshotInterval,
			cfg.Status.MaxConnections,
			logger.With("component", "status"),
		)
		defer broadcaster.Stop()
		broadcaster.SetPrivacyFilter(&session.PrivacyFilter{MaskTokens: cfg.Status.MaskTokens})
		state.AddObserver(broadcaster)
	}

	srv := relay.NewServer(cfg.Server.Addr(), state,
		relay.WithSilent(cfg.Server.Silent),
		relay.WithHandshakeTimeout(cfg.Server.HandshakeTimeout),
		relay.WithLogger(logger),
		relay.WithStats(collector),
	)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	statusDone := make(chan error, 1)
	if broadcaster != nil {
		checker := orchestrator.NewChecker(orchestrator.HealthThresholds{
			MaxCPUPercent:    cfg.Orchestrator.MaxCPUPercent,
			MaxMemoryPercent: cfg.Orchestrator.MaxMemoryPercent,
		}, calls)
		handler := ws.NewServer(broadcaster, ws.ServerOptions{
			AllowedOrigins: cfg.Status.AllowedOrigins,
			AuthToken:      cfg.Status.AuthToken,
			Health:         checker,
			Metrics:        promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
			Reserve:        orch.Reserve,
			Logger:         logger.With("component", "status"),
		}).Routes()

		go func() {
			err := ws.ListenAndServe(runCtx, cfg.Status.Addr(), handler, logger)
			if err != nil {
				logger.Error("status server failed", "err", err)
				cancel()
			}
			statusDone <- err
		}()
	} else {
		statusDone <- nil
	}

	err := srv.Run(runCtx)
	cancel()

	if statusErr := <-statusDone; statusErr != nil && err == nil {
		err = fmt.Errorf("status server: %w", statusErr)
	}
	return err
}
