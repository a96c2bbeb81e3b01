package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/echorelay/backend/internal/client"
	"github.com/echorelay/backend/internal/config"
	"github.com/echorelay/backend/internal/relay"
	"github.com/echorelay/backend/internal/session"
	"github.com/spf13/cobra"
)

func localCmd(opts *rootOptions) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "local",
		Short: "Run a loopback relay and a player client in one process",
		Long: `Start a silent relay on 127.0.0.1, connect a player to it once it is
ready, and echo stdin through it. The relay is shut down when stdin ends.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			if port > 0 {
				cfg.Server.Port = port
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runLocal(ctx, cfg, opts.logger, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "Override server port")
	return cmd
}

func runLocal(ctx context.Context, cfg *config.Config, logger *slog.Logger, in io.Reader, out io.Writer) error {
	state := session.NewState(nil, cfg.Server.IdleTimeout)
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(cfg.Server.Port))
	srv := relay.NewServer(addr, state, relay.WithSilent(true), relay.WithLogger(logger))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- srv.Run(runCtx) }()

	select {
	case <-srv.Ready():
	case err := <-done:
		return err
	case <-ctx.Done():
		cancel()
		return <-done
	}

	player, err := client.Dial(ctx, srv.Addr().String(), "", client.WithLogger(logger), client.WithOutput(out))
	if err != nil {
		cancel()
		<-done
		return err
	}

	runErr := player.Run(ctx, in)
	cancel()
	if err := <-done; err != nil {
		return err
	}
	if errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}
