package main

import (
	"context"
	"errors"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/echorelay/backend/internal/client"
	"github.com/echorelay/backend/internal/config"
	"github.com/spf13/cobra"
)

func connectCmd(opts *rootOptions) *cobra.Command {
	var (
		host  string
		port  int
		token string
	)

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Connect to a relay as a player",
		Long: `Connect to a running relay, send the session token, and echo stdin
through it. A random token is used when --token is empty.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			addr := net.JoinHostPort(host, strconv.Itoa(port))
			player, err := client.Dial(ctx, addr, token,
				client.WithLogger(opts.logger),
				client.WithOutput(cmd.OutOrStdout()),
			)
			if err != nil {
				return err
			}

			err = player.Run(ctx, cmd.InOrStdin())
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Relay host")
	cmd.Flags().IntVarP(&port, "port", "p", config.DefaultPort, "Relay port")
	cmd.Flags().StringVar(&token, "token", "", "Session token (default: random UUID)")
	return cmd
}
