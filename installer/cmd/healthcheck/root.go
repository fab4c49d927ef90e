package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/spf13/cobra"

	"github.com/irgordon/trafficx/installer/internal/workers"
)

const checkTimeout = 10 * time.Second

func newRootCmd() *cobra.Command {
	var (
		port   int
		scheme string
	)

	cmd := &cobra.Command{
		Use:          "healthcheck",
		Short:        "Check that the Traffic-X panel answers on loopback",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if scheme != "http" && scheme != "https" {
				return fmt.Errorf("unsupported scheme %q", scheme)
			}
			if port < 1 || port > 65535 {
				return fmt.Errorf("port %d out of range", port)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), checkTimeout)
			defer cancel()

			// a single attempt; monitors call this on their own schedule
			probe := workers.NewHealthProbe(slog.New(slog.NewTextHandler(io.Discard, nil))).
				WithBackOff(func() backoff.BackOff { return &backoff.StopBackOff{} })

			url := workers.LoopbackURL(scheme, port)
			if err := probe.Wait(ctx, url); err != nil {
				return fmt.Errorf("unhealthy: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "healthy: %s\n", url)
			return nil
		},
	}

	cmd.Flags().IntVar(&port, "port", 5000, "port the panel listens on")
	cmd.Flags().StringVar(&scheme, "scheme", "http", "http or https")
	return cmd
}
