package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Fail gateway payments that passed the timeout window, once",
		Long: `Run a single timeout sweep. Orders paid by hosted or form-redirect gateway
that are still pending after the configured payment timeout are moved to
payment_status=failed with reason "timeout" and their orders cancelled.

Safe to run alongside "serve": a payment settled by a webhook in the meantime
is left untouched.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			moved, err := a.sweeper().SweepOnce(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "timed out %d pending payment(s)\n", moved)
			return nil
		},
	}
}
