package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	checkoutHttp "github.com/vasiliy-maslov/marketplace-checkout/internal/handler/http"
	"github.com/vasiliy-maslov/marketplace-checkout/internal/order"
)

func serveCmd() *cobra.Command {
	var noSweep bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the payment timeout sweeper",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(noSweep)
		},
	}
	cmd.Flags().BoolVar(&noSweep, "no-sweep", false, "do not run the timeout sweeper in this process")
	return cmd
}

func runServe(noSweep bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log.Info().Str("env", cfg.App.Env).Str("store", cfg.App.Store).Msg("Checkout service starting...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	orchestrator, err := a.orchestrator()
	if err != nil {
		return err
	}
	reconciler, err := a.reconciler()
	if err != nil {
		return err
	}

	router := checkoutHttp.NewRouter(checkoutHttp.RouterConfig{
		ServiceName:       cfg.App.Name,
		ServiceRoleSecret: cfg.Auth.ServiceRoleSecret,
		Checkout:          checkoutHttp.NewCheckoutHandler(orchestrator),
		Webhooks:          checkoutHttp.NewWebhookHandler(reconciler),
		Orders:            checkoutHttp.NewOrderHandler(order.NewService(a.orders)),
		Notifications:     checkoutHttp.NewNotificationHandler(a.dispatcher),
	})

	server := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 40 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	sweepDone := make(chan struct{})
	if noSweep {
		close(sweepDone)
	} else {
		go func() {
			defer close(sweepDone)
			a.sweeper().Run(ctx, cfg.Reconciliation.SweepInterval)
		}()
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.App.Port).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down...")
	case err := <-serverErr:
		if err != nil {
			stop()
			<-sweepDone
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}
	<-sweepDone

	log.Info().Msg("Checkout service stopped gracefully")
	return nil
}
