package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/marketplace-checkout/internal/catalog"
	"github.com/vasiliy-maslov/marketplace-checkout/internal/checkout"
	"github.com/vasiliy-maslov/marketplace-checkout/internal/config"
	"github.com/vasiliy-maslov/marketplace-checkout/internal/db"
	"github.com/vasiliy-maslov/marketplace-checkout/internal/notify"
	"github.com/vasiliy-maslov/marketplace-checkout/internal/order"
	"github.com/vasiliy-maslov/marketplace-checkout/internal/payment"
	"github.com/vasiliy-maslov/marketplace-checkout/internal/reconcile"
)

// app holds the collaborators shared by every subcommand.
type app struct {
	cfg        *config.Config
	pg         *db.Postgres
	orders     order.Repository
	directory  catalog.Directory
	dispatcher *notify.Dispatcher
	templates  notify.Templates
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{
		cfg: cfg,
		templates: notify.Templates{
			VATRate:       cfg.Notification.VATRate,
			PublicBaseURL: cfg.App.PublicBaseURL,
		},
	}

	switch cfg.App.Store {
	case "memory":
		log.Warn().Msg("Using in-memory store, data is lost on restart")
		a.orders = order.NewMemoryRepository()
		a.directory = catalog.NewMemoryDirectory()
	default:
		if cfg.Postgres.AutoMigrate {
			if err := db.ApplyMigrations(cfg.Postgres); err != nil {
				return nil, err
			}
		}
		pg, err := db.New(ctx, cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		a.pg = pg
		a.orders = order.NewRepository(pg.Pool)
		a.directory = catalog.NewSQLDirectory(pg.SQLX())
	}

	var sender notify.Sender = notify.LogSender{}
	if cfg.Notification.ProviderURL != "" {
		sender = notify.NewEmailClient(cfg.Notification.ProviderURL, cfg.Notification.APIKey, cfg.Notification.Timeout)
	} else {
		log.Warn().Msg("No email provider configured, notifications are only logged")
	}
	a.dispatcher = notify.NewDispatcher(sender, cfg.Notification.Timeout)

	return a, nil
}

func (a *app) orchestrator() (*checkout.Orchestrator, error) {
	var hosted checkout.HostedGateway
	if a.cfg.HostedGateway.Enabled {
		hosted = payment.NewHostedGateway(a.cfg.HostedGateway)
	}
	var form checkout.FormGateway
	if a.cfg.FormGateway.Enabled {
		g, err := payment.NewFormGateway(a.cfg.FormGateway)
		if err != nil {
			return nil, err
		}
		form = g
	}

	return checkout.NewOrchestrator(a.orders, a.directory, hosted, form, a.dispatcher, a.templates, checkout.Options{
		MaxConcurrentStores: a.cfg.Checkout.MaxConcurrentStores,
		PublicBaseURL:       a.cfg.App.PublicBaseURL,
	}), nil
}

func (a *app) reconciler() (*reconcile.Reconciler, error) {
	var form reconcile.FormParser
	if a.cfg.FormGateway.Enabled {
		g, err := payment.NewFormGateway(a.cfg.FormGateway)
		if err != nil {
			return nil, err
		}
		form = g
	}
	return reconcile.NewReconciler(a.orders, form, a.dispatcher, a.templates), nil
}

func (a *app) sweeper() *reconcile.Sweeper {
	return reconcile.NewSweeper(a.orders, a.dispatcher, a.templates,
		a.cfg.Reconciliation.PaymentTimeout, a.cfg.Reconciliation.SweepBatchSize)
}

// Close waits for queued emails before releasing the database.
func (a *app) Close() {
	a.dispatcher.Wait()
	if a.pg != nil {
		a.pg.Close()
	}
}
