// Package commerce assembles the order, checkout, and reconciliation services
// shared by the api and cron-worker binaries.
package commerce

import (
	"context"
	"fmt"

	"github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/inventory"
	"github.com/angelmondragon/storefront-backend/internal/notifications"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/reconciliation"
	pkgcheckout "github.com/angelmondragon/storefront-backend/pkg/checkout"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/square"
	"github.com/angelmondragon/storefront-backend/pkg/stripe"
)

type Params struct {
	Config  *config.Config
	Logger  *logger.Logger
	DB      *db.Client
	Metrics *metrics.ReconciliationMetrics
}

// Stack holds the wired services. Stripe and Square are nil when not configured.
type Stack struct {
	Orders     orders.Service
	OrdersRepo orders.Repository
	Engine     *reconciliation.Engine
	Checkout   checkout.Service
	Stripe     *stripe.Client
	Square     *square.Client
}

func Build(ctx context.Context, params Params) (*Stack, error) {
	cfg, logg, dbClient := params.Config, params.Logger, params.DB
	if cfg == nil || logg == nil || dbClient == nil {
		return nil, fmt.Errorf("config, logger and database are required")
	}

	stack := &Stack{}
	var adapters []pkgcheckout.Processor
	if cfg.Stripe.APIKey != "" {
		client, err := stripe.NewClient(ctx, cfg.Stripe, logg)
		if err != nil {
			return nil, fmt.Errorf("stripe client: %w", err)
		}
		stack.Stripe = client
		adapters = append(adapters, client)
	}
	if cfg.Square.AccessToken != "" {
		client, err := square.NewClient(ctx, cfg.Square, logg)
		if err != nil {
			return nil, fmt.Errorf("square client: %w", err)
		}
		stack.Square = client
		adapters = append(adapters, client)
	}
	processors := pkgcheckout.NewProcessors(adapters...)
	active, err := enums.ParseProcessor(cfg.Checkout.ProcessorName())
	if err != nil {
		return nil, err
	}
	if _, err := processors.Get(active); err != nil {
		return nil, err
	}

	ob := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	ledger := inventory.NewLedger(logg)
	stack.OrdersRepo = orders.NewRepository(dbClient.DB())

	intake, err := orders.NewService(orders.ServiceParams{
		Repo:      stack.OrdersRepo,
		TX:        dbClient,
		Outbox:    ob,
		Inventory: ledger,
		Checkout:  cfg.Checkout,
		Logger:    logg,
	})
	if err != nil {
		return nil, fmt.Errorf("orders service: %w", err)
	}
	stack.Orders = intake

	notifier, err := notifications.NewEnqueuer(dbClient, ob)
	if err != nil {
		return nil, fmt.Errorf("notification enqueuer: %w", err)
	}

	engine, err := reconciliation.NewEngine(reconciliation.EngineParams{
		Orders:      stack.OrdersRepo,
		TX:          dbClient,
		Inventory:   ledger,
		Outbox:      ob,
		Processors:  processors,
		Notifier:    notifier,
		Metrics:     params.Metrics,
		Logger:      logg,
		PollTimeout: cfg.Checkout.PollTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("reconciliation engine: %w", err)
	}
	stack.Engine = engine

	broker, err := checkout.NewBroker(checkout.BrokerParams{
		Orders:     stack.OrdersRepo,
		Processors: processors,
		Outcomes:   engine,
		Config:     cfg.Checkout,
		Logger:     logg,
	})
	if err != nil {
		return nil, fmt.Errorf("checkout broker: %w", err)
	}
	placer, err := checkout.NewService(intake, broker)
	if err != nil {
		return nil, fmt.Errorf("checkout service: %w", err)
	}
	stack.Checkout = placer
	return stack, nil
}
