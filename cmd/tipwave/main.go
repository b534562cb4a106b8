package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/tipwave/tipwave/internal/billing"
	"github.com/tipwave/tipwave/internal/clock"
	"github.com/tipwave/tipwave/internal/config"
	"github.com/tipwave/tipwave/internal/debit"
	"github.com/tipwave/tipwave/internal/idempotency"
	"github.com/tipwave/tipwave/internal/logger"
	"github.com/tipwave/tipwave/internal/migration"
	obsmetrics "github.com/tipwave/tipwave/internal/observability/metrics"
	"github.com/tipwave/tipwave/internal/payout"
	"github.com/tipwave/tipwave/internal/provider"
	"github.com/tipwave/tipwave/internal/restaurant"
	"github.com/tipwave/tipwave/internal/scheduler"
	"github.com/tipwave/tipwave/internal/server"
	"github.com/tipwave/tipwave/internal/settlement"
	"github.com/tipwave/tipwave/internal/transfer"
	"github.com/tipwave/tipwave/internal/webhook"
	"github.com/tipwave/tipwave/pkg/db"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		logger.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		obsmetrics.Module,

		// Functional domains
		idempotency.Module,
		provider.Module,
		restaurant.Module,
		settlement.Module,
		transfer.Module,
		debit.Module,
		payout.Module,
		billing.Module,
		webhook.Module,

		scheduler.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
