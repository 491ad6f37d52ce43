package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/creditrail/creditrail/internal/access"
	"github.com/creditrail/creditrail/internal/balancecache"
	"github.com/creditrail/creditrail/internal/clock"
	"github.com/creditrail/creditrail/internal/config"
	"github.com/creditrail/creditrail/internal/grant"
	"github.com/creditrail/creditrail/internal/ledger"
	"github.com/creditrail/creditrail/internal/metrics"
	"github.com/creditrail/creditrail/internal/migration"
	"github.com/creditrail/creditrail/internal/plan"
	"github.com/creditrail/creditrail/internal/reconciler"
	"github.com/creditrail/creditrail/internal/server"
	"github.com/creditrail/creditrail/internal/subscription"
	"github.com/creditrail/creditrail/internal/webhook"
	"github.com/creditrail/creditrail/pkg/db"
	"github.com/creditrail/creditrail/pkg/log"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		log.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		metrics.Module,
		balancecache.Module,
		migration.Module,

		// Functional domains
		plan.Module,
		ledger.Module,
		subscription.Module,
		grant.Module,
		webhook.Module,
		access.Module,
		reconciler.Module,

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
