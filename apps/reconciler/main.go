// Standalone reconciliation runner for deployments that keep the sweep off
// the API nodes. It shares every module with the monolith except the HTTP
// server.
package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/creditrail/creditrail/internal/balancecache"
	"github.com/creditrail/creditrail/internal/clock"
	"github.com/creditrail/creditrail/internal/config"
	"github.com/creditrail/creditrail/internal/grant"
	"github.com/creditrail/creditrail/internal/ledger"
	"github.com/creditrail/creditrail/internal/metrics"
	"github.com/creditrail/creditrail/internal/migration"
	"github.com/creditrail/creditrail/internal/plan"
	"github.com/creditrail/creditrail/internal/reconciler"
	"github.com/creditrail/creditrail/internal/subscription"
	"github.com/creditrail/creditrail/pkg/db"
	"github.com/creditrail/creditrail/pkg/log"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		log.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		metrics.Module,
		balancecache.Module,
		migration.Module,

		plan.Module,
		ledger.Module,
		subscription.Module,
		grant.Module,

		// No server module.
		reconciler.Module,
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
