package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/windparklabs/windbill/internal/billingrule"
	"github.com/windparklabs/windbill/internal/clock"
	"github.com/windparklabs/windbill/internal/config"
	"github.com/windparklabs/windbill/internal/events"
	"github.com/windparklabs/windbill/internal/observability"
	"github.com/windparklabs/windbill/internal/redis"
	"github.com/windparklabs/windbill/internal/sepa"
	"github.com/windparklabs/windbill/internal/server"
	"github.com/windparklabs/windbill/internal/tenant"
	"github.com/windparklabs/windbill/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(registerSnowflake),
		db.Module,
		clock.Module,
		redis.Module,
		tenant.Module,
		events.Module,
		billingrule.Module,
		sepa.Module,
		server.Module,
	)
	app.Run()
}

func registerSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
