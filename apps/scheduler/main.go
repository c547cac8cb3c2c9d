package main

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/windparklabs/windbill/internal/billingrule"
	"github.com/windparklabs/windbill/internal/clock"
	"github.com/windparklabs/windbill/internal/config"
	"github.com/windparklabs/windbill/internal/events"
	"github.com/windparklabs/windbill/internal/observability"
	"github.com/windparklabs/windbill/internal/scheduler"
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
		tenant.Module,
		events.Module,
		billingrule.Module,
		scheduler.Module,
		fx.Invoke(startScheduler),
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

func startScheduler(lc fx.Lifecycle, s *scheduler.Scheduler) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() { _ = s.Run(ctx) }()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}
