package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/spf13/cobra"
	"github.com/windparklabs/windbill/internal/billingrule"
	"github.com/windparklabs/windbill/internal/clock"
	"github.com/windparklabs/windbill/internal/config"
	"github.com/windparklabs/windbill/internal/events"
	"github.com/windparklabs/windbill/internal/migration"
	"github.com/windparklabs/windbill/internal/observability"
	"github.com/windparklabs/windbill/internal/redis"
	"github.com/windparklabs/windbill/internal/scheduler"
	"github.com/windparklabs/windbill/internal/seed"
	"github.com/windparklabs/windbill/internal/sepa"
	"github.com/windparklabs/windbill/internal/server"
	"github.com/windparklabs/windbill/internal/tenant"
	"github.com/windparklabs/windbill/pkg/db"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "windbill",
		Short:   "Windbill CLI",
		Version: readVersionFromEnv(),
	}
	root.AddCommand(newMigrateCmd(), newSeedCmd(), newServeCmd(), newSchedulerCmd(), newAllCmd())
	return root
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations and activate schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(migration.Module)
		},
	}
}

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Install the demo tenant with wind parks, leases and rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(fx.Invoke(func(gdb *gorm.DB) error {
				return seed.EnsureDemoTenant(gdb)
			}))
		},
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the billing API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			fx.New(append(serveModules(), server.Module)...).Run()
			return nil
		},
	}
}

func newSchedulerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scheduler",
		Short: "Run the rule scheduler and webhook dispatcher",
		RunE: func(cmd *cobra.Command, args []string) error {
			fx.New(append(serveModules(), scheduler.Module, fx.Invoke(startScheduler))...).Run()
			return nil
		},
	}
}

func newAllCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "all",
		Short: "Run migrations, then start the API server and scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := runOnce(migration.Module); err != nil {
				return err
			}
			fx.New(append(serveModules(),
				server.Module,
				scheduler.Module,
				fx.Invoke(startScheduler),
			)...).Run()
			return nil
		},
	}
}

func serveModules() []fx.Option {
	return []fx.Option{
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
	}
}

// runOnce starts a minimal fx app, lets the invoked option do its work during
// startup, and stops again.
func runOnce(opt fx.Option) error {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(registerSnowflake),
		db.Module,
		opt,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := app.Start(ctx); err != nil {
		return err
	}
	return app.Stop(context.Background())
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

func readVersionFromEnv() string {
	if v := strings.TrimSpace(os.Getenv("APP_VERSION")); v != "" {
		return v
	}
	return "dev"
}
