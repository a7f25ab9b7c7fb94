package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bazaar/internal/authorization"
	"github.com/smallbiznis/bazaar/internal/clock"
	"github.com/smallbiznis/bazaar/internal/config"
	"github.com/smallbiznis/bazaar/internal/entity"
	"github.com/smallbiznis/bazaar/internal/lock"
	"github.com/smallbiznis/bazaar/internal/membership"
	"github.com/smallbiznis/bazaar/internal/migration"
	"github.com/smallbiznis/bazaar/internal/observability"
	"github.com/smallbiznis/bazaar/internal/onboarding"
	"github.com/smallbiznis/bazaar/internal/outbox"
	"github.com/smallbiznis/bazaar/internal/ratelimit"
	"github.com/smallbiznis/bazaar/internal/realm"
	"github.com/smallbiznis/bazaar/internal/server"
	"github.com/smallbiznis/bazaar/internal/user"
	"github.com/smallbiznis/bazaar/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "bazaar",
		Short:         "Realm-partitioned marketplace data and access-control service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newMigrateCommand())
	cmd.AddCommand(newPolicyCommand())

	return cmd
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fx.New(
				// Core Infrastructure
				config.Module,
				observability.Module,
				fx.Provide(RegisterSnowflake),
				db.Module,
				clock.Module,
				lock.Module,
				migration.Module,

				// Functional Domains
				realm.Module,
				membership.Module,
				authorization.Module,
				outbox.Module,
				user.Module,
				entity.Module,
				onboarding.Module,

				ratelimit.Module,
				server.Module,
			)
			app.Run()
			return app.Err()
		},
	}
}

func newMigrateCommand() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fx.New(
				config.Module,
				observability.Module,
				db.Module,
				migration.Module,
				fx.NopLogger,
			)
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			if err := app.Start(ctx); err != nil {
				return err
			}
			return app.Stop(ctx)
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "maximum time to wait for the schema to apply")
	return cmd
}

func newPolicyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "policy",
		Short: "Print the capability matrix per realm type and role",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := authorization.DefaultTable.Validate(); err != nil {
				return err
			}
			return authorization.DefaultTable.RenderMatrix(cmd.OutOrStdout())
		},
	}
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
