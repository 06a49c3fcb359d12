package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"erlessed-biometric/internal/audit"
	"erlessed-biometric/internal/biometric"
	"erlessed-biometric/internal/config"
	"erlessed-biometric/internal/migrate"
	"erlessed-biometric/pkg/logger"
	"erlessed-biometric/pkg/utils"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Prepare the configured store",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending SQL migrations (postgres) or ensure indexes (mongo)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd.Context())
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List embedded SQL migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := migrate.Files()
			if err != nil {
				return err
			}
			for _, n := range names {
				fmt.Fprintln(cmd.OutOrStdout(), n)
			}
			return nil
		},
	}

	cmd.AddCommand(upCmd, listCmd)
	return cmd
}

func runMigrate(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return fmt.Errorf("logger init failed: %w", err)
	}
	defer logger.Sync(log)

	switch cfg.Store.Driver {
	case config.DriverPostgres:
		db, err := utils.OpenPostgres(ctx, cfg.PostgresDSN(), utils.PostgresPoolConfig{MaxOpenConns: 1})
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer db.Close()

		applied, err := migrate.Apply(ctx, db, log)
		if err != nil {
			log.Error("migration failed", zap.Strings("applied", applied), zap.Error(err))
			return err
		}
		log.Info("migrations complete", zap.Int("applied", len(applied)))

	case config.DriverMongo:
		client, mdb, err := utils.OpenMongo(ctx, utils.MongoConfig{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database})
		if err != nil {
			return fmt.Errorf("mongo: %w", err)
		}
		defer func() { _ = client.Disconnect(context.Background()) }()

		if err := ensureMongoIndexes(ctx,
			biometric.NewMongoStore(mdb.Collection(biometric.FingerprintsCollection)),
			audit.NewMongoRepo(mdb.Collection(audit.LogsCollection)),
		); err != nil {
			log.Error("index creation failed", zap.Error(err))
			return err
		}
		log.Info("mongo indexes ensured", zap.String("database", cfg.Mongo.Database))

	default:
		log.Info("nothing to migrate", zap.String("driver", cfg.Store.Driver))
	}
	return nil
}
