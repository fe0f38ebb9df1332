package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"topicref/infrastructure/di"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the graph schema constraints and indexes",
	Args:  cobra.NoArgs,
	RunE:  runMigrate,
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := di.ProvideLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	store, cleanup, err := di.ProvideGraphStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := di.ProvideDatabase(store, logger).Migrate(ctx); err != nil {
		return err
	}
	logger.Info("Schema is up to date", zap.String("database", cfg.Neo4jDatabase))
	return nil
}
