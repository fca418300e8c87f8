package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rzd-etran/broker/internal/config"
	"github.com/rzd-etran/broker/internal/store"
)

func newResetQueueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset-queue",
		Short: "Return every claimed-but-unfinished row to the pool without starting the pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := newLogger()

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			db, err := store.NewMSSQLStore(ctx, store.Config{
				Server:   cfg.DB.Server,
				Database: cfg.DB.Database,
				User:     cfg.DB.User,
				Password: cfg.DB.Password,
			})
			if err != nil {
				return fmt.Errorf("connect to database: %w", err)
			}
			defer db.Close()

			if err := db.ResetProcessingQueue(ctx); err != nil {
				return fmt.Errorf("reset processing queue: %w", err)
			}
			logger.Info("processing queue reset")
			return nil
		},
	}
}
