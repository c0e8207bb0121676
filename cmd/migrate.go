package cmd

import (
	"context"
	"log"

	"github.com/spf13/cobra"

	"github.com/plateful/plateful/internal/repositories/postgres"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()

		ctx := context.Background()
		store, err := postgres.NewStore(ctx, &cfg.Database)
		if err != nil {
			log.Fatalf("Failed to open store: %v", err)
		}
		defer store.Close()

		if err := store.Migrate(ctx); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		log.Printf("Schema applied")
	},
}
