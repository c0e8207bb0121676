package cmd

import (
	"context"
	"log"
	"time"

	"github.com/spf13/cobra"

	"github.com/plateful/plateful/internal/export"
)

var exportDays int

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the points-transaction ledger to parquet",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()

		store := openStore(cfg)
		defer store.Close()

		exporter, err := export.NewParquetExporter(cfg)
		if err != nil {
			log.Fatalf("Failed to create exporter: %v", err)
		}

		to := time.Now().UTC()
		from := to.AddDate(0, 0, -exportDays)
		if err := exporter.Export(context.Background(), store.Stats(), from, to); err != nil {
			log.Fatalf("Export failed: %v", err)
		}
	},
}

func init() {
	exportCmd.Flags().IntVar(&exportDays, "days", 30, "How many days back to export")
}
