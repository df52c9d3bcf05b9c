package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/saturnino-fabrica-de-software/presenca/internal/attendance"
)

var outboxBatch int

var outboxCmd = &cobra.Command{
	Use:   "outbox",
	Short: "Redeliver the attendance reports that are due, once",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		if !cfg.HasDatabase() {
			return fmt.Errorf("outbox needs DATABASE_URL")
		}

		client, err := newAPIClient(cfg, logger)
		if err != nil {
			return err
		}
		if client == nil {
			return fmt.Errorf("outbox needs API_BASE_URL")
		}

		pool, err := openPool(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer pool.Close()

		outbox := attendance.NewOutbox(pool)
		worker := attendance.NewWorker(outbox, client, attendance.WorkerConfig{BatchSize: outboxBatch}, logger)

		delivered, err := worker.ProcessOnce(ctx)
		if err != nil {
			return err
		}

		pending, err := outbox.Pending(ctx)
		if err != nil {
			return err
		}

		fmt.Fprintf(os.Stdout, "%d delivered, %d pending\n", delivered, pending)
		return nil
	},
}

func init() {
	outboxCmd.Flags().IntVar(&outboxBatch, "batch", 50, "Maximum entries to redeliver")
	rootCmd.AddCommand(outboxCmd)
}
