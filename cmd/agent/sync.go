package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/saturnino-fabrica-de-software/presenca/internal/audit"
	"github.com/saturnino-fabrica-de-software/presenca/internal/roster"
)

var syncQuiet bool

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Replace the roster directory with the student photos from the attendance API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}

		client, err := newAPIClient(cfg, logger)
		if err != nil {
			return err
		}
		if client == nil {
			return fmt.Errorf("sync needs API_BASE_URL")
		}

		opts := []roster.SyncerOption{}
		var bar *progressbar.ProgressBar
		if !syncQuiet {
			opts = append(opts, roster.WithProgress(func(done, total int) {
				if bar == nil {
					bar = progressbar.NewOptions(total,
						progressbar.OptionSetDescription("Syncing roster"),
						progressbar.OptionSetWriter(os.Stderr),
						progressbar.OptionShowCount(),
					)
				}
				_ = bar.Set(done)
			}))
		}

		written, err := roster.NewSyncer(client, cfg.RosterDir, logger, opts...).Sync(cmd.Context())
		if bar != nil {
			_ = bar.Finish()
			fmt.Fprintln(os.Stderr)
		}
		event := audit.Event{
			EventType: audit.EventRosterSynced,
			Success:   err == nil,
			Metadata:  map[string]string{"photos": strconv.Itoa(written), "dir": cfg.RosterDir},
		}
		if err != nil {
			event.Error = err.Error()
		}
		_ = audit.NewSlogLogger(logger).Log(cmd.Context(), event)
		if err != nil {
			return err
		}

		fmt.Fprintf(os.Stdout, "%d photos written to %s\n", written, cfg.RosterDir)
		return nil
	},
}

func init() {
	syncCmd.Flags().BoolVarP(&syncQuiet, "quiet", "q", false, "Do not draw a progress bar")
	rootCmd.AddCommand(syncCmd)
}
