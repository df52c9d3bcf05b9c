package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/saturnino-fabrica-de-software/presenca/internal/attendance"
	"github.com/saturnino-fabrica-de-software/presenca/internal/config"
	"github.com/saturnino-fabrica-de-software/presenca/internal/database"
)

// Version is the application version
const Version = "0.1.0"

var envFile string

var rootCmd = &cobra.Command{
	Use:           "presenca-agent",
	Short:         "Classroom attendance by face recognition",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	cobra.OnInitialize(func() {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "warning: %v\n", err)
		}
	})

	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Environment file loaded before the process environment")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration; the env file was loaded by OnInitialize
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.LoadFile("")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := config.NewLogger(cfg.Environment)
	slog.SetDefault(logger)

	return cfg, logger, nil
}

// openPool connects to Postgres when DATABASE_URL is set, nil otherwise
func openPool(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	if !cfg.HasDatabase() {
		return nil, nil
	}

	pool, err := database.NewPool(ctx, database.DefaultPoolConfig(cfg.DatabaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	logger.Info("database connected")
	return pool, nil
}

// newAPIClient builds the attendance client, nil in offline mode
func newAPIClient(cfg *config.Config, logger *slog.Logger) (*attendance.Client, error) {
	if cfg.Offline() {
		logger.Warn("agent.offline_mode", slog.String("reason", "API_BASE_URL not set and REQUIRE_API=false"))
		return nil, nil
	}

	apiCfg := attendance.DefaultConfig()
	apiCfg.BaseURL = cfg.APIBaseURL
	apiCfg.APIKey = cfg.APIKey
	apiCfg.SigningSecret = cfg.APISigningSecret
	apiCfg.Timeout = cfg.APITimeout

	client, err := attendance.NewClient(apiCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create attendance client: %w", err)
	}
	return client, nil
}
