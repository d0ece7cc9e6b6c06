package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/cliniccloud/cliniccloud/internal/config"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:          "cliniccloud-server",
		Short:        "Multi-tenant clinic management API server",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tenantCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(jobsCmd())
	rootCmd.AddCommand(billingCmd())
	rootCmd.AddCommand(seedCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func loadConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, newLogger(os.Getenv("ENV")), err
	}
	logger := newLogger(cfg.Env)
	if err := cfg.Validate(); err != nil {
		return nil, logger, err
	}
	return cfg, logger, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server and background jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				logger.Error().Err(err).Msg("failed to load config")
				return err
			}
			return runServer(cfg, logger)
		},
	}
}
