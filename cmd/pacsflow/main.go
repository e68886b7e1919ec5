package main

import (
	"fmt"
	"os"

	"github.com/illmade-knight/go-pacsflow/pkg/config"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	var envFile string
	rootCmd := &cobra.Command{
		Use:     "pacsflow",
		Short:   "pacsflow - pacs.008 ingestion, status reporting and aggregation",
		Version: Version,
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", config.DefaultEnvFile, "Optional env file loaded before the environment")

	rootCmd.AddCommand(serveCmd(&envFile))
	rootCmd.AddCommand(sendCmd(&envFile))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig loads configuration and builds the root logger from it.
func loadConfig(envFile string) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("invalid LOG_LEVEL %q: %w", cfg.LogLevel, err)
	}
	zerolog.SetGlobalLevel(level)
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "pacsflow").Logger()
	return cfg, logger, nil
}
