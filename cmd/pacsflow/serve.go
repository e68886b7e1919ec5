package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func serveCmd(envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the pipeline: HTTP ingestion plus the configured inbound source",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(*envFile)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			if err := a.start(ctx); err != nil {
				a.shutdown(context.Background())
				return err
			}
			logger.Info().Str("source", cfg.Pipeline.Source).Str("http_port", a.server.GetHTTPPort()).Msg("pacsflow running.")

			<-ctx.Done()
			logger.Info().Msg("Shutdown signal received.")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			a.shutdown(shutdownCtx)
			return nil
		},
	}
}
