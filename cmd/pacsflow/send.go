package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"cloud.google.com/go/pubsub"
	"github.com/illmade-knight/go-pacsflow/pkg/messagepipeline"
	"github.com/spf13/cobra"
)

func sendCmd(envFile *string) *cobra.Command {
	var topicID string
	cmd := &cobra.Command{
		Use:   "send <dir>",
		Short: "Publish every pacs.008 document in a directory to the inbound topic",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(*envFile)
			if err != nil {
				return err
			}
			if topicID == "" {
				topicID = cfg.GCP.TopicID
			}
			if cfg.GCP.ProjectID == "" || topicID == "" {
				return fmt.Errorf("send requires GCP_PROJECT_ID and a topic (PUBSUB_TOPIC_ID or --topic)")
			}

			files, err := documentFiles(args[0])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			client, err := pubsub.NewClient(ctx, cfg.GCP.ProjectID, clientOptions(cfg)...)
			if err != nil {
				return fmt.Errorf("failed to create pubsub client: %w", err)
			}
			defer func() { _ = client.Close() }()

			publisher, err := messagepipeline.NewGoogleSimplePublisher(ctx, client, topicID, logger)
			if err != nil {
				return err
			}
			defer func() { _ = publisher.Stop(ctx) }()

			for _, f := range files {
				payload, err := os.ReadFile(f)
				if err != nil {
					return fmt.Errorf("failed to read %s: %w", f, err)
				}
				id, err := publisher.Publish(ctx, payload, map[string]string{"file_name": filepath.Base(f)})
				if err != nil {
					return fmt.Errorf("failed to publish %s: %w", f, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", filepath.Base(f), id)
			}
			logger.Info().Int("count", len(files)).Str("topic_id", topicID).Msg("Documents published.")
			return nil
		},
	}
	cmd.Flags().StringVarP(&topicID, "topic", "t", "", "Topic to publish to (defaults to PUBSUB_TOPIC_ID)")
	return cmd
}

// documentFiles lists the .xml and .json files directly under dir, sorted.
func documentFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".xml", ".json":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}
