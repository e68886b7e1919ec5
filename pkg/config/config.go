// Package config loads the service configuration from an optional env file
// and the process environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// DefaultEnvFile is read when present; real environment variables win.
const DefaultEnvFile = "config.env"

// Config is the full service configuration.
type Config struct {
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	HTTPPort string `envconfig:"HTTP_PORT" default:":8080"`

	Pipeline    PipelineConfig
	Aggregation AggregationConfig
	Status      StatusConfig
	Analytics   AnalyticsConfig
	Audit       AuditConfig
	Snapshot    SnapshotConfig
	Notify      NotifyConfig
	GCP         GCPConfig
	Inbox       InboxConfig
	// StrictStatus treats non-2xx answers from the status and analytics
	// endpoints as failed deliveries.
	StrictStatus bool   `envconfig:"HTTP_STRICT_STATUS" default:"true"`
	BatchFile    string `envconfig:"BATCH_FILE_PATH" default:"target/aggregated-payments/aggregated-payments.json"`
}

type PipelineConfig struct {
	Source           string `envconfig:"PACSFLOW_SOURCE" default:"http"`
	Workers          int    `envconfig:"PACSFLOW_WORKERS" default:"5"`
	MaxDocumentBytes int    `envconfig:"PACSFLOW_MAX_DOCUMENT_BYTES" default:"1048576"`
}

type AggregationConfig struct {
	Size        int           `envconfig:"AGGREGATION_SIZE" default:"10"`
	QuietPeriod time.Duration `envconfig:"AGGREGATION_QUIET_PERIOD" default:"3s"`
	Timeout     time.Duration `envconfig:"AGGREGATION_TIMEOUT" default:"5s"`
}

type StatusConfig struct {
	URL     string        `envconfig:"STATUS_URL" default:"http://0.0.0.0:8082/pacs002"`
	Timeout time.Duration `envconfig:"STATUS_TIMEOUT" default:"10s"`
}

type AnalyticsConfig struct {
	URL     string        `envconfig:"ANALYTICS_URL" default:"http://localhost:8088/pacs008-analytics"`
	Timeout time.Duration `envconfig:"ANALYTICS_TIMEOUT" default:"10s"`
}

type AuditConfig struct {
	Backend             string `envconfig:"AUDIT_BACKEND" default:"file"`
	Dir                 string `envconfig:"AUDIT_DIR" default:"target/audited-payments"`
	GCSBucket           string `envconfig:"AUDIT_GCS_BUCKET"`
	GCSPrefix           string `envconfig:"AUDIT_GCS_PREFIX" default:"audited-payments"`
	FirestoreCollection string `envconfig:"AUDIT_FIRESTORE_COLLECTION" default:"audited-payments"`
}

type SnapshotConfig struct {
	Backend       string        `envconfig:"SNAPSHOT_BACKEND" default:"memory"`
	RedisAddr     string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string        `envconfig:"REDIS_PASSWORD"`
	RedisDB       int           `envconfig:"REDIS_DB" default:"0"`
	Key           string        `envconfig:"SNAPSHOT_KEY" default:"pacsflow:last-forwarded-batch"`
	DedupeTTL     time.Duration `envconfig:"DEDUPE_TTL" default:"1h"`
}

type NotifyConfig struct {
	Backend      string   `envconfig:"NOTIFY_BACKEND" default:"log"`
	KafkaBrokers []string `envconfig:"KAFKA_BROKERS" default:"localhost:9092"`
	KafkaTopic   string   `envconfig:"KAFKA_TOPIC" default:"payment-notifications"`
}

type GCPConfig struct {
	ProjectID       string `envconfig:"GCP_PROJECT_ID"`
	CredentialsFile string `envconfig:"GCP_CREDENTIALS_FILE"`
	SubscriptionID  string `envconfig:"PUBSUB_SUBSCRIPTION_ID"`
	TopicID         string `envconfig:"PUBSUB_TOPIC_ID"`
}

type InboxConfig struct {
	Dir          string        `envconfig:"INBOX_DIR" default:"src/main/resources/pacs008"`
	PollInterval time.Duration `envconfig:"INBOX_POLL_INTERVAL" default:"1s"`
}

// Load reads envFile if it exists, then the environment, and validates the
// result.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks backend selections and the settings each one requires.
func (c *Config) Validate() error {
	var errs []error
	switch c.Pipeline.Source {
	case "http":
	case "pubsub":
		if c.GCP.ProjectID == "" || c.GCP.SubscriptionID == "" {
			errs = append(errs, errors.New("PACSFLOW_SOURCE=pubsub requires GCP_PROJECT_ID and PUBSUB_SUBSCRIPTION_ID"))
		}
	case "dir":
		if c.Inbox.Dir == "" {
			errs = append(errs, errors.New("PACSFLOW_SOURCE=dir requires INBOX_DIR"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown PACSFLOW_SOURCE %q", c.Pipeline.Source))
	}

	switch c.Audit.Backend {
	case "file":
	case "gcs":
		if c.GCP.ProjectID == "" || c.Audit.GCSBucket == "" {
			errs = append(errs, errors.New("AUDIT_BACKEND=gcs requires GCP_PROJECT_ID and AUDIT_GCS_BUCKET"))
		}
	case "firestore":
		if c.GCP.ProjectID == "" {
			errs = append(errs, errors.New("AUDIT_BACKEND=firestore requires GCP_PROJECT_ID"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown AUDIT_BACKEND %q", c.Audit.Backend))
	}

	if c.Snapshot.Backend != "memory" && c.Snapshot.Backend != "redis" {
		errs = append(errs, fmt.Errorf("unknown SNAPSHOT_BACKEND %q", c.Snapshot.Backend))
	}
	if c.Notify.Backend != "log" && c.Notify.Backend != "kafka" {
		errs = append(errs, fmt.Errorf("unknown NOTIFY_BACKEND %q", c.Notify.Backend))
	}
	if c.Aggregation.Size <= 0 {
		errs = append(errs, errors.New("AGGREGATION_SIZE must be positive"))
	}
	return errors.Join(errs...)
}
