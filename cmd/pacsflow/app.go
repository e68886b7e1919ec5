package main

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/illmade-knight/go-pacsflow/pkg/aggregation"
	"github.com/illmade-knight/go-pacsflow/pkg/audit"
	"github.com/illmade-knight/go-pacsflow/pkg/batchfile"
	"github.com/illmade-knight/go-pacsflow/pkg/cache"
	"github.com/illmade-knight/go-pacsflow/pkg/config"
	"github.com/illmade-knight/go-pacsflow/pkg/dispatch"
	"github.com/illmade-knight/go-pacsflow/pkg/messagepipeline"
	"github.com/illmade-knight/go-pacsflow/pkg/microservice"
	"github.com/illmade-knight/go-pacsflow/pkg/notifier"
	"github.com/illmade-knight/go-pacsflow/pkg/notify"
	"github.com/illmade-knight/go-pacsflow/pkg/pacs008"
	"github.com/illmade-knight/go-pacsflow/pkg/pipeline"
	"github.com/illmade-knight/go-pacsflow/pkg/status"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

// app holds every long-lived component of the serve command.
type app struct {
	logger  zerolog.Logger
	window  *aggregation.Window
	server  *microservice.BaseServer
	service *messagepipeline.StreamingService[pacs008.Document]
	// closers run in reverse order of registration on shutdown.
	closers []func() error
}

func (a *app) onShutdown(fn func() error) {
	a.closers = append(a.closers, fn)
}

func clientOptions(cfg *config.Config) []option.ClientOption {
	if cfg.GCP.CredentialsFile == "" {
		return nil
	}
	return []option.ClientOption{option.WithCredentialsFile(cfg.GCP.CredentialsFile)}
}

func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	a := &app{logger: logger}
	built := false
	defer func() {
		if !built {
			a.closeAll()
		}
	}()

	statusClient := notifier.NewHTTPNotifier(notifier.HTTPNotifierConfig{Timeout: cfg.Status.Timeout, StrictStatus: cfg.StrictStatus}, nil, logger)
	analyticsClient := notifier.NewHTTPNotifier(notifier.HTTPNotifierConfig{Timeout: cfg.Analytics.Timeout, StrictStatus: cfg.StrictStatus}, nil, logger)

	snapshots, seen, err := a.newStores(ctx, cfg)
	if err != nil {
		return nil, err
	}
	gate, err := aggregation.NewGate(snapshots, cfg.Snapshot.Key, logger)
	if err != nil {
		return nil, err
	}
	batches, err := batchfile.New(cfg.BatchFile)
	if err != nil {
		return nil, err
	}

	// The window flushes into the pipeline, and the pipeline's audit sink
	// admits into the window.
	var p *pipeline.Pipeline
	a.window, err = aggregation.NewWindow(aggregation.Config{
		Size:        cfg.Aggregation.Size,
		QuietPeriod: cfg.Aggregation.QuietPeriod,
		Timeout:     cfg.Aggregation.Timeout,
	}, func(ctx context.Context, b aggregation.Batch) { p.HandleBatch(ctx, b) }, logger)
	if err != nil {
		return nil, err
	}

	writer, err := a.newAuditWriter(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.onShutdown(writer.Close)
	auditSink, err := audit.NewSink(writer, a.window, logger)
	if err != nil {
		return nil, err
	}
	publisher, err := a.newPublisher(cfg)
	if err != nil {
		return nil, err
	}
	notifySink, err := notify.NewSink(publisher, logger)
	if err != nil {
		return nil, err
	}
	dispatcher, err := dispatch.NewDispatcher([]dispatch.Sink{auditSink, notifySink}, seen, logger)
	if err != nil {
		return nil, err
	}

	reporter, err := status.NewReporter(status.NewSynthesizer(status.RandomPolicy(nil)), statusClient, cfg.Status.URL, logger)
	if err != nil {
		return nil, err
	}

	p, err = pipeline.New(pipeline.Dependencies{
		Dispatcher:   dispatcher,
		Reporter:     reporter,
		BatchFile:    batches,
		Gate:         gate,
		Analytics:    analyticsClient,
		AnalyticsURL: cfg.Analytics.URL,
	}, logger)
	if err != nil {
		return nil, err
	}

	a.server = microservice.NewBaseServer(logger, cfg.HTTPPort)
	handlers, err := microservice.NewPaymentHandlers(p, batches, int64(cfg.Pipeline.MaxDocumentBytes), logger)
	if err != nil {
		return nil, err
	}
	handlers.Mount(a.server.Router())

	consumer, err := a.newConsumer(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if consumer != nil {
		transformer := messagepipeline.WithPayloadValidation(
			messagepipeline.NewDocumentTransformer(logger), 1, cfg.Pipeline.MaxDocumentBytes, logger)
		processor := func(ctx context.Context, msg messagepipeline.Message, doc *pacs008.Document) error {
			_, err := p.Process(ctx, *doc, msg.ID)
			return err
		}
		a.service, err = messagepipeline.NewStreamingService[pacs008.Document](
			messagepipeline.StreamingServiceConfig{NumWorkers: cfg.Pipeline.Workers}, consumer, transformer, processor, logger)
		if err != nil {
			return nil, err
		}
	}
	built = true
	return a, nil
}

func (a *app) newStores(ctx context.Context, cfg *config.Config) (cache.Store[string, string], cache.Store[string, bool], error) {
	if cfg.Snapshot.Backend != "redis" {
		return cache.NewInMemoryStore[string, string](0), cache.NewInMemoryStore[string, bool](cfg.Snapshot.DedupeTTL), nil
	}
	snapshots, err := cache.NewRedisStore[string, string](ctx, &cache.RedisConfig{
		Addr:     cfg.Snapshot.RedisAddr,
		Password: cfg.Snapshot.RedisPassword,
		DB:       cfg.Snapshot.RedisDB,
	}, a.logger)
	if err != nil {
		return nil, nil, err
	}
	a.onShutdown(snapshots.Close)
	seen, err := cache.NewRedisStore[string, bool](ctx, &cache.RedisConfig{
		Addr:      cfg.Snapshot.RedisAddr,
		Password:  cfg.Snapshot.RedisPassword,
		DB:        cfg.Snapshot.RedisDB,
		TTL:       cfg.Snapshot.DedupeTTL,
		KeyPrefix: "pacsflow:dispatched:",
	}, a.logger)
	if err != nil {
		return nil, nil, err
	}
	a.onShutdown(seen.Close)
	return snapshots, seen, nil
}

func (a *app) newAuditWriter(ctx context.Context, cfg *config.Config) (audit.Writer, error) {
	switch cfg.Audit.Backend {
	case "gcs":
		client, err := storage.NewClient(ctx, clientOptions(cfg)...)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage client: %w", err)
		}
		a.onShutdown(client.Close)
		return audit.NewGCSWriter(audit.NewGCSClientAdapter(client), audit.GCSWriterConfig{
			BucketName:   cfg.Audit.GCSBucket,
			ObjectPrefix: cfg.Audit.GCSPrefix,
		}, a.logger)
	case "firestore":
		client, err := firestore.NewClient(ctx, cfg.GCP.ProjectID, clientOptions(cfg)...)
		if err != nil {
			return nil, fmt.Errorf("failed to create firestore client: %w", err)
		}
		a.onShutdown(client.Close)
		return audit.NewFirestoreWriter(client, cfg.Audit.FirestoreCollection, a.logger)
	default:
		return audit.NewFileWriter(cfg.Audit.Dir, a.logger)
	}
}

func (a *app) newPublisher(cfg *config.Config) (notify.Publisher, error) {
	if cfg.Notify.Backend != "kafka" {
		return notify.NewLogPublisher(a.logger), nil
	}
	pub, err := notify.NewKafkaPublisher(cfg.Notify.KafkaBrokers, cfg.Notify.KafkaTopic, a.logger)
	if err != nil {
		return nil, err
	}
	a.onShutdown(pub.Close)
	return pub, nil
}

// newConsumer returns nil for the http source, which needs no consumer.
func (a *app) newConsumer(ctx context.Context, cfg *config.Config) (messagepipeline.MessageConsumer, error) {
	switch cfg.Pipeline.Source {
	case "pubsub":
		client, err := pubsub.NewClient(ctx, cfg.GCP.ProjectID, clientOptions(cfg)...)
		if err != nil {
			return nil, fmt.Errorf("failed to create pubsub client: %w", err)
		}
		a.onShutdown(client.Close)
		consumerCfg := messagepipeline.NewGooglePubsubConsumerDefaults(cfg.GCP.SubscriptionID)
		consumerCfg.ProjectID = cfg.GCP.ProjectID
		return messagepipeline.NewGooglePubsubConsumer(ctx, consumerCfg, client, a.logger)
	case "dir":
		return messagepipeline.NewDirectoryConsumer(messagepipeline.DirectoryConsumerConfig{
			Dir:          cfg.Inbox.Dir,
			PollInterval: cfg.Inbox.PollInterval,
		}, a.logger)
	default:
		return nil, nil
	}
}

func (a *app) start(ctx context.Context) error {
	a.window.Start(ctx)
	if err := a.server.Start(); err != nil {
		return err
	}
	if a.service != nil {
		if err := a.service.Start(ctx); err != nil {
			return err
		}
	}
	return nil
}

// shutdown stops intake first, then flushes the window, then releases clients.
func (a *app) shutdown(ctx context.Context) {
	if a.service != nil {
		if err := a.service.Stop(ctx); err != nil {
			a.logger.Error().Err(err).Msg("Streaming service did not stop cleanly.")
		}
	}
	if a.server != nil {
		_ = a.server.Shutdown(ctx)
	}
	if a.window != nil {
		if err := a.window.Stop(ctx); err != nil {
			a.logger.Error().Err(err).Msg("Aggregation window did not stop cleanly.")
		}
	}
	a.closeAll()
}

func (a *app) closeAll() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn().Err(err).Msg("Error closing resource.")
		}
	}
	a.closers = nil
}
