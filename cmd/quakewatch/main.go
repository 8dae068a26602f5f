package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"quakewatch/internal/config"
	"quakewatch/internal/feed"
	"quakewatch/internal/metrics"
	"quakewatch/internal/notify"
	"quakewatch/internal/notify/messaging"
	"quakewatch/internal/notify/microblog"
	"quakewatch/internal/notify/strategy"
	"quakewatch/internal/notify/webhook"
	"quakewatch/internal/pipeline"
	"quakewatch/internal/store"
	"quakewatch/internal/stream"
)

func main() {
	var (
		configPath   = flag.String("config", "config.yaml", "Path to YAML config file")
		redisAddr    = flag.String("redis-addr", "localhost:6379", "Redis address for dedup records and metrics")
		postgresDSN  = flag.String("postgres-dsn", "", "PostgreSQL DSN; when set, dedup records go to Postgres instead of Redis")
		kafkaBrokers = flag.String("kafka-brokers", "", "Kafka broker addresses (comma-separated); empty disables intent publishing")
		intentsTopic = flag.String("intents-topic", stream.DefaultTopic, "Kafka topic for emitted intents")
		once         = flag.Bool("once", false, "Run a single poll cycle and exit")
		sendTest     = flag.Bool("send-test", false, "Process one synthetic event: intents go to test targets only, no dedup records written")
	)
	flag.Parse()

	// Secrets come from the environment; a local .env is a convenience, not
	// a requirement.
	if err := godotenv.Load(); err == nil {
		slog.Info("Loaded environment from .env file")
	}

	// Set up structured logging
	// Allow DEBUG level via environment variable for troubleshooting
	logLevel := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "DEBUG" || os.Getenv("LOG_LEVEL") == "debug" {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting quakewatch",
		"config", *configPath,
		"channels", len(cfg.Channels),
		"regions", len(cfg.Regions),
		"pois", len(cfg.POIs),
		"poll_interval", cfg.PollInterval.Std(),
		"send_test", *sendTest,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		slog.Info("Received shutdown signal, shutting down gracefully...")
		cancel()
	}()

	dedupStore, collector, cleanup, err := buildStores(ctx, *redisAddr, *postgresDSN)
	if err != nil {
		slog.Error("Failed to connect to dedup store", "error", err)
		slog.Info("Tip: Start Redis with 'docker compose up -d redis' or pass -postgres-dsn")
		os.Exit(1)
	}
	defer cleanup()

	collector.Start(ctx)
	defer collector.Stop()

	var publisher *stream.Publisher
	if *kafkaBrokers != "" {
		publisher, err = stream.NewPublisher(*kafkaBrokers, *intentsTopic)
		if err != nil {
			slog.Error("Failed to create Kafka publisher", "error", err)
			os.Exit(1)
		}
		defer publisher.Close()
	}

	dispatcher := notify.NewDispatcher(buildSenders()...)
	pipe := pipeline.New(dedupStore, cfg.Channels, cfg.RegionIndex(), cfg.POIIndex(), cfg.RateLimits)
	feedClient := feed.NewClient(cfg.Feed.BaseURL)

	runner := &runner{
		cfg:        cfg,
		feed:       feedClient,
		pipe:       pipe,
		dispatcher: dispatcher,
		publisher:  publisher,
		collector:  collector,
	}

	if *sendTest {
		if err := runner.runSendTest(ctx); err != nil {
			slog.Error("Test cycle failed", "error", err)
			os.Exit(1)
		}
		return
	}
	if *once {
		if err := runner.runOnce(ctx); err != nil {
			slog.Error("Poll cycle failed", "error", err)
			os.Exit(1)
		}
		return
	}

	runner.loop(ctx)
	slog.Info("quakewatch stopped")
}

// buildStores connects the dedup store and the metrics collector. Postgres
// takes over dedup when a DSN is given; Redis still carries metrics.
func buildStores(ctx context.Context, redisAddr, postgresDSN string) (pipeline.DedupStore, *metrics.Collector, func(), error) {
	redisClient, err := store.ConnectRedis(ctx, redisAddr)
	if err != nil {
		return nil, nil, nil, err
	}
	collector := metrics.NewCollector("quakewatch", redisClient)

	if postgresDSN != "" {
		pg, err := store.NewPostgresStore(postgresDSN)
		if err != nil {
			redisClient.Close()
			return nil, nil, nil, err
		}
		slog.Info("Using PostgreSQL dedup store")
		if pruned, err := pg.PruneExpired(ctx, time.Now()); err != nil {
			slog.Warn("Failed to prune expired dedup records", "error", err)
		} else if pruned > 0 {
			slog.Info("Pruned expired dedup records", "count", pruned)
		}
		cleanup := func() {
			pg.Close()
			redisClient.Close()
		}
		return pg, collector, cleanup, nil
	}

	slog.Info("Using Redis dedup store", "addr", redisAddr)
	rs := store.NewRedisStoreWithClient(redisClient)
	return rs, collector, func() { redisClient.Close() }, nil
}

// buildSenders wires one delivery strategy per channel type from the
// environment.
func buildSenders() []strategy.IntentSender {
	senders := []strategy.IntentSender{
		webhook.NewSender(),
		microblog.NewSender(os.Getenv("MICROBLOG_TOKEN")),
	}

	creds := messaging.Credentials{
		AccountSID: os.Getenv("MESSAGING_ACCOUNT_SID"),
		AuthToken:  os.Getenv("MESSAGING_AUTH_TOKEN"),
		From:       os.Getenv("MESSAGING_FROM"),
	}
	var recipients []string
	for _, r := range strings.Split(os.Getenv("MESSAGING_RECIPIENTS"), ",") {
		if r = strings.TrimSpace(r); r != "" {
			recipients = append(recipients, r)
		}
	}
	senders = append(senders, messaging.NewSender(creds, recipients))

	return senders
}

type runner struct {
	cfg        *config.Config
	feed       *feed.Client
	pipe       *pipeline.Pipeline
	dispatcher *notify.Dispatcher
	publisher  *stream.Publisher
	collector  *metrics.Collector
}

// loop polls the feed until the context is cancelled. A failed cycle is
// logged and retried at the next tick.
func (r *runner) loop(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.PollInterval.Std())
	defer ticker.Stop()

	if err := r.runOnce(ctx); err != nil {
		slog.Error("Poll cycle failed", "error", err)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.runOnce(ctx); err != nil {
				slog.Error("Poll cycle failed", "error", err)
			}
		}
	}
}

// runOnce executes one poll cycle: fetch, decide, publish, deliver.
func (r *runner) runOnce(ctx context.Context) error {
	raw, err := r.feed.Fetch(ctx, feed.Query{
		Bounds:       feed.CombineBounds(r.cfg.Regions),
		MinMagnitude: r.cfg.Feed.MinMagnitude,
		Lookback:     r.cfg.Feed.Lookback.Std(),
		Limit:        r.cfg.Feed.Limit,
	})
	if err != nil {
		return err
	}
	return r.process(ctx, pipeline.Request{Raw: raw})
}

// runSendTest pushes one synthetic event through the full path. Every
// emitted intent is flagged as test, goes only to test targets, and
// writes no dedup records.
func (r *runner) runSendTest(ctx context.Context) error {
	lat, lon := 0.0, 0.0
	if len(r.cfg.Regions) > 0 {
		b := r.cfg.Regions[0].Bounds
		lat = (b.MinLat + b.MaxLat) / 2
		lon = (b.MinLon + b.MaxLon) / 2
	} else if len(r.cfg.POIs) > 0 {
		lat, lon = r.cfg.POIs[0].Lat, r.cfg.POIs[0].Lon
	}

	feature := map[string]any{
		"id": fmt.Sprintf("test%d", time.Now().Unix()),
		"properties": map[string]any{
			"mag":     6.8,
			"place":   "Synthetic verification event",
			"time":    time.Now().UnixMilli(),
			"url":     "https://earthquake.usgs.gov/",
			"magType": "mw",
		},
		"geometry": map[string]any{
			"type":        "Point",
			"coordinates": []float64{lon, lat, 10.0},
		},
	}
	raw, err := json.Marshal(feature)
	if err != nil {
		return err
	}

	return r.process(ctx, pipeline.Request{Raw: []json.RawMessage{raw}, IsTest: true})
}

// process runs one batch through the decision core and the delivery shell.
func (r *runner) process(ctx context.Context, req pipeline.Request) error {
	started := time.Now()

	result, err := r.pipe.Run(ctx, req)
	if err != nil {
		return err
	}

	r.collector.RecordRun(result.Summary, time.Since(started))
	for _, intent := range result.Intents {
		r.collector.RecordEmitted(intent.ChannelName)
	}

	if r.publisher != nil {
		if err := r.publisher.Publish(ctx, result.Intents); err != nil {
			// Delivery still proceeds; the stream is observability, not
			// the alert path.
			slog.Error("Failed to publish intents", "error", err)
		}
	}

	delivery := r.dispatcher.Dispatch(ctx, result.Intents)
	for i := 0; i < delivery.Delivered; i++ {
		r.collector.RecordDelivered()
	}
	for i := 0; i < delivery.Failed; i++ {
		r.collector.RecordDeliveryError()
	}

	slog.Info("Poll cycle complete",
		"run_id", result.Summary.RunID,
		"summary", result.Summary.String(),
		"delivered", delivery.Delivered,
		"delivery_failures", delivery.Failed,
		"delivery_skipped", delivery.Skipped,
		"elapsed", time.Since(started),
	)
	return nil
}
