package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sourcelane/negotiator-backend/internal/extraction"
	"github.com/sourcelane/negotiator-backend/internal/negotiation"
	"github.com/sourcelane/negotiator-backend/internal/rounds"
	"github.com/sourcelane/negotiator-backend/internal/scoring"
	"github.com/sourcelane/negotiator-backend/internal/telemetry"
	"github.com/sourcelane/negotiator-backend/pkg/bigquery"
	"github.com/sourcelane/negotiator-backend/pkg/config"
	"github.com/sourcelane/negotiator-backend/pkg/db"
	"github.com/sourcelane/negotiator-backend/pkg/llm"
	"github.com/sourcelane/negotiator-backend/pkg/logger"
	"github.com/sourcelane/negotiator-backend/pkg/metrics"
	"github.com/sourcelane/negotiator-backend/pkg/migrate"
	"github.com/sourcelane/negotiator-backend/pkg/outbox"
	"github.com/sourcelane/negotiator-backend/pkg/pubsub"
	"github.com/sourcelane/negotiator-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap pubsub", err)
		os.Exit(1)
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing pubsub client", err)
		}
	}()

	bigqueryClient, err := bigquery.NewClient(context.Background(), cfg.GCP, cfg.BigQuery, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap bigquery", err)
		os.Exit(1)
	}
	defer func() {
		if err := bigqueryClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing bigquery client", err)
		}
	}()

	llmClient, err := llm.NewClient(cfg.LLM.APIKey,
		llm.WithBaseURL(cfg.LLM.BaseURL),
		llm.WithModel(cfg.LLM.Model),
		llm.WithHTTPClient(&http.Client{Timeout: cfg.LLM.RequestTimeout}),
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create llm client", err)
		os.Exit(1)
	}

	mx := metrics.NewNegotiationMetrics(prometheus.DefaultRegisterer)

	usageSink, err := telemetry.NewSink(bigqueryClient, cfg.BigQuery.UsageTable, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create usage sink", err)
		os.Exit(1)
	}

	structurer, err := extraction.NewStructurer(llmClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create offer structurer", err)
		os.Exit(1)
	}
	extractor, err := extraction.NewExtractor(extraction.Params{
		Client:      structurer,
		Bands:       extraction.BandsFromConfig(cfg.Negotiation),
		Logger:      logg,
		MaxInFlight: cfg.Negotiation.MaxConcurrentExtractions,
		UsageSink:   usageSink,
		Metrics:     mx,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create offer extractor", err)
		os.Exit(1)
	}

	agent, err := rounds.NewAgent(llmClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create negotiation agent", err)
		os.Exit(1)
	}

	engine := scoring.NewEngine(scoring.WithAnnualRate(cfg.Negotiation.AnnualCapitalRate))

	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	repo := negotiation.NewRepository(dbClient.DB())
	negotiationService := negotiation.NewService(repo, dbClient, outboxService, logg)

	driver, err := rounds.NewDriver(rounds.Params{
		Repo:      repo,
		Decisions: negotiationService,
		Tx:        dbClient,
		Outbox:    outboxService,
		Extractor: extractor,
		Engine:    engine,
		Chat:      agent,
		Logger:    logg,
		Metrics:   mx,
		MaxRounds: cfg.Negotiation.MaxRounds,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create round driver", err)
		os.Exit(1)
	}

	consumer, err := rounds.NewConsumer(driver, pubsubClient.NegotiationSubscription(), logg, cfg.Negotiation.MaxConcurrentExtractions)
	if err != nil {
		logg.Error(context.Background(), "failed to create negotiation consumer", err)
		os.Exit(1)
	}

	service, err := NewService(ServiceParams{
		Config:   cfg,
		Logger:   logg,
		DB:       dbClient,
		Redis:    redisClient,
		PubSub:   pubsubClient,
		BigQuery: bigqueryClient,
		Consumer: consumer,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create worker", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": "worker",
	})
	logg.Info(ctx, "starting negotiation worker")

	start := time.Now()
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(logg.WithField(ctx, "uptime", time.Since(start).String()), "worker shutting down gracefully")
}
