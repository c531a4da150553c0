package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/internal/database"
	"github.com/Ramsey-B/fern/internal/logging"
	listingrepo "github.com/Ramsey-B/fern/internal/repositories/listing"
	searchdefinitionrepo "github.com/Ramsey-B/fern/internal/repositories/searchdefinition"
	selectionrepo "github.com/Ramsey-B/fern/internal/repositories/selection"
	soldpricerepo "github.com/Ramsey-B/fern/internal/repositories/soldprice"
	statrepo "github.com/Ramsey-B/fern/internal/repositories/stat"
	"github.com/Ramsey-B/fern/internal/tracing"
	"github.com/Ramsey-B/fern/pkg/currency"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/extract"
	"github.com/Ramsey-B/fern/pkg/fetch"
	"github.com/Ramsey-B/fern/pkg/jobs"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/lifecycle"
	"github.com/Ramsey-B/fern/pkg/prices"
	cardroutes "github.com/Ramsey-B/fern/pkg/routes/card"
	"github.com/Ramsey-B/fern/pkg/routes/health"
	jobroutes "github.com/Ramsey-B/fern/pkg/routes/job"
	listingroutes "github.com/Ramsey-B/fern/pkg/routes/listing"
	priceroutes "github.com/Ramsey-B/fern/pkg/routes/price"
	selectionroutes "github.com/Ramsey-B/fern/pkg/routes/selection"
	statroutes "github.com/Ramsey-B/fern/pkg/routes/stat"
	"github.com/Ramsey-B/fern/pkg/selections"
	"github.com/Ramsey-B/fern/pkg/statsengine"
)

const version = "1.0.0"

// TODO: replace the static seed with a rates feed once one is available
var seedRates = map[string]float64{
	"GBP/USD": 1.27, "USD/GBP": 1 / 1.27,
	"GBP/EUR": 1.17, "EUR/GBP": 1 / 1.17,
	"USD/EUR": 0.92, "EUR/USD": 1 / 0.92,
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.AppName, cfg.LogLevel, cfg.PrettyLogs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}

	shutdownTracing, err := tracing.Init(cfg.AppName)
	if err != nil {
		logger.WithError(err).Error("Failed to init tracing")
		os.Exit(1)
	}

	if err := database.Migrate(cfg); err != nil {
		logger.WithError(err).Error("Failed to run migrations")
		os.Exit(1)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to database")
		os.Exit(1)
	}

	listings := listingrepo.NewRepository(db, logger)
	soldPrices := soldpricerepo.NewRepository(db, logger)
	selectionStore := selectionrepo.NewRepository(db, logger)
	stats := statrepo.NewRepository(db, logger)
	definitions := searchdefinitionrepo.NewRepository(db, logger)

	producer := kafka.NewProducer(kafka.ProducerConfig{
		Brokers:      cfg.KafkaBrokers,
		Topic:        cfg.KafkaOutputTopic,
		BatchSize:    cfg.KafkaBatchSize,
		BatchTimeout: time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
		RequiredAcks: cfg.KafkaRequiredAcks,
		Compression:  cfg.KafkaCompression,
	}, logger)
	emitter := events.NewEmitter(producer, logger)

	rates := currency.NewRateTable(seedRates)

	manager := selections.NewManager(selectionStore, logger)
	reconciler := selections.NewReconciler(manager, selectionStore, listings, soldPrices, stats, definitions, logger)
	engine := statsengine.NewEngine(cfg, selectionStore, stats, soldPrices, listings, rates, emitter, logger)

	fetcher := fetch.NewClient(cfg, logger)
	extractor := extract.NewExtractor()
	tracker := lifecycle.NewTracker(cfg, listings, soldPrices, definitions, fetcher, extractor, reconciler, engine, emitter, logger)
	ingestor := prices.NewIngestor(soldPrices, reconciler, emitter, logger)

	checking := jobs.NewChecking(cfg, listings, tracker, logger)
	sourcing := jobs.NewSourcing(cfg, fetcher, extractor, listings, definitions, reconciler, logger)
	reconciliation := jobs.NewReconciliation(cfg, reconciler, selectionStore, logger)
	statsJob := jobs.NewStats(cfg, stats, engine, logger)
	archival := jobs.NewArchival(cfg, listings, logger)
	registry := jobs.NewRegistry(checking, sourcing, reconciliation, statsJob, archival)

	scheduler := cron.New()
	schedules := []struct {
		spec string
		job  jobs.Job
	}{
		{cfg.CheckingCron, checking},
		{cfg.SourcingCron, sourcing},
		{cfg.ReconciliationCron, reconciliation},
		{cfg.StatsCron, statsJob},
		{cfg.ArchivalCron, archival},
	}
	for _, entry := range schedules {
		job := entry.job
		if _, err := scheduler.AddFunc(entry.spec, func() { job.Run(context.Background()) }); err != nil {
			logger.WithError(err).WithFields(map[string]any{"job": job.Name(), "cron": entry.spec}).Error("Failed to schedule job")
			os.Exit(1)
		}
	}
	scheduler.Start()

	var consumer *kafka.Consumer
	if cfg.KafkaConsumerEnabled {
		consumer = kafka.NewConsumer(cfg, logger, ingestor.HandleMessage)
		if err := consumer.Start(context.Background()); err != nil {
			logger.WithError(err).Error("Failed to start kafka consumer")
			os.Exit(1)
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(otelecho.Middleware(cfg.AppName))
	e.Server.ReadTimeout = time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second
	e.Server.WriteTimeout = time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second
	e.Server.IdleTimeout = time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second

	checker := health.NewChecker(db, nil, version)
	checker.Register(e)

	listingroutes.NewHandler(listings, tracker).Register(e.Group("/listings"))
	cardroutes.NewHandler(listings, stats, selectionStore, definitions, engine, sourcing).Register(e.Group("/cards"))
	selectionroutes.NewHandler(selectionStore, reconciler).Register(e.Group("/selections"))
	statroutes.NewHandler(stats, engine).Register(e.Group("/stats"))
	priceroutes.NewHandler(soldPrices, ingestor, engine).Register(e.Group("/prices"))
	jobroutes.NewHandler(registry, logger).Register(e.Group("/jobs"))

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("HTTP server stopped")
		}
	}()
	checker.SetReady(true)
	logger.WithFields(map[string]any{"port": cfg.Port}).Info("Service started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down")
	checker.SetReady(false)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	scheduler.Stop()
	if consumer != nil {
		if err := consumer.Stop(); err != nil {
			logger.WithError(err).Warn("Kafka consumer shutdown failed")
		}
	}
	if err := e.Shutdown(ctx); err != nil {
		logger.WithError(err).Warn("HTTP shutdown failed")
	}
	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("Kafka producer close failed")
	}
	if err := db.Close(); err != nil {
		logger.WithError(err).Warn("Database close failed")
	}
	if err := shutdownTracing(ctx); err != nil {
		logger.WithError(err).Warn("Tracing shutdown failed")
	}
}
