package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"alert-service/internal/alerting"
	"alert-service/internal/api"
	"alert-service/internal/config"
	"alert-service/internal/db"
	"alert-service/internal/influx"
	"alert-service/internal/jobs"
	"alert-service/internal/kafka"
	"alert-service/internal/logging"
	"alert-service/internal/notify"
)

func main() {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Config load failed:", err)
	}

	// Initialize logger
	logger, err := logging.New(cfg.Logging.Dir, cfg.Logging.Level)
	if err != nil {
		log.Fatal("Logger init failed:", err)
	}
	defer logger.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	loc, err := time.LoadLocation(cfg.DB.Timezone)
	if err != nil {
		logger.Fatalf("Invalid ALERTS_TIMEZONE %q: %v", cfg.DB.Timezone, err)
	}

	// Connect to DB
	dbConn, err := db.New(ctx, cfg.DB.DSN, cfg.DB.Timezone)
	if err != nil {
		logger.Fatalf("DB connect failed: %v", err)
	}
	defer dbConn.Close()
	if err := dbConn.EnsureSchema(ctx); err != nil {
		logger.Fatalf("DB schema setup failed: %v", err)
	}

	// Time-series store
	influxClient := influx.New(influx.Config(cfg.Influx))
	defer influxClient.Close()

	// Deferred jobs
	registry, err := jobs.New(logger)
	if err != nil {
		logger.Fatalf("Job scheduler init failed: %v", err)
	}
	registry.Start()

	// Dispatch notifiers
	hub := notify.NewHub(logger)
	notifiers := notify.Multi{hub}
	var producer *kafka.Producer
	if cfg.Kafka.Broker != "" {
		producer = kafka.NewProducer([]string{cfg.Kafka.Broker}, cfg.Kafka.DispatchTopic)
		notifiers = append(notifiers, producer)
	}
	if cfg.Telegram.BotToken != "" && cfg.Telegram.ChatID != 0 {
		notifiers = append(notifiers, notify.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID, logger))
	}

	pipeline := alerting.NewPipeline(influxClient, dbConn, registry, notifiers, alerting.Options{
		MaxLookbackDays:  cfg.Alerting.MaxLookbackDays,
		JobDelay:         cfg.Alerting.JobDelay,
		SkipUnclassified: cfg.Alerting.SkipUnclassified,
	}, logger)

	// Start Kafka consumer
	var wg sync.WaitGroup
	var consumer *kafka.Consumer
	if cfg.Kafka.Broker != "" {
		consumer = kafka.NewConsumer([]string{cfg.Kafka.Broker}, cfg.Kafka.MeasurementTopic, cfg.Kafka.GroupID, influxClient, loc, logger)
		consumer.Start(ctx, &wg)
		logger.Infof("Kafka consumer initialized with topic: %s", cfg.Kafka.MeasurementTopic)
	}

	// Start API server
	handler := api.NewHandler(pipeline, hub, map[string]api.Pinger{
		"postgres": dbConn,
		"influxdb": influxClient,
	}, logger)
	srv := &http.Server{Addr: cfg.API.Port, Handler: api.NewRouter(logger, cfg, handler)}
	go func() {
		logger.Infof("API started on %s", cfg.API.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("API run failed: %v", err)
			cancel()
		}
	}()

	// Handle graceful shutdown
	<-ctx.Done()
	logger.Info("Shutting down...")

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("API shutdown failed: %v", err)
	}
	if consumer != nil {
		if err := consumer.Close(); err != nil {
			logger.Errorf("Kafka consumer close failed: %v", err)
		}
	}
	wg.Wait()
	if err := registry.Shutdown(); err != nil {
		logger.Errorf("Job scheduler shutdown failed: %v", err)
	}
	if producer != nil {
		if err := producer.Close(); err != nil {
			logger.Errorf("Kafka producer close failed: %v", err)
		}
	}
	logger.Info("Service stopped")
}
