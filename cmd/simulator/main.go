package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"

	"alert-service/internal/config"
	"alert-service/internal/kafka"
	"alert-service/internal/logging"
	"alert-service/internal/simulator"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Config load failed:", err)
	}

	logger, err := logging.New(cfg.Logging.Dir, cfg.Logging.Level)
	if err != nil {
		log.Fatal("Logger init failed:", err)
	}
	defer logger.Close()

	if cfg.Kafka.Broker == "" {
		logger.Fatal("KAFKA_BROKER is required by the simulator")
	}
	loc, err := time.LoadLocation(cfg.DB.Timezone)
	if err != nil {
		logger.Fatalf("Invalid ALERTS_TIMEZONE %q: %v", cfg.DB.Timezone, err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	producer := kafka.NewProducer([]string{cfg.Kafka.Broker}, cfg.Kafka.MeasurementTopic)
	defer producer.Close()

	sim := simulator.New(producer, cfg.Simulator.MinValue, cfg.Simulator.MaxValue, loc, logger)

	s, err := gocron.NewScheduler()
	if err != nil {
		logger.Fatalf("Scheduler init failed: %v", err)
	}
	_, err = s.NewJob(
		gocron.DurationJob(cfg.Simulator.Interval),
		gocron.NewTask(sim.Tick, ctx),
		gocron.WithName("measurement-simulator"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		logger.Fatalf("Simulator job failed: %v", err)
	}
	s.Start()
	logger.Infof("Simulator publishing to %s every %s", cfg.Kafka.MeasurementTopic, cfg.Simulator.Interval)

	<-ctx.Done()
	if err := s.Shutdown(); err != nil {
		logger.Errorf("Scheduler shutdown failed: %v", err)
	}
	logger.Info("Simulator stopped")
}
