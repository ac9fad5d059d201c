package main

import (
	"loanbook/internal/reservations/events"
	"loanbook/internal/reservations/handler"
	"loanbook/internal/reservations/repository"
	"loanbook/internal/reservations/service"
	"loanbook/internal/reservations/validator"
	"loanbook/pkg/app"
	"loanbook/pkg/clock"
	"loanbook/pkg/config"
	"loanbook/pkg/kafka"
	kafka_config "loanbook/pkg/kafka/config"
	kafka_middleware "loanbook/pkg/kafka/middleware"
)

const ServiceName = "reservations"

// @title Loanbook Reservations API
// @version 1.0
// @description Reservation and availability engine for lendable equipment.
// @BasePath /
func main() {
	cfg := config.Load(ServiceName)
	cfg.SetMongo()
	if cfg.LockBackend == config.LockBackendRedis {
		cfg.SetRedis()
	}

	cfg.Log.Info("Starting Reservations service")
	serverApp := app.NewApplication(cfg)

	publisher, producer := initPublisher(cfg)
	if producer != nil {
		serverApp.OnShutdown(producer)
	}

	h := initHandler(cfg, publisher)
	serverApp.SetApp(h, handler.NewHealthHandler(cfg.Client.Mongo, cfg.Log))
	serverApp.Run()
}

func initPublisher(cfg *config.Config) (events.Publisher, *kafka.Producer) {
	if !cfg.KafkaEnabled {
		cfg.Log.Info("Kafka disabled, reservation events will only be logged")
		return events.NewNoopPublisher(cfg.Log), nil
	}

	kafkaCfg, err := kafka_config.Load()
	if err != nil {
		cfg.Log.Fatal("Invalid Kafka configuration", "error", err)
	}
	kafkaCfg.LogConfiguration(cfg.Log)

	producer, err := kafka.NewProducer(kafkaCfg, cfg.KafkaReservationTopic, cfg.Log)
	if err != nil {
		cfg.Log.Fatal("Failed to create Kafka producer", "error", err)
	}
	producer.Use(kafka_middleware.LoggingProducerMiddleware(cfg.Log))
	producer.Use(kafka_middleware.MetricsProducerMiddleware())

	return events.NewKafkaPublisher(producer, kafkaCfg.PublishTimeout), producer
}

func initHandler(cfg *config.Config, publisher events.Publisher) *handler.Handler {
	stores := repository.NewMongoStores(cfg)
	v := validator.New(cfg.Log)
	clk := clock.System()

	coordinator := service.NewReservationCoordinator(stores, v, publisher, clk, cfg)
	triage := service.NewRequestTriage(stores, v, cfg)
	requests := service.NewRequestService(stores, triage, coordinator, v, clk, cfg)
	items := service.NewItemService(stores, v, clk, cfg)
	availability := service.NewAvailabilityService(stores, clk, cfg)

	cfg.Log.Info("Reservations service initialized",
		"database", cfg.MongoDatabaseName,
		"lock_backend", cfg.LockBackend,
	)
	return handler.NewHandler(coordinator, requests, items, availability, cfg.Log)
}
