package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuongbtq/meeting-jobs/internal/bootstrap"
	"github.com/cuongbtq/meeting-jobs/internal/config"
	"github.com/cuongbtq/meeting-jobs/internal/recording"
	"github.com/cuongbtq/meeting-jobs/internal/worker"
	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := bootstrap.InitLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.String("ledger_backend", cfg.Engine.LedgerBackend),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ledger, err := bootstrap.OpenLedger(ctx, cfg, appLogger.Component("ledger"))
	if err != nil {
		return err
	}
	defer ledger.Close()

	natsClient, err := bootstrap.InitNATS(&cfg.NATS, cfg.App.Name+"-worker", appLogger.Component("nats"))
	if err != nil {
		return fmt.Errorf("failed to initialize NATS: %w", err)
	}
	defer natsClient.Close()

	rabbitClient, err := bootstrap.InitRabbitMQ(&cfg.RabbitMQ, appLogger.Component("rabbitmq"))
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}
	defer rabbitClient.Close()

	checks := map[string]func(context.Context) error{
		"nats":     natsClient.HealthCheck,
		"rabbitmq": rabbitClient.HealthCheck,
	}
	if ledger.Health != nil {
		checks["ledger"] = ledger.Health
	}
	checkCtx, cancelChecks := context.WithTimeout(ctx, 5*time.Second)
	for name, check := range checks {
		if err := check(checkCtx); err != nil {
			cancelChecks()
			return fmt.Errorf("%s not ready: %w", name, err)
		}
	}
	cancelChecks()

	appLogger.Info("Connections established")

	registry, err := bootstrap.NewRegistry(cfg,
		recording.NewBusEgress(natsClient, cfg.NATS.Subjects.EgressStart),
		recording.NewBusNotifier(natsClient, cfg.NATS.Subjects.RecordingCompleted),
		appLogger.Component("recording"),
	)
	if err != nil {
		return err
	}

	dispatcher := bootstrap.NewDispatcher(cfg, registry, ledger, appLogger.Component("engine"))

	workerInstance := worker.NewWorker(&worker.Config{
		Logger:        appLogger.Component("worker"),
		Dispatcher:    dispatcher,
		Source:        rabbitClient,
		Results:       natsClient,
		ResultSubject: cfg.NATS.Subjects.JobResults,
		Concurrency:   cfg.Worker.Concurrency,
		JobTimeout:    cfg.Worker.JobTimeout,
		WorkerID:      cfg.RabbitMQ.Consumer.Tag,
	})

	done := make(chan error, 1)
	go func() {
		done <- workerInstance.Run(ctx)
	}()

	appLogger.Info("Worker service started successfully",
		slog.String("worker_id", workerInstance.ID()),
		slog.Any("event_types", registry.EventTypes()),
	)

	select {
	case err := <-done:
		if err != nil {
			appLogger.Error("Worker error", slog.Any("error", err))
			return err
		}
		return nil
	case <-ctx.Done():
		appLogger.Info("Received signal, shutting down gracefully")
	}

	// In-flight jobs get the shutdown timeout to finish before they are
	// aborted and their messages requeued.
	select {
	case err := <-done:
		if err != nil {
			appLogger.Error("Worker stopped with error", slog.Any("error", err))
		}
	case <-time.After(cfg.Worker.ShutdownTimeout):
		appLogger.Warn("Worker shutdown timeout exceeded, aborting in-flight jobs")
		workerInstance.Abort()
		<-done
	}

	appLogger.Info("Worker service shutdown complete")
	return nil
}
