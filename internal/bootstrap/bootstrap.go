// Package bootstrap builds the infrastructure clients and the job engine
// from configuration for the service binaries.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/meeting-jobs/internal/config"
	"github.com/cuongbtq/meeting-jobs/internal/engine"
	"github.com/cuongbtq/meeting-jobs/internal/engine/domain"
	"github.com/cuongbtq/meeting-jobs/internal/engine/storage"
	"github.com/cuongbtq/meeting-jobs/internal/recording"
	"github.com/cuongbtq/meeting-jobs/shared/logger"
	natsclient "github.com/cuongbtq/meeting-jobs/shared/nats"
	"github.com/cuongbtq/meeting-jobs/shared/postgresql"
	"github.com/cuongbtq/meeting-jobs/shared/rabbitmq"
	redisclient "github.com/cuongbtq/meeting-jobs/shared/redis"
)

// InitLogger initializes and configures the application logger
func InitLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	})
}

// InitRabbitMQ initializes the RabbitMQ client
func InitRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	return rabbitmq.NewClient(&rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		QueueName:          cfg.Queue.Name,
		QueueDurable:       cfg.Queue.Durable,
		QueueAutoDelete:    cfg.Queue.AutoDelete,
		QueueExclusive:     cfg.Queue.Exclusive,
		RoutingKey:         cfg.RoutingKey,
		PrefetchCount:      cfg.Consumer.PrefetchCount,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}, logger)
}

// InitNATS initializes the NATS client
func InitNATS(cfg *config.NATSConfig, name string, logger *slog.Logger) (*natsclient.Client, error) {
	return natsclient.NewClient(&natsclient.Config{
		URL:            cfg.URL,
		Name:           name,
		ReconnectWait:  cfg.ReconnectWait,
		ConnectTimeout: cfg.ConnectTimeout,
		RequestTimeout: cfg.RequestTimeout,
	}, logger)
}

// Ledger is the configured ledger backend with the clients it holds open
type Ledger struct {
	domain.Ledger
	// Health checks the backing store; nil for the memory ledger.
	Health  func(ctx context.Context) error
	closers []func() error
}

// Lister returns the ledger as an InstanceLister when the backend supports it
func (l *Ledger) Lister() domain.InstanceLister {
	lister, _ := l.Ledger.(domain.InstanceLister)
	return lister
}

// Close releases the clients opened for the ledger
func (l *Ledger) Close() error {
	var errs []error
	for _, closer := range l.closers {
		errs = append(errs, closer())
	}
	return errors.Join(errs...)
}

// OpenLedger connects the backend named by cfg.Engine.LedgerBackend and
// applies the PostgreSQL schema when configured to
func OpenLedger(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Ledger, error) {
	opts := storage.Options{
		Backend:     cfg.Engine.LedgerBackend,
		Lease:       cfg.Engine.AttemptLease,
		RedisPrefix: cfg.Redis.KeyPrefix,
		Logger:      logger,
	}
	out := &Ledger{}

	switch cfg.Engine.LedgerBackend {
	case config.LedgerPostgres:
		db, err := postgresql.NewClient(&postgresql.Config{
			Host:            cfg.Database.Host,
			Port:            cfg.Database.Port,
			User:            cfg.Database.User,
			Password:        cfg.Database.Password,
			Database:        cfg.Database.Database,
			SSLMode:         cfg.Database.SSLMode,
			ApplicationName: cfg.App.Name,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		opts.DB = db.GetDB()
		out.Health = db.HealthCheck
		out.closers = append(out.closers, db.Close)

	case config.LedgerRedis:
		rdb, err := redisclient.NewClient(&redisclient.Config{
			Addrs:        cfg.Redis.Addrs,
			Username:     cfg.Redis.Username,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
			PoolSize:     cfg.Redis.PoolSize,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize redis: %w", err)
		}
		opts.Redis = rdb.Universal()
		out.Health = rdb.HealthCheck
		out.closers = append(out.closers, rdb.Close)
	}

	ledger, err := storage.NewLedger(opts)
	if err != nil {
		_ = out.Close()
		return nil, err
	}
	out.Ledger = ledger

	if pg, ok := ledger.(*storage.PostgresLedger); ok && cfg.Database.Migrate {
		if err := pg.Migrate(ctx); err != nil {
			_ = out.Close()
			return nil, fmt.Errorf("failed to migrate ledger schema: %w", err)
		}
		logger.Info("Ledger schema applied")
	}

	logger.Info("Step ledger ready",
		slog.String("backend", cfg.Engine.LedgerBackend),
		slog.Duration("attempt_lease", cfg.Engine.AttemptLease),
	)
	return out, nil
}

// NewRegistry registers every job definition the services know about. The
// API service passes nil collaborators since it never runs steps.
func NewRegistry(cfg *config.Config, egress recording.Egress, notifier recording.Notifier, logger *slog.Logger) (*engine.Registry, error) {
	registry := engine.NewRegistry()

	err := registry.Register(recording.Definition(recording.Options{
		Egress:           egress,
		Notifier:         notifier,
		Logger:           logger,
		Retry:            cfg.RetryPolicies(recording.JobType),
		CompletedSubject: cfg.NATS.Subjects.RecordingCompleted,
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to register %s: %w", recording.JobType, err)
	}

	return registry, nil
}

// NewDispatcher wires executor, runner and dispatcher over ledger
func NewDispatcher(cfg *config.Config, registry *engine.Registry, ledger domain.Ledger, logger *slog.Logger) *engine.Dispatcher {
	executor := engine.NewExecutor(ledger, logger, engine.ExecutorOptions{
		PollInterval:    cfg.Engine.PollInterval,
		MaxPollInterval: cfg.Engine.MaxPollInterval,
		Lease:           cfg.Engine.AttemptLease,
	})
	runner := engine.NewRunner(executor, logger)
	return engine.NewDispatcher(registry, ledger, runner, logger)
}
