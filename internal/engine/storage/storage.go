// Package storage provides the Step Ledger backends of the job engine.
package storage

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/meeting-jobs/internal/engine/domain"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
)

// Ledger backend names
const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
)

// Options selects and configures a ledger backend
type Options struct {
	Backend     string
	Lease       time.Duration
	RedisPrefix string
	DB          *sqlx.DB
	Redis       redis.UniversalClient
	Logger      *slog.Logger
}

// NewLedger builds the ledger backend named by opts.Backend
func NewLedger(opts Options) (domain.Ledger, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	switch opts.Backend {
	case BackendPostgres, "":
		if opts.DB == nil {
			return nil, fmt.Errorf("postgres ledger requires a database connection")
		}
		return NewPostgresLedger(opts.DB, logger, opts.Lease), nil
	case BackendRedis:
		if opts.Redis == nil {
			return nil, fmt.Errorf("redis ledger requires a redis client")
		}
		return NewRedisLedger(opts.Redis, logger, opts.RedisPrefix, opts.Lease), nil
	case BackendMemory:
		return NewMemoryLedger(opts.Lease), nil
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", opts.Backend)
	}
}
