package config

import (
	"fmt"
	"os"
	"time"

	env "github.com/caarlos0/env/v11"
	"github.com/cuongbtq/meeting-jobs/internal/engine/domain"
	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Ledger backends
const (
	LedgerPostgres = "postgres"
	LedgerRedis    = "redis"
	LedgerMemory   = "memory"
)

// Config represents the complete application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	NATS     NATSConfig     `yaml:"nats"`
	Redis    RedisConfig    `yaml:"redis"`
	Logging  LoggingConfig  `yaml:"logging"`
	App      AppConfig      `yaml:"app"`
	Worker   WorkerConfig   `yaml:"worker"`
	Engine   EngineConfig   `yaml:"engine"`
	// Jobs holds per job type settings keyed by job type.
	Jobs map[string]JobConfig `yaml:"jobs"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" env:"SERVER_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host            string        `yaml:"host" env:"DB_HOST"`
	Port            int           `yaml:"port" env:"DB_PORT"`
	User            string        `yaml:"user" env:"DB_USER"`
	Password        string        `yaml:"password" env:"DB_PASSWORD"`
	Database        string        `yaml:"database" env:"DB_NAME"`
	SSLMode         string        `yaml:"sslmode" env:"DB_SSLMODE"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	// Migrate applies the ledger schema at startup.
	Migrate bool `yaml:"migrate" env:"DB_MIGRATE"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange/queue configuration
type RabbitMQConfig struct {
	Host       string           `yaml:"host" env:"RABBITMQ_HOST"`
	Port       int              `yaml:"port" env:"RABBITMQ_PORT"`
	User       string           `yaml:"user" env:"RABBITMQ_USER"`
	Password   string           `yaml:"password" env:"RABBITMQ_PASSWORD"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Queue      QueueConfig      `yaml:"queue"`
	RoutingKey string           `yaml:"routing_key"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
	Consumer   ConsumerConfig   `yaml:"consumer"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// QueueConfig holds RabbitMQ queue configuration
type QueueConfig struct {
	Name       string `yaml:"name"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
	Exclusive  bool   `yaml:"exclusive"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// ConsumerConfig holds RabbitMQ consumer settings
type ConsumerConfig struct {
	PrefetchCount int    `yaml:"prefetch_count"`
	Tag           string `yaml:"tag"`
}

// NATSConfig holds NATS connection settings and subjects
type NATSConfig struct {
	URL            string         `yaml:"url" env:"NATS_URL"`
	ReconnectWait  time.Duration  `yaml:"reconnect_wait"`
	ConnectTimeout time.Duration  `yaml:"connect_timeout"`
	RequestTimeout time.Duration  `yaml:"request_timeout"`
	Subjects       SubjectsConfig `yaml:"subjects"`
}

// SubjectsConfig names the NATS subjects the services use
type SubjectsConfig struct {
	EgressStart        string `yaml:"egress_start"`
	RecordingCompleted string `yaml:"recording_completed"`
	JobResults         string `yaml:"job_results"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Addrs        []string      `yaml:"addrs" env:"REDIS_ADDRS" envSeparator:","`
	Username     string        `yaml:"username" env:"REDIS_USERNAME"`
	Password     string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB           int           `yaml:"db" env:"REDIS_DB"`
	KeyPrefix    string        `yaml:"key_prefix"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	PoolSize     int           `yaml:"pool_size"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level" env:"LOG_LEVEL"`
	Format       string `yaml:"format" env:"LOG_FORMAT"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment" env:"APP_ENV"`
}

// WorkerConfig holds worker service configuration
type WorkerConfig struct {
	Concurrency     int           `yaml:"concurrency" env:"WORKER_CONCURRENCY"`
	JobTimeout      time.Duration `yaml:"job_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// EngineConfig holds step ledger and executor settings
type EngineConfig struct {
	LedgerBackend   string        `yaml:"ledger_backend" env:"ENGINE_LEDGER_BACKEND"`
	AttemptLease    time.Duration `yaml:"attempt_lease"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	MaxPollInterval time.Duration `yaml:"max_poll_interval"`
}

// JobConfig holds the settings of one job type
type JobConfig struct {
	// Steps overrides the retry policy of individual steps by step name.
	Steps map[string]RetryConfig `yaml:"steps"`
}

// RetryConfig overrides fields of the default retry policy; unset fields keep the default
type RetryConfig struct {
	MaxRetries *int          `yaml:"max_retries"`
	BaseDelay  time.Duration `yaml:"base_delay"`
	MaxDelay   time.Duration `yaml:"max_delay"`
	Jitter     *float64      `yaml:"jitter"`
}

// Policy returns the default retry policy with the configured fields applied
func (r RetryConfig) Policy() domain.RetryPolicy {
	policy := domain.DefaultRetryPolicy()
	if r.MaxRetries != nil {
		policy.MaxRetries = *r.MaxRetries
	}
	if r.BaseDelay > 0 {
		policy.BaseDelay = r.BaseDelay
	}
	if r.MaxDelay > 0 {
		policy.MaxDelay = r.MaxDelay
	}
	if r.Jitter != nil {
		policy.Jitter = *r.Jitter
	}
	return policy
}

// RetryPolicies returns the step retry overrides configured for jobType
func (c *Config) RetryPolicies(jobType string) map[string]domain.RetryPolicy {
	job, ok := c.Jobs[jobType]
	if !ok || len(job.Steps) == 0 {
		return nil
	}

	policies := make(map[string]domain.RetryPolicy, len(job.Steps))
	for step, retry := range job.Steps {
		policies[step] = retry.Policy()
	}
	return policies
}

// Load reads and parses the configuration file, then applies environment overrides
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := env.Parse(&config); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	config.applyDefaults()

	return &config, nil
}

const minAttemptLease = 3 * time.Second

func (c *Config) applyDefaults() {
	if c.Engine.LedgerBackend == "" {
		c.Engine.LedgerBackend = LedgerPostgres
	}
	if c.Engine.AttemptLease <= 0 {
		c.Engine.AttemptLease = domain.DefaultAttemptLease
	}
	if c.NATS.Subjects.JobResults == "" {
		c.NATS.Subjects.JobResults = "jobs.results"
	}
	if c.RabbitMQ.Consumer.PrefetchCount <= 0 {
		c.RabbitMQ.Consumer.PrefetchCount = c.Worker.Concurrency
	}
}

// Validate checks the settings shared by every service
func (c *Config) Validate() error {
	switch c.Engine.LedgerBackend {
	case LedgerPostgres:
		if err := c.validateDatabase(); err != nil {
			return err
		}
	case LedgerRedis:
		if len(c.Redis.Addrs) == 0 {
			return fmt.Errorf("redis addrs are required for the redis ledger")
		}
	case LedgerMemory:
	default:
		return fmt.Errorf("unknown ledger backend %q", c.Engine.LedgerBackend)
	}

	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}

	if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}

	if c.RabbitMQ.Exchange.Name == "" {
		return fmt.Errorf("rabbitmq exchange name is required")
	}

	if c.RabbitMQ.Queue.Name == "" {
		return fmt.Errorf("rabbitmq queue name is required")
	}

	if c.Engine.PollInterval < 0 || c.Engine.MaxPollInterval < 0 {
		return fmt.Errorf("engine poll intervals must not be negative")
	}

	for jobType, job := range c.Jobs {
		for step, retry := range job.Steps {
			if err := retry.Policy().Check(); err != nil {
				return fmt.Errorf("invalid retry policy for job %s step %s: %w", jobType, step, err)
			}
		}
	}

	return nil
}

func (c *Config) validateDatabase() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	return nil
}

// ValidateAPIConfig checks the settings the API service needs
func (c *Config) ValidateAPIConfig() error {
	if err := c.Validate(); err != nil {
		return err
	}

	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if c.Engine.LedgerBackend == LedgerMemory {
		return fmt.Errorf("the api service cannot inspect a memory ledger held by the worker")
	}

	return nil
}

// ValidateWorkerConfig checks the settings the worker service needs
func (c *Config) ValidateWorkerConfig() error {
	if err := c.Validate(); err != nil {
		return err
	}

	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker concurrency must be greater than 0")
	}

	if c.Worker.JobTimeout <= 0 {
		return fmt.Errorf("worker job_timeout must be greater than 0")
	}

	if c.Worker.ShutdownTimeout <= 0 {
		return fmt.Errorf("worker shutdown_timeout must be greater than 0")
	}

	if c.NATS.URL == "" {
		return fmt.Errorf("nats url is required")
	}

	// the executor renews leases every third of their length
	if c.Engine.AttemptLease < minAttemptLease {
		return fmt.Errorf("engine attempt_lease must be at least %s", minAttemptLease)
	}

	return nil
}
