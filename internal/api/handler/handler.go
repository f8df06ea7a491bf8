package handler

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/cuongbtq/meeting-jobs/internal/engine"
	"github.com/cuongbtq/meeting-jobs/internal/engine/domain"
	"github.com/cuongbtq/meeting-jobs/shared/rabbitmq"
)

// EventResolver maps a trigger event to its job definition and instance
type EventResolver interface {
	Resolve(eventType string, payload json.RawMessage) (*engine.Resolution, error)
}

// Definitions looks up registered job definitions by job type
type Definitions interface {
	ForJobType(jobType string) (*domain.JobDefinition, bool)
}

// EventPublisher enqueues trigger events for the workers
type EventPublisher interface {
	PublishWithRetry(ctx context.Context, msg rabbitmq.Message) error
}

// HealthCheck reports whether one dependency is usable
type HealthCheck func(ctx context.Context) error

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger      *slog.Logger
	Resolver    EventResolver
	Definitions Definitions
	Ledger      domain.Ledger
	// Lister is nil when the ledger backend cannot enumerate instances.
	Lister       domain.InstanceLister
	Publisher    EventPublisher
	HealthChecks map[string]HealthCheck
	ServiceName  string
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	logger      *slog.Logger
	resolver    EventResolver
	definitions Definitions
	ledger      domain.Ledger
	lister      domain.InstanceLister
	publisher   EventPublisher
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger:      deps.Logger,
		resolver:    deps.Resolver,
		definitions: deps.Definitions,
		ledger:      deps.Ledger,
		lister:      deps.Lister,
		publisher:   deps.Publisher,
	}
}
