package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/meeting-jobs/internal/engine/domain"
)

// Resolution is an event resolved to its job definition and instance
type Resolution struct {
	Definition *domain.JobDefinition
	Instance   *domain.Instance
	NaturalKey string
}

// Dispatcher turns trigger events into job runs
type Dispatcher struct {
	registry *Registry
	ledger   domain.Ledger
	runner   *Runner
	logger   *slog.Logger
}

// NewDispatcher creates a new Dispatcher instance
func NewDispatcher(registry *Registry, ledger domain.Ledger, runner *Runner, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		ledger:   ledger,
		runner:   runner,
		logger:   logger,
	}
}

// Resolve finds the definition bound to eventType, validates the payload and
// derives the instance id. Nothing is recorded or run.
func (d *Dispatcher) Resolve(eventType string, payload json.RawMessage) (*Resolution, error) {
	def, err := d.registry.ForEvent(eventType)
	if err != nil {
		return nil, err
	}

	doc, canonical, err := canonicalPayload(payload)
	if err != nil {
		return nil, domain.NewValidationError(eventType, err.Error())
	}

	if def.Validate != nil {
		if err := def.Validate(canonical); err != nil {
			return nil, domain.NewValidationError(eventType, err.Error())
		}
	}

	key, err := naturalKey(def.InstanceKey, doc, canonical)
	if err != nil {
		return nil, domain.NewValidationError(eventType, err.Error())
	}

	return &Resolution{
		Definition: def,
		NaturalKey: key,
		Instance: &domain.Instance{
			ID:          InstanceID(def.JobType, eventType, key),
			JobType:     def.JobType,
			EventType:   eventType,
			Fingerprint: fingerprint(canonical),
			Payload:     json.RawMessage(canonical),
		},
	}, nil
}

// Dispatch runs the job bound to eventType for the payload. The returned
// error covers failures to start the job: unknown event type, invalid
// payload, or a payload that conflicts with the one the instance was first
// dispatched with. A job that ran and failed is reported through the result.
func (d *Dispatcher) Dispatch(ctx context.Context, eventType string, payload json.RawMessage) (*domain.JobResult, error) {
	resolution, err := d.Resolve(eventType, payload)
	if err != nil {
		d.logger.Warn("Rejected event",
			slog.String("event_type", eventType),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	instance, err := d.ledger.BindInstance(ctx, resolution.Instance)
	if err != nil {
		d.logger.Error("Failed to bind job instance",
			slog.String("event_type", eventType),
			slog.String("instance_id", resolution.Instance.ID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("failed to bind job instance: %w", err)
	}

	d.logger.Info("Dispatching job",
		slog.String("event_type", eventType),
		slog.String("job_type", instance.JobType),
		slog.String("instance_id", instance.ID),
		slog.String("natural_key", resolution.NaturalKey),
	)

	return d.runner.Run(ctx, resolution.Definition, instance.ID, instance.Payload), nil
}

// Redispatch runs a previously dispatched instance again with its stored trigger
func (d *Dispatcher) Redispatch(ctx context.Context, instanceID string) (*domain.JobResult, error) {
	instance, err := d.ledger.GetInstance(ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load job instance: %w", err)
	}

	def, ok := d.registry.ForJobType(instance.JobType)
	if !ok {
		return nil, fmt.Errorf("%w: job type %q of instance %s", domain.ErrUnregisteredEventType, instance.JobType, instanceID)
	}

	d.logger.Info("Re-dispatching job",
		slog.String("job_type", instance.JobType),
		slog.String("instance_id", instance.ID),
	)

	return d.runner.Run(ctx, def, instance.ID, instance.Payload), nil
}
