package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Step is the body of one named unit of work.
//
// Execute may be called more than once for the same job instance whenever a
// previous attempt did not commit, so implementations must be idempotent or
// compensate on their own. The returned value is JSON encoded and stored in
// the ledger; it must encode to the same bytes when the step is re-run.
type Step interface {
	Execute(ctx context.Context, jc *JobContext) (any, error)
}

// StepFunc adapts a plain function to the Step interface
type StepFunc func(ctx context.Context, jc *JobContext) (any, error)

// Execute calls f(ctx, jc)
func (f StepFunc) Execute(ctx context.Context, jc *JobContext) (any, error) {
	return f(ctx, jc)
}

// StepSpec declares one step of a job definition
type StepSpec struct {
	Name  string
	Retry RetryPolicy
	Body  Step
}

// JobDefinition binds an event type to an ordered list of steps
type JobDefinition struct {
	JobType   string
	EventType string
	// InstanceKey is a JMESPath expression selecting the natural key of the
	// trigger payload. Empty uses the whole payload.
	InstanceKey string
	Steps       []StepSpec
	// Validate optionally rejects a trigger payload before any step runs.
	Validate func(payload json.RawMessage) error
}

// Check verifies the definition is well formed
func (d *JobDefinition) Check() error {
	if d.JobType == "" {
		return fmt.Errorf("%w: job type is required", ErrInvalidDefinition)
	}
	if d.EventType == "" {
		return fmt.Errorf("%w: event type is required for job %q", ErrInvalidDefinition, d.JobType)
	}
	if len(d.Steps) == 0 {
		return fmt.Errorf("%w: job %q has no steps", ErrInvalidDefinition, d.JobType)
	}

	seen := make(map[string]struct{}, len(d.Steps))
	for i, step := range d.Steps {
		if step.Name == "" {
			return fmt.Errorf("%w: job %q step %d has no name", ErrInvalidDefinition, d.JobType, i)
		}
		if _, ok := seen[step.Name]; ok {
			return fmt.Errorf("%w: job %q declares step %q twice", ErrInvalidDefinition, d.JobType, step.Name)
		}
		seen[step.Name] = struct{}{}
		if step.Body == nil {
			return fmt.Errorf("%w: job %q step %q has no body", ErrInvalidDefinition, d.JobType, step.Name)
		}
		if err := step.Retry.Check(); err != nil {
			return fmt.Errorf("%w: job %q step %q: %v", ErrInvalidDefinition, d.JobType, step.Name, err)
		}
	}

	return nil
}

// StepNames returns the step names in declaration order
func (d *JobDefinition) StepNames() []string {
	names := make([]string, len(d.Steps))
	for i, step := range d.Steps {
		names[i] = step.Name
	}
	return names
}

// Instance is the durable record of the event that created a job instance
type Instance struct {
	ID          string          `db:"instance_id" json:"instance_id"`
	JobType     string          `db:"job_type" json:"job_type"`
	EventType   string          `db:"event_type" json:"event_type"`
	Fingerprint string          `db:"fingerprint" json:"fingerprint"`
	Payload     json.RawMessage `db:"payload" json:"payload"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}

// JobResult is reported to the dispatcher caller once a job run ends
type JobResult struct {
	InstanceID  string
	JobType     string
	Status      string
	Context     *JobContext
	FailingStep string
	Err         error
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Succeeded reports whether every step of the job succeeded
func (r *JobResult) Succeeded() bool {
	return r != nil && r.Status == JobStatusSucceeded
}

// Exhausted reports whether the job stopped because a step ran out of retries
func (r *JobResult) Exhausted() bool {
	return r != nil && r.Err != nil && errors.Is(r.Err, ErrStepExhausted)
}

// TriggerEvent is the queue message that asks a worker to dispatch an event
type TriggerEvent struct {
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
}
