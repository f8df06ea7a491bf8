package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/cuongbtq/meeting-jobs/internal/engine/domain"
)

// Runner executes the steps of a job definition in declaration order
type Runner struct {
	executor *Executor
	logger   *slog.Logger
	now      func() time.Time
}

// NewRunner creates a new Runner instance
func NewRunner(executor *Executor, logger *slog.Logger) *Runner {
	return &Runner{
		executor: executor,
		logger:   logger,
		now:      time.Now,
	}
}

// Run executes every step of def for the instance and stops at the first
// step that fails. Steps that succeeded in an earlier run are not re-executed.
func (r *Runner) Run(ctx context.Context, def *domain.JobDefinition, instanceID string, trigger json.RawMessage) *domain.JobResult {
	jc := domain.NewJobContext(instanceID, def.JobType, trigger)
	result := &domain.JobResult{
		InstanceID: instanceID,
		JobType:    def.JobType,
		Context:    jc,
		StartedAt:  r.now().UTC(),
	}

	logger := r.logger.With(
		slog.String("instance_id", instanceID),
		slog.String("job_type", def.JobType),
	)
	logger.Info("Running job", slog.Int("steps", len(def.Steps)))

	for _, step := range def.Steps {
		out, err := r.executor.Execute(ctx, instanceID, step, jc)
		if err != nil {
			result.Status = domain.JobStatusFailed
			result.FailingStep = step.Name
			result.Err = err
			result.FinishedAt = r.now().UTC()

			logger.Error("Job failed",
				slog.String("failing_step", step.Name),
				slog.String("error", err.Error()),
			)
			return result
		}
		jc.Set(step.Name, out)
	}

	result.Status = domain.JobStatusSucceeded
	result.FinishedAt = r.now().UTC()

	logger.Info("Job succeeded",
		slog.Duration("duration", result.FinishedAt.Sub(result.StartedAt)),
	)
	return result
}
