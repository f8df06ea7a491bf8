package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/meeting-jobs/internal/engine/domain"
)

const (
	defaultPollInterval    = 200 * time.Millisecond
	defaultMaxPollInterval = 5 * time.Second
	commitTimeout          = 10 * time.Second
)

// errAttemptFinished stops the lease heartbeat once the body returned
var errAttemptFinished = errors.New("attempt finished")

// ExecutorOptions tunes how the executor waits for attempts held elsewhere
// and how often it renews the lease of its own attempts
type ExecutorOptions struct {
	PollInterval    time.Duration
	MaxPollInterval time.Duration
	// Lease is the attempt lease the ledger grants; the executor renews it
	// every third of its length while a body runs.
	Lease time.Duration
}

// Executor runs one step of a job instance at most once to success, using
// the ledger to memoize results and to serialize concurrent attempts.
type Executor struct {
	ledger          domain.Ledger
	logger          *slog.Logger
	pollInterval    time.Duration
	maxPollInterval time.Duration
	heartbeat       time.Duration
	sleep           func(ctx context.Context, d time.Duration) error
}

// NewExecutor creates a new Executor instance
func NewExecutor(ledger domain.Ledger, logger *slog.Logger, opts ExecutorOptions) *Executor {
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.MaxPollInterval < opts.PollInterval {
		opts.MaxPollInterval = max(defaultMaxPollInterval, opts.PollInterval)
	}
	if opts.Lease <= 0 {
		opts.Lease = domain.DefaultAttemptLease
	}
	return &Executor{
		ledger:          ledger,
		logger:          logger,
		pollInterval:    opts.PollInterval,
		maxPollInterval: opts.MaxPollInterval,
		heartbeat:       max(opts.Lease/3, time.Millisecond),
		sleep:           sleepContext,
	}
}

// Execute returns the committed result of the step, running its body only
// when no earlier execution succeeded. The body is retried up to
// step.Retry.MaxAttempts() times in this call; once the budget is spent the
// error is a *domain.StepExhaustedError.
func (e *Executor) Execute(ctx context.Context, instanceID string, step domain.StepSpec, jc *domain.JobContext) (json.RawMessage, error) {
	logger := e.logger.With(
		slog.String("instance_id", instanceID),
		slog.String("step", step.Name),
	)

	entry, err := e.ledger.Get(ctx, instanceID, step.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger entry of step %q: %w", step.Name, err)
	}
	if entry != nil && entry.Status == domain.StepStatusSucceeded {
		logger.Debug("Step already succeeded, returning stored result")
		return entry.Result, nil
	}

	maxAttempts := step.Retry.MaxAttempts()
	used := 0
	poll := e.pollInterval

	for {
		res, err := e.ledger.TryBeginAttempt(ctx, instanceID, step.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to begin step %q: %w", step.Name, err)
		}

		switch res.Outcome {
		case domain.BeginAlreadySucceeded:
			logger.Debug("Step succeeded elsewhere, returning stored result")
			return res.Result, nil

		case domain.BeginInProgress:
			logger.Debug("Step attempt in progress elsewhere, waiting",
				slog.Duration("poll_interval", poll),
			)
			if err := e.sleep(ctx, poll); err != nil {
				return nil, fmt.Errorf("waiting for step %q: %w", step.Name, err)
			}
			poll = min(poll*2, e.maxPollInterval)
			continue
		}

		poll = e.pollInterval
		used++

		logger.Info("Running step",
			slog.Int("attempt", res.Attempt),
			slog.Int("budget_used", used),
			slog.Int("max_attempts", maxAttempts),
		)

		result, bodyErr, leaseErr := e.runAttempt(ctx, instanceID, step, jc, res.Attempt)
		if leaseErr != nil {
			logger.Error("Step attempt lost its lease, abandoning it",
				slog.Int("attempt", res.Attempt),
				slog.String("error", leaseErr.Error()),
			)
			return nil, fmt.Errorf("step %q attempt %d: %w", step.Name, res.Attempt, leaseErr)
		}
		if bodyErr == nil {
			if err := e.commitSuccess(ctx, instanceID, step.Name, result); err != nil {
				if errors.Is(err, domain.ErrLedgerConflict) {
					logger.Error("Step produced a different result than the committed one",
						slog.Int("attempt", res.Attempt),
						slog.String("error", err.Error()),
					)
					return nil, err
				}
				return nil, fmt.Errorf("failed to commit step %q: %w", step.Name, err)
			}
			logger.Info("Step succeeded", slog.Int("attempt", res.Attempt))
			return result, nil
		}

		stepErr := &domain.StepError{Step: step.Name, Attempt: res.Attempt, Err: bodyErr}
		if err := e.commitFailure(ctx, instanceID, step.Name, res.Attempt, stepErr); err != nil {
			return nil, fmt.Errorf("failed to record failure of step %q: %w", step.Name, err)
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("step %q aborted: %w", step.Name, errors.Join(ctxErr, stepErr))
		}

		if domain.IsPermanent(bodyErr) || used >= maxAttempts {
			logger.Warn("Step exhausted its retries",
				slog.Int("attempts", used),
				slog.Bool("permanent", domain.IsPermanent(bodyErr)),
				slog.String("error", bodyErr.Error()),
			)
			return nil, &domain.StepExhaustedError{Step: step.Name, Attempts: used, Err: stepErr}
		}

		delay := step.Retry.Delay(used)
		logger.Warn("Step attempt failed, retrying",
			slog.Int("attempt", res.Attempt),
			slog.Duration("delay", delay),
			slog.String("error", bodyErr.Error()),
		)
		if err := e.sleep(ctx, delay); err != nil {
			return nil, fmt.Errorf("step %q aborted during backoff: %w", step.Name, errors.Join(err, stepErr))
		}
	}
}

// runAttempt runs the body while a heartbeat keeps the attempt's lease alive.
// When the ledger reports the lease lost the body's context is canceled and
// leaseErr is set; the attempt must then not be committed.
func (e *Executor) runAttempt(ctx context.Context, instanceID string, step domain.StepSpec, jc *domain.JobContext, attempt int) (result json.RawMessage, bodyErr, leaseErr error) {
	bodyCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		e.renewLease(bodyCtx, cancel, instanceID, step.Name, attempt)
	}()

	result, bodyErr = e.runBody(bodyCtx, step, jc)
	cancel(errAttemptFinished)
	<-done

	if cause := context.Cause(bodyCtx); errors.Is(cause, domain.ErrLeaseLost) {
		return nil, nil, cause
	}
	return result, bodyErr, nil
}

func (e *Executor) renewLease(ctx context.Context, cancel context.CancelCauseFunc, instanceID, stepName string, attempt int) {
	ticker := time.NewTicker(e.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		err := e.ledger.ExtendLease(ctx, instanceID, stepName, attempt)
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrLeaseLost):
			cancel(err)
			return
		case ctx.Err() != nil:
			return
		default:
			e.logger.Warn("Failed to extend attempt lease",
				slog.String("instance_id", instanceID),
				slog.String("step", stepName),
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
		}
	}
}

// runBody invokes the step body and encodes its result. A panic in the body
// counts as a failed attempt.
func (e *Executor) runBody(ctx context.Context, step domain.StepSpec, jc *domain.JobContext) (result json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("step panicked: %v", r)
		}
	}()

	value, err := step.Body.Execute(ctx, jc)
	if err != nil {
		return nil, err
	}

	if raw, ok := value.(json.RawMessage); ok && json.Valid(raw) {
		return raw, nil
	}

	encoded, err := json.Marshal(value)
	if err != nil {
		return nil, domain.Permanent(fmt.Errorf("failed to encode step result: %w", err))
	}
	return encoded, nil
}

// Commits run detached from ctx so an attempt that finished is recorded even
// when the caller gave up in the meantime.
func (e *Executor) commitSuccess(ctx context.Context, instanceID, stepName string, result json.RawMessage) error {
	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
	defer cancel()
	return e.ledger.CommitSuccess(commitCtx, instanceID, stepName, result)
}

func (e *Executor) commitFailure(ctx context.Context, instanceID, stepName string, attempt int, stepErr error) error {
	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
	defer cancel()
	return e.ledger.CommitFailure(commitCtx, instanceID, stepName, attempt, stepErr)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
