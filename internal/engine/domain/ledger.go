package domain

import (
	"bytes"
	"context"
	"encoding/json"
	"time"
)

// LedgerEntry is the persisted state of one step of one job instance
type LedgerEntry struct {
	InstanceID     string          `db:"instance_id" json:"instance_id"`
	StepName       string          `db:"step_name" json:"step_name"`
	Status         string          `db:"status" json:"status"`
	Result         json.RawMessage `db:"result" json:"result,omitempty"`
	Attempts       int             `db:"attempts" json:"attempts"`
	LastError      string          `db:"last_error" json:"last_error,omitempty"`
	FirstAttemptAt time.Time       `db:"first_attempt_at" json:"first_attempt_at"`
	LastAttemptAt  time.Time       `db:"last_attempt_at" json:"last_attempt_at"`
	LeaseExpiresAt *time.Time      `db:"lease_expires_at" json:"lease_expires_at,omitempty"`
}

// BeginOutcome is the answer of Ledger.TryBeginAttempt
type BeginOutcome int

const (
	// BeginGranted means the caller owns the next attempt of the step
	BeginGranted BeginOutcome = iota
	// BeginAlreadySucceeded means the step has a committed result
	BeginAlreadySucceeded
	// BeginInProgress means another caller holds a live attempt
	BeginInProgress
)

func (o BeginOutcome) String() string {
	switch o {
	case BeginGranted:
		return "granted"
	case BeginAlreadySucceeded:
		return "already_succeeded"
	case BeginInProgress:
		return "attempt_in_progress"
	default:
		return "unknown"
	}
}

// BeginResult carries the outcome of TryBeginAttempt. Attempt is the number
// of the granted attempt; Result is set for BeginAlreadySucceeded.
type BeginResult struct {
	Outcome BeginOutcome
	Attempt int
	Result  json.RawMessage
}

// Ledger records which steps of which job instances produced a result.
//
// All mutations of one (instanceID, stepName) key are mutually exclusive;
// implementations apply the transition rules of LedgerEntry under their own
// locking primitive.
type Ledger interface {
	Get(ctx context.Context, instanceID, stepName string) (*LedgerEntry, error)
	TryBeginAttempt(ctx context.Context, instanceID, stepName string) (BeginResult, error)
	CommitSuccess(ctx context.Context, instanceID, stepName string, result json.RawMessage) error
	CommitFailure(ctx context.Context, instanceID, stepName string, attempt int, stepErr error) error
	// ExtendLease renews the lease of a running attempt. It returns
	// ErrLeaseLost once attempt is no longer the pending attempt of the step.
	ExtendLease(ctx context.Context, instanceID, stepName string, attempt int) error

	BindInstance(ctx context.Context, instance *Instance) (*Instance, error)
	GetInstance(ctx context.Context, instanceID string) (*Instance, error)
	ListEntries(ctx context.Context, instanceID string) ([]LedgerEntry, error)
}

// InstanceFilter narrows ListInstances
type InstanceFilter struct {
	JobType  string
	PageSize int
	Cursor   *InstanceCursor
}

// InstanceCursor is a keyset position in instance listings ordered newest first
type InstanceCursor struct {
	CreatedAt  time.Time
	InstanceID string
}

// InstanceLister is implemented by ledgers that can enumerate instances
type InstanceLister interface {
	ListInstances(ctx context.Context, filter InstanceFilter) ([]Instance, error)
}

// Begin applies the tryBeginAttempt rules to e, which is nil when the step
// was never attempted. On BeginGranted the returned entry is the new state to
// persist; otherwise e is returned unchanged.
func (e *LedgerEntry) Begin(instanceID, stepName string, now time.Time, lease time.Duration) (*LedgerEntry, BeginResult) {
	if e == nil {
		expires := now.Add(lease)
		entry := &LedgerEntry{
			InstanceID:     instanceID,
			StepName:       stepName,
			Status:         StepStatusPending,
			Attempts:       1,
			FirstAttemptAt: now,
			LastAttemptAt:  now,
			LeaseExpiresAt: &expires,
		}
		return entry, BeginResult{Outcome: BeginGranted, Attempt: 1}
	}

	switch e.Status {
	case StepStatusSucceeded:
		return e, BeginResult{Outcome: BeginAlreadySucceeded, Attempt: e.Attempts, Result: e.Result}
	case StepStatusPending:
		if e.LeaseExpiresAt == nil || now.Before(*e.LeaseExpiresAt) {
			return e, BeginResult{Outcome: BeginInProgress, Attempt: e.Attempts}
		}
	}

	next := *e
	expires := now.Add(lease)
	next.Status = StepStatusPending
	next.Attempts = e.Attempts + 1
	next.LastAttemptAt = now
	next.LeaseExpiresAt = &expires
	if next.FirstAttemptAt.IsZero() {
		next.FirstAttemptAt = now
	}
	return &next, BeginResult{Outcome: BeginGranted, Attempt: next.Attempts}
}

// Renew moves the lease of the pending attempt forward
func (e *LedgerEntry) Renew(attempt int, now time.Time, lease time.Duration) (*LedgerEntry, error) {
	if e == nil || e.Status != StepStatusPending || e.Attempts != attempt {
		return nil, ErrLeaseLost
	}

	renewed := *e
	expires := now.Add(lease)
	renewed.LeaseExpiresAt = &expires
	return &renewed, nil
}

// Succeed applies the commitSuccess rules. changed is false when the entry
// already holds the same result, which makes a duplicate commit a no-op.
func (e *LedgerEntry) Succeed(result json.RawMessage, now time.Time) (next *LedgerEntry, changed bool, err error) {
	if e == nil {
		return nil, false, ErrEntryNotFound
	}

	result = compactResult(result)

	if e.Status == StepStatusSucceeded {
		if bytes.Equal(e.Result, result) {
			return e, false, nil
		}
		return e, false, &ConflictError{
			InstanceID: e.InstanceID,
			Step:       e.StepName,
			Reason:     "step produced a different result than the committed one",
		}
	}

	succeeded := *e
	succeeded.Status = StepStatusSucceeded
	succeeded.Result = result
	succeeded.LastError = ""
	succeeded.LastAttemptAt = now
	succeeded.LeaseExpiresAt = nil
	return &succeeded, true, nil
}

// compactResult returns a compacted copy of result so equal results compare
// byte-equal regardless of formatting
func compactResult(result json.RawMessage) json.RawMessage {
	var buf bytes.Buffer
	if err := json.Compact(&buf, result); err != nil {
		return append(json.RawMessage(nil), result...)
	}
	return buf.Bytes()
}

// Fail applies the commitFailure rules. A failure reported for an attempt
// that is no longer current, or for a step that already succeeded, leaves
// the entry unchanged.
func (e *LedgerEntry) Fail(attempt int, stepErr error, now time.Time) (next *LedgerEntry, changed bool, err error) {
	if e == nil {
		return nil, false, ErrEntryNotFound
	}
	if e.Status == StepStatusSucceeded || attempt < e.Attempts {
		return e, false, nil
	}

	failed := *e
	failed.Status = StepStatusFailed
	if attempt > failed.Attempts {
		failed.Attempts = attempt
	}
	if stepErr != nil {
		failed.LastError = stepErr.Error()
	}
	failed.LastAttemptAt = now
	failed.LeaseExpiresAt = nil
	return &failed, true, nil
}

// Bind compares an incoming trigger with the stored instance record
func (i *Instance) Bind(incoming *Instance) error {
	if i.Fingerprint != incoming.Fingerprint || i.JobType != incoming.JobType {
		return &ConflictError{
			InstanceID: i.ID,
			Reason:     "instance already bound to a different trigger payload",
		}
	}
	return nil
}

// DeriveInstanceStatus summarizes the entries of an instance whose job
// declares steps. Without steps only the entries are considered.
func DeriveInstanceStatus(steps []string, entries []LedgerEntry) string {
	if len(entries) == 0 {
		return InstanceStatusNew
	}

	succeeded := 0
	for _, entry := range entries {
		switch entry.Status {
		case StepStatusPending:
			return InstanceStatusRunning
		case StepStatusFailed:
			return InstanceStatusFailed
		case StepStatusSucceeded:
			succeeded++
		}
	}

	if len(steps) == 0 {
		if succeeded == len(entries) {
			return InstanceStatusSucceeded
		}
		return InstanceStatusRunning
	}

	byName := make(map[string]string, len(entries))
	for _, entry := range entries {
		byName[entry.StepName] = entry.Status
	}
	for _, step := range steps {
		if byName[step] != StepStatusSucceeded {
			return InstanceStatusRunning
		}
	}
	return InstanceStatusSucceeded
}
