package domain

import "time"

// Ledger entry status constants
const (
	StepStatusPending   = "pending"
	StepStatusSucceeded = "succeeded"
	StepStatusFailed    = "failed"
)

// Job result status constants
const (
	JobStatusSucceeded = "succeeded"
	JobStatusFailed    = "failed"
)

// Instance status derived from ledger entries for inspection
const (
	InstanceStatusNew       = "new"
	InstanceStatusRunning   = "running"
	InstanceStatusSucceeded = "succeeded"
	InstanceStatusFailed    = "failed"
)

// Retry policy defaults
const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = time.Second
	DefaultMaxDelay   = 30 * time.Second
	DefaultJitter     = 0.2
)

// DefaultAttemptLease bounds how long a pending attempt blocks other callers
// before it is treated as abandoned.
const DefaultAttemptLease = 5 * time.Minute
