package dto

import (
	"encoding/json"
	"time"

	"github.com/cuongbtq/meeting-jobs/internal/engine/domain"
)

type CreateEventRequest struct {
	EventType string          `json:"event_type" binding:"required"`
	Payload   json.RawMessage `json:"payload" binding:"required"`
}

type CreateEventResponse struct {
	InstanceID string `json:"instance_id"`
	JobType    string `json:"job_type"`
	EventType  string `json:"event_type"`
	NaturalKey string `json:"natural_key"`
}

type ListJobsRequest struct {
	JobType  string `form:"job_type"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListJobsResponse struct {
	Jobs       []JobDTO `json:"jobs"`
	NextCursor string   `json:"next_cursor,omitempty"`
}

type JobDTO struct {
	InstanceID  string          `json:"instance_id"`
	JobType     string          `json:"job_type"`
	EventType   string          `json:"event_type"`
	Fingerprint string          `json:"fingerprint"`
	Payload     json.RawMessage `json:"payload"`
	CreatedAt   string          `json:"created_at"`
}

type JobDetailResponse struct {
	JobDTO
	Status string    `json:"status"`
	Steps  []StepDTO `json:"steps"`
}

type StepDTO struct {
	Name           string          `json:"name"`
	Status         string          `json:"status"`
	Attempts       int             `json:"attempts"`
	LastError      string          `json:"last_error,omitempty"`
	Result         json.RawMessage `json:"result,omitempty"`
	FirstAttemptAt string          `json:"first_attempt_at,omitempty"`
	LastAttemptAt  string          `json:"last_attempt_at,omitempty"`
}

type RedispatchResponse struct {
	InstanceID string `json:"instance_id"`
	JobType    string `json:"job_type"`
	Status     string `json:"status"`
}

func NewJobDTO(instance *domain.Instance) JobDTO {
	return JobDTO{
		InstanceID:  instance.ID,
		JobType:     instance.JobType,
		EventType:   instance.EventType,
		Fingerprint: instance.Fingerprint,
		Payload:     instance.Payload,
		CreatedAt:   instance.CreatedAt.Format(time.RFC3339),
	}
}

// NewStepDTOs orders entries by the declared steps; steps that never ran are
// reported as not started and unknown entries follow in ledger order
func NewStepDTOs(steps []string, entries []domain.LedgerEntry) []StepDTO {
	byName := make(map[string]domain.LedgerEntry, len(entries))
	for _, entry := range entries {
		byName[entry.StepName] = entry
	}

	out := make([]StepDTO, 0, max(len(steps), len(entries)))
	declared := make(map[string]struct{}, len(steps))
	for _, step := range steps {
		declared[step] = struct{}{}
		entry, ok := byName[step]
		if !ok {
			out = append(out, StepDTO{Name: step, Status: "not_started"})
			continue
		}
		out = append(out, newStepDTO(entry))
	}
	for _, entry := range entries {
		if _, ok := declared[entry.StepName]; !ok {
			out = append(out, newStepDTO(entry))
		}
	}
	return out
}

func newStepDTO(entry domain.LedgerEntry) StepDTO {
	step := StepDTO{
		Name:      entry.StepName,
		Status:    entry.Status,
		Attempts:  entry.Attempts,
		LastError: entry.LastError,
		Result:    entry.Result,
	}
	if !entry.FirstAttemptAt.IsZero() {
		step.FirstAttemptAt = entry.FirstAttemptAt.Format(time.RFC3339)
	}
	if !entry.LastAttemptAt.IsZero() {
		step.LastAttemptAt = entry.LastAttemptAt.Format(time.RFC3339)
	}
	return step
}
