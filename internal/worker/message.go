package worker

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cuongbtq/meeting-jobs/internal/engine/domain"
)

// decodeEvent parses a delivery body. Malformed bodies are never retried.
func decodeEvent(body []byte) (*domain.TriggerEvent, error) {
	var msg domain.TriggerEvent
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if msg.EventType == "" {
		return nil, fmt.Errorf("%w: event_type is required", ErrMalformedMessage)
	}
	if len(msg.Payload) == 0 {
		return nil, fmt.Errorf("%w: payload is required", ErrMalformedMessage)
	}
	return &msg, nil
}

// ResultMessage is published for every job run the worker finishes
type ResultMessage struct {
	InstanceID  string                     `json:"instance_id"`
	JobType     string                     `json:"job_type"`
	EventType   string                     `json:"event_type"`
	Status      string                     `json:"status"`
	FailingStep string                     `json:"failing_step,omitempty"`
	Error       string                     `json:"error,omitempty"`
	Results     map[string]json.RawMessage `json:"results,omitempty"`
	WorkerID    string                     `json:"worker_id"`
	StartedAt   time.Time                  `json:"started_at"`
	FinishedAt  time.Time                  `json:"finished_at"`
}

func newResultMessage(eventType, workerID string, result *domain.JobResult) *ResultMessage {
	msg := &ResultMessage{
		InstanceID:  result.InstanceID,
		JobType:     result.JobType,
		EventType:   eventType,
		Status:      result.Status,
		FailingStep: result.FailingStep,
		WorkerID:    workerID,
		StartedAt:   result.StartedAt,
		FinishedAt:  result.FinishedAt,
	}
	if result.Err != nil {
		msg.Error = result.Err.Error()
	}
	if result.Context != nil {
		msg.Results = result.Context.Snapshot()
	}
	return msg
}
