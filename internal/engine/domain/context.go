package domain

import (
	"encoding/json"
	"fmt"
	"sync"
)

// JobContext accumulates the trigger payload and the result of each completed
// step of one job instance. The runner is the only writer; step bodies read.
type JobContext struct {
	InstanceID string
	JobType    string
	Trigger    json.RawMessage

	mu      sync.RWMutex
	results map[string]json.RawMessage
	order   []string
}

// NewJobContext creates a context seeded with the trigger payload
func NewJobContext(instanceID, jobType string, trigger json.RawMessage) *JobContext {
	return &JobContext{
		InstanceID: instanceID,
		JobType:    jobType,
		Trigger:    trigger,
		results:    make(map[string]json.RawMessage),
	}
}

// DecodeTrigger unmarshals the trigger payload into v
func (c *JobContext) DecodeTrigger(v any) error {
	if err := json.Unmarshal(c.Trigger, v); err != nil {
		return fmt.Errorf("failed to decode trigger payload: %w", err)
	}
	return nil
}

// Has reports whether a result is recorded for step
func (c *JobContext) Has(step string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.results[step]
	return ok
}

// Raw returns the encoded result of step
func (c *JobContext) Raw(step string) (json.RawMessage, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	raw, ok := c.results[step]
	return raw, ok
}

// Result unmarshals the result of an earlier step into v
func (c *JobContext) Result(step string, v any) error {
	raw, ok := c.Raw(step)
	if !ok {
		return fmt.Errorf("no result recorded for step %q", step)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to decode result of step %q: %w", step, err)
	}
	return nil
}

// Set records the result of a step
func (c *JobContext) Set(step string, result json.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.results[step]; !ok {
		c.order = append(c.order, step)
	}
	c.results[step] = result
}

// Steps returns the names of recorded steps in the order they completed
func (c *JobContext) Steps() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Snapshot returns a copy of all recorded results keyed by step name
func (c *JobContext) Snapshot() map[string]json.RawMessage {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]json.RawMessage, len(c.results))
	for k, v := range c.results {
		out[k] = v
	}
	return out
}

// MarshalJSON renders the context as {"instance_id", "job_type", "trigger", "results"}
func (c *JobContext) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		InstanceID string                     `json:"instance_id"`
		JobType    string                     `json:"job_type"`
		Trigger    json.RawMessage            `json:"trigger,omitempty"`
		Results    map[string]json.RawMessage `json:"results"`
	}{
		InstanceID: c.InstanceID,
		JobType:    c.JobType,
		Trigger:    c.Trigger,
		Results:    c.Snapshot(),
	})
}
