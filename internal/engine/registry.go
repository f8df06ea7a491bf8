package engine

import (
	"fmt"
	"sort"
	"sync"

	"github.com/cuongbtq/meeting-jobs/internal/engine/domain"
	"github.com/jmespath-community/go-jmespath"
)

// Registry maps event types and job types to their job definitions. It is
// built once at startup and handed to the dispatcher.
type Registry struct {
	mu        sync.RWMutex
	byJobType map[string]*domain.JobDefinition
	byEvent   map[string]*domain.JobDefinition
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		byJobType: make(map[string]*domain.JobDefinition),
		byEvent:   make(map[string]*domain.JobDefinition),
	}
}

// Register adds a job definition. Each job type and each event type may be
// registered once.
func (r *Registry) Register(def domain.JobDefinition) error {
	if err := def.Check(); err != nil {
		return err
	}

	if def.InstanceKey != "" {
		if _, err := jmespath.Compile(def.InstanceKey); err != nil {
			return fmt.Errorf("%w: job %q instance key %q: %v", domain.ErrInvalidDefinition, def.JobType, def.InstanceKey, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byJobType[def.JobType]; ok {
		return fmt.Errorf("%w: job type %q", domain.ErrDuplicateDefinition, def.JobType)
	}
	if existing, ok := r.byEvent[def.EventType]; ok {
		return fmt.Errorf("%w: event type %q already bound to job %q", domain.ErrDuplicateDefinition, def.EventType, existing.JobType)
	}

	stored := def
	stored.Steps = append([]domain.StepSpec(nil), def.Steps...)
	r.byJobType[def.JobType] = &stored
	r.byEvent[def.EventType] = &stored

	return nil
}

// MustRegister is Register for definitions known to be valid at compile time
func (r *Registry) MustRegister(def domain.JobDefinition) {
	if err := r.Register(def); err != nil {
		panic(err)
	}
}

// ForEvent returns the definition bound to eventType
func (r *Registry) ForEvent(eventType string) (*domain.JobDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.byEvent[eventType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnregisteredEventType, eventType)
	}
	return def, nil
}

// ForJobType returns the definition registered under jobType
func (r *Registry) ForJobType(jobType string) (*domain.JobDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.byJobType[jobType]
	return def, ok
}

// EventTypes returns the registered event types, sorted
func (r *Registry) EventTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.byEvent))
	for eventType := range r.byEvent {
		out = append(out, eventType)
	}
	sort.Strings(out)
	return out
}
