package engine

import (
	"context"
	"testing"

	"github.com/cuongbtq/meeting-jobs/internal/engine/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop() domain.Step {
	return domain.StepFunc(func(ctx context.Context, jc *domain.JobContext) (any, error) {
		return nil, nil
	})
}

func TestRegistry_Register(t *testing.T) {
	tests := []struct {
		name    string
		defs    []domain.JobDefinition
		wantErr error
	}{
		{
			name: "single definition",
			defs: []domain.JobDefinition{
				{JobType: "RecordingPipeline", EventType: "recording.start", InstanceKey: "meetingId", Steps: []domain.StepSpec{{Name: "validate", Body: noop()}}},
			},
		},
		{
			name: "duplicate job type",
			defs: []domain.JobDefinition{
				{JobType: "RecordingPipeline", EventType: "recording.start", Steps: []domain.StepSpec{{Name: "validate", Body: noop()}}},
				{JobType: "RecordingPipeline", EventType: "recording.restart", Steps: []domain.StepSpec{{Name: "validate", Body: noop()}}},
			},
			wantErr: domain.ErrDuplicateDefinition,
		},
		{
			name: "duplicate event type",
			defs: []domain.JobDefinition{
				{JobType: "RecordingPipeline", EventType: "recording.start", Steps: []domain.StepSpec{{Name: "validate", Body: noop()}}},
				{JobType: "TranscriptPipeline", EventType: "recording.start", Steps: []domain.StepSpec{{Name: "validate", Body: noop()}}},
			},
			wantErr: domain.ErrDuplicateDefinition,
		},
		{
			name: "invalid definition",
			defs: []domain.JobDefinition{
				{JobType: "RecordingPipeline", EventType: "recording.start"},
			},
			wantErr: domain.ErrInvalidDefinition,
		},
		{
			name: "malformed instance key",
			defs: []domain.JobDefinition{
				{JobType: "RecordingPipeline", EventType: "recording.start", InstanceKey: "meeting[", Steps: []domain.StepSpec{{Name: "validate", Body: noop()}}},
			},
			wantErr: domain.ErrInvalidDefinition,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry := NewRegistry()
			var err error
			for _, def := range tt.defs {
				if err = registry.Register(def); err != nil {
					break
				}
			}

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRegistry_Lookup(t *testing.T) {
	registry := NewRegistry()
	registry.MustRegister(domain.JobDefinition{JobType: "RecordingPipeline", EventType: "recording.start", Steps: []domain.StepSpec{{Name: "validate", Body: noop()}}})
	registry.MustRegister(domain.JobDefinition{JobType: "Cleanup", EventType: "meeting.ended", Steps: []domain.StepSpec{{Name: "purge", Body: noop()}}})

	def, err := registry.ForEvent("recording.start")
	require.NoError(t, err)
	assert.Equal(t, "RecordingPipeline", def.JobType)

	_, err = registry.ForEvent("recording.stop")
	assert.ErrorIs(t, err, domain.ErrUnregisteredEventType)

	def, ok := registry.ForJobType("Cleanup")
	require.True(t, ok)
	assert.Equal(t, "meeting.ended", def.EventType)

	_, ok = registry.ForJobType("Missing")
	assert.False(t, ok)

	assert.Equal(t, []string{"meeting.ended", "recording.start"}, registry.EventTypes())
}

func TestRegistry_MustRegisterPanics(t *testing.T) {
	registry := NewRegistry()
	assert.Panics(t, func() {
		registry.MustRegister(domain.JobDefinition{JobType: "Broken"})
	})
}

func TestRegistry_StoresCopyOfSteps(t *testing.T) {
	registry := NewRegistry()
	steps := []domain.StepSpec{{Name: "validate", Body: noop()}}
	registry.MustRegister(domain.JobDefinition{JobType: "RecordingPipeline", EventType: "recording.start", Steps: steps})

	steps[0].Name = "mutated"

	def, ok := registry.ForJobType("RecordingPipeline")
	require.True(t, ok)
	assert.Equal(t, []string{"validate"}, def.StepNames())
}
