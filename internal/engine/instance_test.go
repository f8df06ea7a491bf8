package engine

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstanceID(t *testing.T) {
	id := InstanceID("RecordingPipeline", "recording.start", "m1")

	parsed, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(5), parsed.Version())

	assert.Equal(t, id, InstanceID("RecordingPipeline", "recording.start", "m1"))
	assert.NotEqual(t, id, InstanceID("RecordingPipeline", "recording.start", "m2"))
	assert.NotEqual(t, id, InstanceID("RecordingPipeline", "recording.restart", "m1"))
	assert.NotEqual(t, id, InstanceID("TranscriptPipeline", "recording.start", "m1"))
	// separators keep the parts from running together
	assert.NotEqual(t, InstanceID("a", "bc", "d"), InstanceID("ab", "c", "d"))
}

func TestCanonicalPayload(t *testing.T) {
	_, a, err := canonicalPayload(json.RawMessage(`{"b": 1, "a": {"y": 2.50, "x": null}}`))
	require.NoError(t, err)
	assert.Equal(t, `{"a":{"x":null,"y":2.50},"b":1}`, string(a))

	_, b, err := canonicalPayload(json.RawMessage(`{"a":{"x":null,"y":2.50},"b":1}`))
	require.NoError(t, err)
	assert.Equal(t, fingerprint(a), fingerprint(b))

	_, c, err := canonicalPayload(json.RawMessage(`{"a":{"x":null,"y":2.5},"b":1}`))
	require.NoError(t, err)
	assert.NotEqual(t, fingerprint(a), fingerprint(c))
}

func TestNaturalKey(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		payload string
		want    string
		wantErr string
	}{
		{name: "top level string", expr: "meetingId", payload: `{"meetingId":"m1"}`, want: "m1"},
		{name: "nested field", expr: "meeting.id", payload: `{"meeting":{"id":"m7"}}`, want: "m7"},
		{name: "number", expr: "seq", payload: `{"seq":12345678901234567890}`, want: "12345678901234567890"},
		{name: "multi select", expr: "[tenant, meetingId]", payload: `{"tenant":"t1","meetingId":"m1"}`, want: `["t1","m1"]`},
		{name: "whole payload", expr: "", payload: `{"b":2,"a":1}`, want: `{"a":1,"b":2}`},
		{name: "missing", expr: "meetingId", payload: `{"room":"x"}`, wantErr: "is missing"},
		{name: "empty", expr: "meetingId", payload: `{"meetingId":""}`, wantErr: "is empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, canonical, err := canonicalPayload(json.RawMessage(tt.payload))
			require.NoError(t, err)

			got, err := naturalKey(tt.expr, doc, canonical)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
