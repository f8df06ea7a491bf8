package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobContext(t *testing.T) {
	jc := NewJobContext("inst-1", "RecordingPipeline", json.RawMessage(`{"meetingId":"m1"}`))

	var trigger struct {
		MeetingID string `json:"meetingId"`
	}
	require.NoError(t, jc.DecodeTrigger(&trigger))
	assert.Equal(t, "m1", trigger.MeetingID)

	assert.False(t, jc.Has("validate"))
	jc.Set("validate", json.RawMessage(`"ok"`))
	jc.Set("upload", json.RawMessage(`{"key":"a"}`))
	jc.Set("validate", json.RawMessage(`"ok"`))

	assert.True(t, jc.Has("validate"))
	assert.Equal(t, []string{"validate", "upload"}, jc.Steps())

	var upload map[string]string
	require.NoError(t, jc.Result("upload", &upload))
	assert.Equal(t, "a", upload["key"])

	err := jc.Result("notify", &upload)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notify")

	encoded, err := json.Marshal(jc)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"instance_id": "inst-1",
		"job_type": "RecordingPipeline",
		"trigger": {"meetingId":"m1"},
		"results": {"validate":"ok","upload":{"key":"a"}}
	}`, string(encoded))
}
