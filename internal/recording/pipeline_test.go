package recording

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/cuongbtq/meeting-jobs/internal/engine"
	"github.com/cuongbtq/meeting-jobs/internal/engine/domain"
	"github.com/cuongbtq/meeting-jobs/internal/engine/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEgress struct {
	mu       sync.Mutex
	failures int
	err      error
	requests []EgressRequest
}

func (f *fakeEgress) Start(ctx context.Context, req EgressRequest) (*UploadResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if len(f.requests) <= f.failures {
		if f.err != nil {
			return nil, f.err
		}
		return nil, fmt.Errorf("egress timed out (call %d)", len(f.requests))
	}
	return &UploadResult{
		EgressID:  "EG_" + req.MeetingID,
		ObjectKey: req.ObjectKey,
		Location:  "s3://recordings-bucket/" + req.ObjectKey,
		SizeBytes: 1 << 20,
	}, nil
}

func (f *fakeEgress) Requests() []EgressRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]EgressRequest(nil), f.requests...)
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []Completed
	err    error
}

func (f *fakeNotifier) RecordingCompleted(ctx context.Context, event Completed) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

func (f *fakeNotifier) Events() []Completed {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Completed(nil), f.events...)
}

func fastRetry(maxRetries int) domain.RetryPolicy {
	return domain.RetryPolicy{MaxRetries: maxRetries, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func newDispatcher(t *testing.T, egress Egress, notifier Notifier, uploadRetries int) (*engine.Dispatcher, *storage.MemoryLedger) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := engine.NewRegistry()
	require.NoError(t, registry.Register(Definition(Options{
		Egress:   egress,
		Notifier: notifier,
		Logger:   logger,
		Retry: map[string]domain.RetryPolicy{
			StepValidate: fastRetry(0),
			StepUpload:   fastRetry(uploadRetries),
			StepNotify:   fastRetry(3),
		},
	})))

	ledger := storage.NewMemoryLedger(time.Minute)
	executor := engine.NewExecutor(ledger, logger, engine.ExecutorOptions{PollInterval: time.Millisecond})
	return engine.NewDispatcher(registry, ledger, engine.NewRunner(executor, logger), logger), ledger
}

func TestRecordingPipeline_UploadSucceedsOnThirdAttempt(t *testing.T) {
	ctx := context.Background()
	egress := &fakeEgress{failures: 2}
	notifier := &fakeNotifier{}
	dispatcher, ledger := newDispatcher(t, egress, notifier, 3)

	result, err := dispatcher.Dispatch(ctx, EventType, json.RawMessage(`{"meetingId":"m1"}`))
	require.NoError(t, err)
	require.True(t, result.Succeeded(), "job failed: %v", result.Err)

	assert.ElementsMatch(t, []string{StepValidate, StepUpload, StepNotify}, result.Context.Steps())

	var validated ValidatedRequest
	require.NoError(t, result.Context.Result(StepValidate, &validated))
	assert.Equal(t, "recordings/m1/"+result.InstanceID+".mp4", validated.ObjectKey)
	assert.Equal(t, "meeting-m1", validated.RoomName)
	assert.Equal(t, LayoutSpeaker, validated.Layout)

	var uploaded UploadResult
	require.NoError(t, result.Context.Result(StepUpload, &uploaded))
	assert.Equal(t, "EG_m1", uploaded.EgressID)

	var notified NotifyResult
	require.NoError(t, result.Context.Result(StepNotify, &notified))
	assert.Equal(t, DefaultCompletedSubject, notified.Subject)

	entry, err := ledger.Get(ctx, result.InstanceID, StepUpload)
	require.NoError(t, err)
	assert.Equal(t, 3, entry.Attempts)

	requests := egress.Requests()
	require.Len(t, requests, 3)
	for _, req := range requests {
		assert.Equal(t, result.InstanceID, req.IdempotencyKey)
	}

	events := notifier.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "m1", events[0].MeetingID)
	assert.Equal(t, uploaded.Location, events[0].Location)
}

func TestRecordingPipeline_ExhaustedUploadNeverNotifies(t *testing.T) {
	ctx := context.Background()
	egress := &fakeEgress{failures: 2}
	notifier := &fakeNotifier{}
	dispatcher, ledger := newDispatcher(t, egress, notifier, 1)

	result, err := dispatcher.Dispatch(ctx, EventType, json.RawMessage(`{"meetingId":"m1"}`))
	require.NoError(t, err)
	assert.False(t, result.Succeeded())
	assert.Equal(t, StepUpload, result.FailingStep)
	assert.ErrorIs(t, result.Err, domain.ErrStepExhausted)

	entry, err := ledger.Get(ctx, result.InstanceID, StepNotify)
	require.NoError(t, err)
	assert.Nil(t, entry)
	assert.Empty(t, notifier.Events())
}

func TestRecordingPipeline_PermanentRecorderErrorStopsRetries(t *testing.T) {
	egress := &fakeEgress{failures: 10, err: domain.Permanent(errors.New("room does not exist"))}
	dispatcher, _ := newDispatcher(t, egress, &fakeNotifier{}, 5)

	result, err := dispatcher.Dispatch(context.Background(), EventType, json.RawMessage(`{"meetingId":"m1"}`))
	require.NoError(t, err)
	assert.Equal(t, StepUpload, result.FailingStep)
	assert.Len(t, egress.Requests(), 1)
}

func TestRecordingPipeline_NotifyRetriedWithoutReUpload(t *testing.T) {
	ctx := context.Background()
	egress := &fakeEgress{}
	notifier := &fakeNotifier{err: errors.New("nats: connection closed")}
	dispatcher, _ := newDispatcher(t, egress, notifier, 3)
	payload := json.RawMessage(`{"meetingId":"m2","roomName":"weekly","layout":"grid"}`)

	first, err := dispatcher.Dispatch(ctx, EventType, payload)
	require.NoError(t, err)
	require.Equal(t, StepNotify, first.FailingStep)

	notifier.mu.Lock()
	notifier.err = nil
	notifier.mu.Unlock()

	second, err := dispatcher.Redispatch(ctx, first.InstanceID)
	require.NoError(t, err)
	require.True(t, second.Succeeded())

	assert.Len(t, egress.Requests(), 1)
	events := notifier.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "weekly", events[0].RoomName)
}

func TestRecordingPipeline_RejectsBadRequests(t *testing.T) {
	egress := &fakeEgress{}
	dispatcher, _ := newDispatcher(t, egress, &fakeNotifier{}, 3)

	for _, payload := range []string{
		`{"roomName":"weekly"}`,
		`{"meetingId":"  "}`,
		`{"meetingId":"a/b"}`,
		`{"meetingId":"m1","layout":"mosaic"}`,
	} {
		_, err := dispatcher.Dispatch(context.Background(), EventType, json.RawMessage(payload))
		assert.ErrorIs(t, err, domain.ErrValidation, payload)
	}
	assert.Empty(t, egress.Requests())
}

func TestValidatePayload(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantErr string
	}{
		{name: "minimal", payload: `{"meetingId":"m1"}`},
		{name: "full", payload: `{"meetingId":"m1","roomName":"r","requestedBy":"u1","layout":"single-speaker"}`},
		{name: "missing meeting", payload: `{}`, wantErr: "meetingId is required"},
		{name: "path in meeting", payload: `{"meetingId":"../x"}`, wantErr: "path separators"},
		{name: "bad layout", payload: `{"meetingId":"m1","layout":"mosaic"}`, wantErr: "unsupported layout"},
		{name: "wrong type", payload: `{"meetingId":42}`, wantErr: "malformed recording request"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePayload(json.RawMessage(tt.payload))
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDefinition_RetryOverrides(t *testing.T) {
	def := Definition(Options{Retry: map[string]domain.RetryPolicy{StepUpload: fastRetry(7)}})

	require.NoError(t, def.Check())
	assert.Equal(t, []string{StepValidate, StepUpload, StepNotify}, def.StepNames())
	assert.Equal(t, domain.DefaultRetryPolicy(), def.Steps[0].Retry)
	assert.Equal(t, 7, def.Steps[1].Retry.MaxRetries)
	assert.Equal(t, domain.DefaultRetryPolicy(), def.Steps[2].Retry)
}
