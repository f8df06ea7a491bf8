// Package recording defines the RecordingPipeline job: validate a recording
// request, have the recorder capture and upload the meeting, then announce
// the stored recording.
package recording

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cuongbtq/meeting-jobs/internal/engine/domain"
)

// Options wires the collaborators of the pipeline
type Options struct {
	Egress   Egress
	Notifier Notifier
	Logger   *slog.Logger
	// Retry overrides the retry policy of individual steps by step name.
	Retry map[string]domain.RetryPolicy
	// ObjectPrefix is prepended to recording object keys. Defaults to "recordings".
	ObjectPrefix string
	// CompletedSubject is reported in the notify step result.
	CompletedSubject string
}

type pipeline struct {
	egress           Egress
	notifier         Notifier
	logger           *slog.Logger
	objectPrefix     string
	completedSubject string
}

// Definition builds the RecordingPipeline job definition
func Definition(opts Options) domain.JobDefinition {
	p := &pipeline{
		egress:           opts.Egress,
		notifier:         opts.Notifier,
		logger:           opts.Logger,
		objectPrefix:     strings.Trim(opts.ObjectPrefix, "/"),
		completedSubject: opts.CompletedSubject,
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.objectPrefix == "" {
		p.objectPrefix = "recordings"
	}
	if p.completedSubject == "" {
		p.completedSubject = DefaultCompletedSubject
	}

	policy := func(step string) domain.RetryPolicy {
		if override, ok := opts.Retry[step]; ok {
			return override
		}
		return domain.DefaultRetryPolicy()
	}

	return domain.JobDefinition{
		JobType:     JobType,
		EventType:   EventType,
		InstanceKey: InstanceKey,
		Validate:    ValidatePayload,
		Steps: []domain.StepSpec{
			{Name: StepValidate, Retry: policy(StepValidate), Body: domain.StepFunc(p.validate)},
			{Name: StepUpload, Retry: policy(StepUpload), Body: domain.StepFunc(p.upload)},
			{Name: StepNotify, Retry: policy(StepNotify), Body: domain.StepFunc(p.notify)},
		},
	}
}

// ValidatePayload rejects recording.start payloads that can never succeed
func ValidatePayload(payload json.RawMessage) error {
	var req StartRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("malformed recording request: %v", err)
	}
	return checkRequest(req)
}

func checkRequest(req StartRequest) error {
	if strings.TrimSpace(req.MeetingID) == "" {
		return fmt.Errorf("meetingId is required")
	}
	if strings.ContainsAny(req.MeetingID, "/\\") {
		return fmt.Errorf("meetingId must not contain path separators")
	}
	if req.Layout != "" && !validLayouts[req.Layout] {
		return fmt.Errorf("unsupported layout %q", req.Layout)
	}
	return nil
}

func (p *pipeline) validate(ctx context.Context, jc *domain.JobContext) (any, error) {
	var req StartRequest
	if err := jc.DecodeTrigger(&req); err != nil {
		return nil, domain.Permanent(err)
	}
	if err := checkRequest(req); err != nil {
		return nil, domain.Permanent(err)
	}

	meetingID := strings.TrimSpace(req.MeetingID)
	roomName := req.RoomName
	if roomName == "" {
		roomName = "meeting-" + meetingID
	}
	layout := req.Layout
	if layout == "" {
		layout = LayoutSpeaker
	}

	return ValidatedRequest{
		MeetingID:   meetingID,
		RoomName:    roomName,
		RequestedBy: req.RequestedBy,
		Layout:      layout,
		ObjectKey:   fmt.Sprintf("%s/%s/%s.mp4", p.objectPrefix, meetingID, jc.InstanceID),
	}, nil
}

func (p *pipeline) upload(ctx context.Context, jc *domain.JobContext) (any, error) {
	var req ValidatedRequest
	if err := jc.Result(StepValidate, &req); err != nil {
		return nil, domain.Permanent(err)
	}

	p.logger.Info("Requesting recording egress",
		slog.String("instance_id", jc.InstanceID),
		slog.String("meeting_id", req.MeetingID),
		slog.String("room", req.RoomName),
		slog.String("object_key", req.ObjectKey),
	)

	result, err := p.egress.Start(ctx, EgressRequest{
		IdempotencyKey: jc.InstanceID,
		MeetingID:      req.MeetingID,
		RoomName:       req.RoomName,
		Layout:         req.Layout,
		ObjectKey:      req.ObjectKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record meeting %s: %w", req.MeetingID, err)
	}

	p.logger.Info("Recording uploaded",
		slog.String("instance_id", jc.InstanceID),
		slog.String("egress_id", result.EgressID),
		slog.String("location", result.Location),
		slog.Int64("size_bytes", result.SizeBytes),
	)

	return result, nil
}

func (p *pipeline) notify(ctx context.Context, jc *domain.JobContext) (any, error) {
	var req ValidatedRequest
	if err := jc.Result(StepValidate, &req); err != nil {
		return nil, domain.Permanent(err)
	}
	var uploaded UploadResult
	if err := jc.Result(StepUpload, &uploaded); err != nil {
		return nil, domain.Permanent(err)
	}

	event := Completed{
		InstanceID:  jc.InstanceID,
		MeetingID:   req.MeetingID,
		RoomName:    req.RoomName,
		RequestedBy: req.RequestedBy,
		EgressID:    uploaded.EgressID,
		ObjectKey:   uploaded.ObjectKey,
		Location:    uploaded.Location,
		SizeBytes:   uploaded.SizeBytes,
	}
	if err := p.notifier.RecordingCompleted(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to announce recording: %w", err)
	}

	return NotifyResult{Subject: p.completedSubject, MeetingID: req.MeetingID}, nil
}
