package recording

import (
	"context"
	"errors"
	"fmt"

	"github.com/cuongbtq/meeting-jobs/internal/engine/domain"
)

// Egress starts a recording and blocks until it is uploaded
type Egress interface {
	Start(ctx context.Context, req EgressRequest) (*UploadResult, error)
}

// Notifier announces finished recordings
type Notifier interface {
	RecordingCompleted(ctx context.Context, event Completed) error
}

// Requester is the request/reply half of a message bus client
type Requester interface {
	RequestJSON(ctx context.Context, subject string, req, resp any) error
}

// Publisher is the fire-and-forget half of a message bus client
type Publisher interface {
	PublishJSON(subject string, v any) error
}

// BusEgress reaches the recorder service over NATS request/reply
type BusEgress struct {
	bus     Requester
	subject string
}

// NewBusEgress creates a new BusEgress instance
func NewBusEgress(bus Requester, subject string) *BusEgress {
	if subject == "" {
		subject = DefaultEgressSubject
	}
	return &BusEgress{bus: bus, subject: subject}
}

// Start sends the egress request and maps the reply to an upload result.
// Replies the recorder marks as not retryable become permanent errors.
func (e *BusEgress) Start(ctx context.Context, req EgressRequest) (*UploadResult, error) {
	var reply EgressReply
	if err := e.bus.RequestJSON(ctx, e.subject, req, &reply); err != nil {
		return nil, err
	}

	if reply.Error != "" {
		err := fmt.Errorf("recorder rejected egress: %s", reply.Error)
		if !reply.Retryable {
			return nil, domain.Permanent(err)
		}
		return nil, err
	}

	if reply.EgressID == "" || reply.Location == "" {
		return nil, errors.New("recorder reply is missing egress id or location")
	}

	return &UploadResult{
		EgressID:  reply.EgressID,
		ObjectKey: req.ObjectKey,
		Location:  reply.Location,
		SizeBytes: reply.SizeBytes,
	}, nil
}

// BusNotifier publishes completion events on NATS
type BusNotifier struct {
	bus     Publisher
	subject string
}

// NewBusNotifier creates a new BusNotifier instance
func NewBusNotifier(bus Publisher, subject string) *BusNotifier {
	if subject == "" {
		subject = DefaultCompletedSubject
	}
	return &BusNotifier{bus: bus, subject: subject}
}

// Subject returns the subject completion events are published on
func (n *BusNotifier) Subject() string {
	return n.subject
}

// RecordingCompleted publishes the event
func (n *BusNotifier) RecordingCompleted(ctx context.Context, event Completed) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return n.bus.PublishJSON(n.subject, event)
}
