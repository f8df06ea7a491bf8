package worker

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/meeting-jobs/internal/engine/domain"
	amqp "github.com/rabbitmq/amqp091-go"
)

// processDelivery runs the job of one delivery and decides how to settle it
func (w *Worker) processDelivery(delivery amqp.Delivery) Disposition {
	msg, err := decodeEvent(delivery.Body)
	if err != nil {
		w.logger.Error("Failed to parse message",
			slog.String("error", err.Error()),
			slog.String("message_id", delivery.MessageId),
		)
		return classify(nil, err)
	}

	logger := w.logger.With(
		slog.String("event_type", msg.EventType),
		slog.String("message_id", delivery.MessageId),
		slog.Bool("redelivered", delivery.Redelivered),
	)

	result, err := w.processJob(msg)
	d := classify(result, err)

	if err != nil {
		logger.Error("Event not dispatched",
			slog.String("error", err.Error()),
			slog.String("disposition", d.String()),
		)
		return d
	}

	if d == Requeue {
		logger.Warn("Job interrupted, requeueing",
			slog.String("instance_id", result.InstanceID),
			slog.String("failing_step", result.FailingStep),
		)
		return d
	}

	w.publishResult(logger, msg.EventType, result)
	return d
}

// processJob dispatches the event with the job timeout applied
func (w *Worker) processJob(msg *domain.TriggerEvent) (*domain.JobResult, error) {
	ctx := w.jobCtx
	if w.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.jobTimeout)
		defer cancel()
	}

	return w.dispatcher.Dispatch(ctx, msg.EventType, msg.Payload)
}

func (w *Worker) publishResult(logger *slog.Logger, eventType string, result *domain.JobResult) {
	attrs := []any{
		slog.String("instance_id", result.InstanceID),
		slog.String("job_type", result.JobType),
		slog.String("status", result.Status),
	}
	if result.Succeeded() {
		logger.Info("Job completed successfully", attrs...)
	} else {
		logger.Warn("Job failed", append(attrs, slog.String("failing_step", result.FailingStep))...)
	}

	if w.results == nil || w.resultSubject == "" {
		return
	}

	if err := w.results.PublishJSON(w.resultSubject, newResultMessage(eventType, w.workerID, result)); err != nil {
		logger.Error("Failed to publish job result",
			slog.String("instance_id", result.InstanceID),
			slog.String("error", err.Error()),
		)
	}
}
