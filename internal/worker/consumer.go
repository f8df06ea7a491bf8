package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// setupConsumer starts consuming with the worker id as consumer tag
func (w *Worker) setupConsumer() (<-chan amqp.Delivery, error) {
	deliveries, err := w.source.Consume(w.workerID)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	w.logger.Info("RabbitMQ consumer started",
		slog.String("consumer_tag", w.workerID),
	)

	return deliveries, nil
}

// startMessageDispatcher hands deliveries to the worker pool until ctx is
// canceled or the delivery channel closes
func (w *Worker) startMessageDispatcher(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	w.logger.Info("Message dispatcher started")

	for {
		select {
		case <-ctx.Done():
			w.stopConsuming()
			w.logger.Info("Message dispatcher stopped - context canceled")
			return nil

		case delivery, ok := <-deliveries:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				w.logger.Error("RabbitMQ delivery channel closed")
				return errors.New("rabbitmq delivery channel closed")
			}

			select {
			case w.jobsChan <- delivery:
				w.logger.Debug("Delivery dispatched to worker pool",
					slog.Uint64("delivery_tag", delivery.DeliveryTag),
				)
			case <-ctx.Done():
				w.logger.Info("Message dispatcher stopped while dispatching delivery")
				settle(w.logger, delivery, Requeue)
				w.stopConsuming()
				return nil
			}
		}
	}
}

// stopConsuming cancels the consumer; unacked prefetched deliveries return
// to the queue when the channel closes
func (w *Worker) stopConsuming() {
	if err := w.source.Cancel(w.workerID); err != nil {
		w.logger.Warn("Failed to cancel RabbitMQ consumer",
			slog.String("error", err.Error()),
		)
	}
}

// settle acks or nacks a delivery according to d
func settle(logger *slog.Logger, delivery amqp.Delivery, d Disposition) {
	var err error
	switch d {
	case Ack:
		err = delivery.Ack(false)
	case Reject:
		err = delivery.Nack(false, false)
	case Requeue:
		err = delivery.Nack(false, true)
	}

	if err != nil {
		logger.Error("Failed to settle message",
			slog.Uint64("delivery_tag", delivery.DeliveryTag),
			slog.String("disposition", d.String()),
			slog.String("error", err.Error()),
		)
	}
}
