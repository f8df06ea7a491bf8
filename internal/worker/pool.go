package worker

import (
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// spawnWorkerPool starts one goroutine per unit of concurrency in g
func (w *Worker) spawnWorkerPool(g *errgroup.Group) {
	w.logger.Info("Spawning worker pool",
		slog.Int("concurrency", w.concurrency),
	)

	for i := 0; i < w.concurrency; i++ {
		g.Go(func() error {
			w.workerLoop(i)
			return nil
		})
	}
}

// workerLoop processes deliveries until the jobs channel is closed
func (w *Worker) workerLoop(workerNum int) {
	workerName := fmt.Sprintf("%s-%d", w.workerID, workerNum)
	logger := w.logger.With(slog.String("worker_name", workerName))

	logger.Debug("Worker goroutine started")

	for delivery := range w.jobsChan {
		d := w.processDelivery(delivery)
		settle(logger, delivery, d)

		logger.Info("Message settled",
			slog.Uint64("delivery_tag", delivery.DeliveryTag),
			slog.String("disposition", d.String()),
		)
	}

	logger.Debug("Worker goroutine stopping - jobsChan closed")
}
