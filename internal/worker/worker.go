package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/cuongbtq/meeting-jobs/internal/engine/domain"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/errgroup"
)

// Dispatcher runs the job bound to a trigger event
type Dispatcher interface {
	Dispatch(ctx context.Context, eventType string, payload json.RawMessage) (*domain.JobResult, error)
}

// DeliverySource yields trigger event deliveries with manual acks
type DeliverySource interface {
	Consume(consumerTag string) (<-chan amqp.Delivery, error)
	Cancel(consumerTag string) error
}

// ResultPublisher fans job results out to interested services
type ResultPublisher interface {
	PublishJSON(subject string, v any) error
}

// Config holds worker configuration
type Config struct {
	Logger     *slog.Logger
	Dispatcher Dispatcher
	Source     DeliverySource
	// Results is optional; without it results are only logged.
	Results       ResultPublisher
	ResultSubject string
	Concurrency   int
	JobTimeout    time.Duration
	// WorkerID defaults to the host name plus a random suffix.
	WorkerID string
}

// Worker consumes trigger events and runs their jobs on a goroutine pool
type Worker struct {
	logger        *slog.Logger
	dispatcher    Dispatcher
	source        DeliverySource
	results       ResultPublisher
	resultSubject string
	concurrency   int
	jobTimeout    time.Duration
	workerID      string

	jobsChan chan amqp.Delivery

	// jobCtx outlives the consume context so in-flight jobs can finish
	// during a graceful shutdown; abort cancels it.
	jobCtx    context.Context
	abort     context.CancelFunc
	abortOnce sync.Once
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	workerID := cfg.WorkerID
	if workerID == "" {
		workerID = defaultWorkerID()
	}

	concurrency := max(cfg.Concurrency, 1)

	jobCtx, abort := context.WithCancel(context.Background())

	return &Worker{
		logger:        cfg.Logger.With(slog.String("worker_id", workerID)),
		dispatcher:    cfg.Dispatcher,
		source:        cfg.Source,
		results:       cfg.Results,
		resultSubject: cfg.ResultSubject,
		concurrency:   concurrency,
		jobTimeout:    cfg.JobTimeout,
		workerID:      workerID,
		jobsChan:      make(chan amqp.Delivery),
		jobCtx:        jobCtx,
		abort:         abort,
	}
}

func defaultWorkerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
}

// ID returns the worker id used as consumer tag
func (w *Worker) ID() string {
	return w.workerID
}

// Run consumes deliveries until ctx is canceled, then waits for in-flight
// jobs. It returns early with an error when the delivery stream breaks.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.Int("concurrency", w.concurrency),
		slog.Duration("job_timeout", w.jobTimeout),
	)

	deliveries, err := w.setupConsumer()
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(w.jobsChan)
		return w.startMessageDispatcher(gctx, deliveries)
	})

	w.spawnWorkerPool(g)

	err = g.Wait()
	w.logger.Info("Worker stopped")
	return err
}

// Abort cancels in-flight jobs; their deliveries are requeued
func (w *Worker) Abort() {
	w.abortOnce.Do(func() {
		w.logger.Warn("Aborting in-flight jobs")
		w.abort()
	})
}
