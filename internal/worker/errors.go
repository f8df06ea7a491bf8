package worker

import (
	"errors"

	"github.com/cuongbtq/meeting-jobs/internal/engine/domain"
)

// ErrMalformedMessage is returned when a delivery body is not a trigger event
var ErrMalformedMessage = errors.New("malformed event message")

// Disposition is what happens to a delivery once it has been handled
type Disposition int

const (
	// Ack removes the delivery from the queue
	Ack Disposition = iota
	// Reject drops the delivery without requeueing it (dead-lettered when configured)
	Reject
	// Requeue returns the delivery to the queue for another worker
	Requeue
)

func (d Disposition) String() string {
	switch d {
	case Ack:
		return "ack"
	case Reject:
		return "reject"
	case Requeue:
		return "requeue"
	default:
		return "unknown"
	}
}

// classify maps the outcome of a dispatch to a delivery disposition.
//
// Events the engine refuses are rejected since redelivery cannot change the
// answer. Jobs that ran to a recorded outcome are acked; their failures live in
// the ledger and are re-run through redispatch. Anything interrupted before an
// outcome was recorded is requeued so the instance resumes elsewhere.
func classify(result *domain.JobResult, err error) Disposition {
	if err != nil {
		switch {
		case errors.Is(err, ErrMalformedMessage),
			errors.Is(err, domain.ErrValidation),
			errors.Is(err, domain.ErrUnregisteredEventType),
			errors.Is(err, domain.ErrLedgerConflict):
			return Reject
		default:
			return Requeue
		}
	}

	if result == nil || result.Err == nil {
		return Ack
	}

	switch {
	case errors.Is(result.Err, domain.ErrStepExhausted):
		return Ack
	case errors.Is(result.Err, domain.ErrLedgerConflict):
		return Reject
	default:
		return Requeue
	}
}
