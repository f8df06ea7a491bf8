package storage

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/cuongbtq/meeting-jobs/internal/engine/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testClock drives the lease arithmetic of a ledger under test
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type ledgerFactory func(t *testing.T, clock *testClock, lease time.Duration) domain.Ledger

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// runLedgerContract checks the behavior every ledger backend shares. Ids are
// random so backends backed by a shared server need no cleanup between runs.
func runLedgerContract(t *testing.T, newLedger ledgerFactory) {
	ctx := context.Background()

	t.Run("attempt lifecycle", func(t *testing.T) {
		ledger := newLedger(t, newTestClock(), time.Minute)
		inst := uuid.NewString()

		entry, err := ledger.Get(ctx, inst, "upload")
		require.NoError(t, err)
		assert.Nil(t, entry)

		res, err := ledger.TryBeginAttempt(ctx, inst, "upload")
		require.NoError(t, err)
		assert.Equal(t, domain.BeginGranted, res.Outcome)
		assert.Equal(t, 1, res.Attempt)

		entry, err = ledger.Get(ctx, inst, "upload")
		require.NoError(t, err)
		require.NotNil(t, entry)
		assert.Equal(t, domain.StepStatusPending, entry.Status)
		assert.Nil(t, entry.Result)
		assert.NotNil(t, entry.LeaseExpiresAt)

		res, err = ledger.TryBeginAttempt(ctx, inst, "upload")
		require.NoError(t, err)
		assert.Equal(t, domain.BeginInProgress, res.Outcome)

		require.NoError(t, ledger.CommitFailure(ctx, inst, "upload", 1, errors.New("timeout")))

		entry, err = ledger.Get(ctx, inst, "upload")
		require.NoError(t, err)
		assert.Equal(t, domain.StepStatusFailed, entry.Status)
		assert.Equal(t, "timeout", entry.LastError)
		assert.Nil(t, entry.Result)
		assert.Nil(t, entry.LeaseExpiresAt)

		res, err = ledger.TryBeginAttempt(ctx, inst, "upload")
		require.NoError(t, err)
		assert.Equal(t, domain.BeginGranted, res.Outcome)
		assert.Equal(t, 2, res.Attempt)

		require.NoError(t, ledger.CommitSuccess(ctx, inst, "upload", json.RawMessage(`{"key":"k"}`)))
		require.NoError(t, ledger.CommitSuccess(ctx, inst, "upload", json.RawMessage(`{"key":"k"}`)))

		err = ledger.CommitSuccess(ctx, inst, "upload", json.RawMessage(`{"key":"other"}`))
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrLedgerConflict)

		res, err = ledger.TryBeginAttempt(ctx, inst, "upload")
		require.NoError(t, err)
		assert.Equal(t, domain.BeginAlreadySucceeded, res.Outcome)
		assert.JSONEq(t, `{"key":"k"}`, string(res.Result))

		entry, err = ledger.Get(ctx, inst, "upload")
		require.NoError(t, err)
		assert.Equal(t, domain.StepStatusSucceeded, entry.Status)
		assert.Equal(t, 2, entry.Attempts)
		assert.Empty(t, entry.LastError)
		assert.JSONEq(t, `{"key":"k"}`, string(entry.Result))
	})

	t.Run("commit without attempt", func(t *testing.T) {
		ledger := newLedger(t, newTestClock(), time.Minute)
		inst := uuid.NewString()

		err := ledger.CommitSuccess(ctx, inst, "notify", json.RawMessage(`"ok"`))
		assert.ErrorIs(t, err, domain.ErrEntryNotFound)

		err = ledger.CommitFailure(ctx, inst, "notify", 1, errors.New("x"))
		assert.ErrorIs(t, err, domain.ErrEntryNotFound)
	})

	t.Run("result bytes round trip", func(t *testing.T) {
		ledger := newLedger(t, newTestClock(), time.Minute)
		inst := uuid.NewString()
		result := json.RawMessage("{ \"location\": \"s3://bucket/a?b=1&c=<d>\",\n  \"sizeBytes\": 0 }")

		_, err := ledger.TryBeginAttempt(ctx, inst, "upload")
		require.NoError(t, err)
		require.NoError(t, ledger.CommitSuccess(ctx, inst, "upload", result))

		entry, err := ledger.Get(ctx, inst, "upload")
		require.NoError(t, err)
		assert.Equal(t, `{"location":"s3://bucket/a?b=1&c=<d>","sizeBytes":0}`, string(entry.Result))

		res, err := ledger.TryBeginAttempt(ctx, inst, "upload")
		require.NoError(t, err)
		assert.Equal(t, string(entry.Result), string(res.Result))

		assert.NoError(t, ledger.CommitSuccess(ctx, inst, "upload", result))
		assert.NoError(t, ledger.CommitSuccess(ctx, inst, "upload", entry.Result))
	})

	t.Run("expired lease is regranted", func(t *testing.T) {
		clock := newTestClock()
		ledger := newLedger(t, clock, time.Minute)
		inst := uuid.NewString()

		res, err := ledger.TryBeginAttempt(ctx, inst, "upload")
		require.NoError(t, err)
		require.Equal(t, domain.BeginGranted, res.Outcome)

		clock.Advance(2 * time.Minute)

		res, err = ledger.TryBeginAttempt(ctx, inst, "upload")
		require.NoError(t, err)
		assert.Equal(t, domain.BeginGranted, res.Outcome)
		assert.Equal(t, 2, res.Attempt)

		// a late failure from the abandoned attempt leaves the live one alone
		require.NoError(t, ledger.CommitFailure(ctx, inst, "upload", 1, errors.New("late")))
		entry, err := ledger.Get(ctx, inst, "upload")
		require.NoError(t, err)
		assert.Equal(t, domain.StepStatusPending, entry.Status)
		assert.Equal(t, 2, entry.Attempts)
	})

	t.Run("extended lease keeps attempt live", func(t *testing.T) {
		clock := newTestClock()
		ledger := newLedger(t, clock, time.Minute)
		inst := uuid.NewString()

		_, err := ledger.TryBeginAttempt(ctx, inst, "upload")
		require.NoError(t, err)

		clock.Advance(40 * time.Second)
		require.NoError(t, ledger.ExtendLease(ctx, inst, "upload", 1))

		clock.Advance(40 * time.Second)
		res, err := ledger.TryBeginAttempt(ctx, inst, "upload")
		require.NoError(t, err)
		assert.Equal(t, domain.BeginInProgress, res.Outcome)

		assert.ErrorIs(t, ledger.ExtendLease(ctx, inst, "upload", 2), domain.ErrLeaseLost)

		clock.Advance(30 * time.Second)
		res, err = ledger.TryBeginAttempt(ctx, inst, "upload")
		require.NoError(t, err)
		require.Equal(t, domain.BeginGranted, res.Outcome)
		assert.Equal(t, 2, res.Attempt)

		assert.ErrorIs(t, ledger.ExtendLease(ctx, inst, "upload", 1), domain.ErrLeaseLost)
		require.NoError(t, ledger.ExtendLease(ctx, inst, "upload", 2))

		require.NoError(t, ledger.CommitSuccess(ctx, inst, "upload", json.RawMessage(`"done"`)))
		assert.ErrorIs(t, ledger.ExtendLease(ctx, inst, "upload", 2), domain.ErrLeaseLost)
		assert.ErrorIs(t, ledger.ExtendLease(ctx, inst, "notify", 1), domain.ErrLeaseLost)
	})

	t.Run("concurrent begin grants once", func(t *testing.T) {
		ledger := newLedger(t, newTestClock(), time.Minute)
		inst := uuid.NewString()

		const callers = 16
		var wg sync.WaitGroup
		outcomes := make(chan domain.BeginOutcome, callers)

		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				res, err := ledger.TryBeginAttempt(ctx, inst, "upload")
				assert.NoError(t, err)
				outcomes <- res.Outcome
			}()
		}
		wg.Wait()
		close(outcomes)

		granted := 0
		for outcome := range outcomes {
			if outcome == domain.BeginGranted {
				granted++
			} else {
				assert.Equal(t, domain.BeginInProgress, outcome)
			}
		}
		assert.Equal(t, 1, granted)
	})

	t.Run("concurrent renewals all apply", func(t *testing.T) {
		ledger := newLedger(t, newTestClock(), time.Minute)
		inst := uuid.NewString()

		_, err := ledger.TryBeginAttempt(ctx, inst, "upload")
		require.NoError(t, err)

		const callers = 8
		var wg sync.WaitGroup
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, ledger.ExtendLease(ctx, inst, "upload", 1))
			}()
		}
		wg.Wait()

		entry, err := ledger.Get(ctx, inst, "upload")
		require.NoError(t, err)
		assert.Equal(t, domain.StepStatusPending, entry.Status)
		assert.Equal(t, 1, entry.Attempts)
	})

	t.Run("bind instance", func(t *testing.T) {
		ledger := newLedger(t, newTestClock(), time.Minute)
		inst := uuid.NewString()

		first := &domain.Instance{
			ID:          inst,
			JobType:     "RecordingPipeline",
			EventType:   "recording.start",
			Fingerprint: "f1",
			Payload:     json.RawMessage(`{"meetingId":"m1"}`),
		}

		stored, err := ledger.BindInstance(ctx, first)
		require.NoError(t, err)
		assert.False(t, stored.CreatedAt.IsZero())

		again, err := ledger.BindInstance(ctx, first)
		require.NoError(t, err)
		assert.True(t, stored.CreatedAt.Equal(again.CreatedAt))
		assert.Equal(t, "f1", again.Fingerprint)

		_, err = ledger.BindInstance(ctx, &domain.Instance{
			ID:          inst,
			JobType:     "RecordingPipeline",
			EventType:   "recording.start",
			Fingerprint: "f2",
			Payload:     json.RawMessage(`{"meetingId":"m1","layout":"grid"}`),
		})
		assert.ErrorIs(t, err, domain.ErrLedgerConflict)

		loaded, err := ledger.GetInstance(ctx, inst)
		require.NoError(t, err)
		assert.Equal(t, "RecordingPipeline", loaded.JobType)
		assert.Equal(t, "recording.start", loaded.EventType)
		assert.JSONEq(t, `{"meetingId":"m1"}`, string(loaded.Payload))

		_, err = ledger.GetInstance(ctx, uuid.NewString())
		assert.ErrorIs(t, err, domain.ErrInstanceNotFound)
	})

	t.Run("list entries by first attempt", func(t *testing.T) {
		clock := newTestClock()
		ledger := newLedger(t, clock, time.Minute)
		inst := uuid.NewString()

		for _, step := range []string{"validate", "upload"} {
			_, err := ledger.TryBeginAttempt(ctx, inst, step)
			require.NoError(t, err)
			clock.Advance(time.Second)
		}
		_, err := ledger.TryBeginAttempt(ctx, uuid.NewString(), "validate")
		require.NoError(t, err)

		entries, err := ledger.ListEntries(ctx, inst)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, "validate", entries[0].StepName)
		assert.Equal(t, "upload", entries[1].StepName)

		entries, err = ledger.ListEntries(ctx, uuid.NewString())
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("list instances with keyset cursor", func(t *testing.T) {
		ledger := newLedger(t, newTestClock(), time.Minute)
		lister, ok := ledger.(domain.InstanceLister)
		if !ok {
			t.Skip("backend does not list instances")
		}

		jobType := "Pipeline-" + uuid.NewString()
		prefix := uuid.NewString()
		base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

		for i, name := range []string{"a", "b", "c", "d"} {
			instType := jobType
			if name == "c" {
				instType = "Other-" + jobType
			}
			_, err := ledger.BindInstance(ctx, &domain.Instance{
				ID:        prefix + "-" + name,
				JobType:   instType,
				EventType: "recording.start",
				Payload:   json.RawMessage(`{}`),
				CreatedAt: base.Add(time.Duration(i) * time.Minute),
			})
			require.NoError(t, err)
		}

		page, err := lister.ListInstances(ctx, domain.InstanceFilter{JobType: jobType, PageSize: 1})
		require.NoError(t, err)
		require.Len(t, page, 2)
		assert.Equal(t, prefix+"-d", page[0].ID)
		assert.Equal(t, prefix+"-b", page[1].ID)

		page, err = lister.ListInstances(ctx, domain.InstanceFilter{
			JobType:  jobType,
			PageSize: 10,
			Cursor:   &domain.InstanceCursor{CreatedAt: page[0].CreatedAt, InstanceID: page[0].ID},
		})
		require.NoError(t, err)
		require.Len(t, page, 2)
		assert.Equal(t, prefix+"-b", page[0].ID)
		assert.Equal(t, prefix+"-a", page[1].ID)
	})
}
