package storage

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/cuongbtq/meeting-jobs/internal/engine/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLedger(t *testing.T) {
	runLedgerContract(t, func(t *testing.T, clock *testClock, lease time.Duration) domain.Ledger {
		ledger := NewMemoryLedger(lease)
		ledger.now = clock.Now
		return ledger
	})
}

func TestMemoryLedger_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger(time.Minute)

	_, err := ledger.TryBeginAttempt(ctx, "inst-1", "upload")
	require.NoError(t, err)
	require.NoError(t, ledger.CommitSuccess(ctx, "inst-1", "upload", json.RawMessage(`{"key":"k"}`)))

	entry, err := ledger.Get(ctx, "inst-1", "upload")
	require.NoError(t, err)
	entry.Result[2] = 'X'
	entry.Status = domain.StepStatusFailed

	again, err := ledger.Get(ctx, "inst-1", "upload")
	require.NoError(t, err)
	assert.Equal(t, domain.StepStatusSucceeded, again.Status)
	assert.JSONEq(t, `{"key":"k"}`, string(again.Result))
}

func TestNewLedger(t *testing.T) {
	ledger, err := NewLedger(Options{Backend: BackendMemory})
	require.NoError(t, err)
	assert.IsType(t, &MemoryLedger{}, ledger)

	_, err = NewLedger(Options{Backend: BackendPostgres})
	assert.Error(t, err)

	_, err = NewLedger(Options{Backend: BackendRedis})
	assert.Error(t, err)

	_, err = NewLedger(Options{Backend: "etcd"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown ledger backend")
}
