package storage

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/cuongbtq/meeting-jobs/internal/engine/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openTestRedis connects to TEST_REDIS_ADDR (default localhost:6379).
// Tests are skipped when Redis is not available.
func openTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	db := 0
	if v := os.Getenv("TEST_REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			db = n
		}
	}

	client := redis.NewClient(&redis.Options{Addr: addr, DB: db})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skip("Redis not available:", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// deleteKeys removes every key under prefix
func deleteKeys(t *testing.T, client *redis.Client, prefix string) {
	ctx := context.Background()
	iter := client.Scan(ctx, 0, prefix+":*", 100).Iterator()
	for iter.Next(ctx) {
		client.Del(ctx, iter.Val())
	}
	assert.NoError(t, iter.Err())
}

func TestRedisLedger(t *testing.T) {
	client := openTestRedis(t)

	runLedgerContract(t, func(t *testing.T, clock *testClock, lease time.Duration) domain.Ledger {
		prefix := "ledger-test-" + uuid.NewString()
		t.Cleanup(func() { deleteKeys(t, client, prefix) })

		ledger := NewRedisLedger(client, discardLogger(), prefix, lease)
		ledger.now = clock.Now
		return ledger
	})
}

func TestRedisLedger_StoresResultUnescaped(t *testing.T) {
	client := openTestRedis(t)
	ctx := context.Background()
	prefix := "ledger-test-" + uuid.NewString()
	t.Cleanup(func() { deleteKeys(t, client, prefix) })

	ledger := NewRedisLedger(client, discardLogger(), prefix, time.Minute)
	_, err := ledger.TryBeginAttempt(ctx, "inst-1", "upload")
	require.NoError(t, err)
	require.NoError(t, ledger.CommitSuccess(ctx, "inst-1", "upload", []byte(`{"location":"a<b>&c"}`)))

	raw, err := client.Get(ctx, ledger.entryKey("inst-1", "upload")).Result()
	require.NoError(t, err)
	assert.Contains(t, raw, `"result":{"location":"a<b>&c"}`)
}

func TestRedisLedger_Keys(t *testing.T) {
	ledger := NewRedisLedger(nil, nil, "", 0)

	assert.Equal(t, "ledger:entry:{inst-1}:upload", ledger.entryKey("inst-1", "upload"))
	assert.Equal(t, "ledger:steps:{inst-1}", ledger.stepsKey("inst-1"))
	assert.Equal(t, "ledger:instance:{inst-1}", ledger.instanceKey("inst-1"))
	assert.Equal(t, domain.DefaultAttemptLease, ledger.lease)
}

func TestEncodeEntry(t *testing.T) {
	data, err := encodeEntry(&domain.LedgerEntry{
		InstanceID: "inst-1",
		StepName:   "upload",
		Status:     domain.StepStatusSucceeded,
		Result:     []byte(`{"q":"a&b<c>"}`),
	})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"result":{"q":"a&b<c>"}`)
	assert.NotContains(t, string(data), "\n")
}
