package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/cuongbtq/meeting-jobs/internal/engine/domain"
	"github.com/redis/go-redis/v9"
)

const maxWatchRetries = 16

type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// RedisLedger stores ledger entries as JSON values in Redis. Mutations use
// WATCH/MULTI optimistic transactions on the entry key and are retried when
// another writer touched the key first.
type RedisLedger struct {
	client redis.UniversalClient
	logger *slog.Logger
	prefix string
	lease  time.Duration
	now    func() time.Time
}

// NewRedisLedger creates a new RedisLedger instance
func NewRedisLedger(client redis.UniversalClient, logger *slog.Logger, prefix string, lease time.Duration) *RedisLedger {
	if prefix == "" {
		prefix = "ledger"
	}
	if lease <= 0 {
		lease = domain.DefaultAttemptLease
	}
	return &RedisLedger{
		client: client,
		logger: logger,
		prefix: prefix,
		lease:  lease,
		now:    time.Now,
	}
}

// Get returns the entry of a step, or nil when the step was never attempted
func (r *RedisLedger) Get(ctx context.Context, instanceID, stepName string) (*domain.LedgerEntry, error) {
	return r.loadEntry(ctx, r.client, r.entryKey(instanceID, stepName))
}

// TryBeginAttempt atomically claims the next attempt of a step
func (r *RedisLedger) TryBeginAttempt(ctx context.Context, instanceID, stepName string) (domain.BeginResult, error) {
	var res domain.BeginResult

	err := r.update(ctx, instanceID, stepName, func(current *domain.LedgerEntry) (*domain.LedgerEntry, error) {
		var next *domain.LedgerEntry
		next, res = current.Begin(instanceID, stepName, r.now().UTC(), r.lease)
		if res.Outcome != domain.BeginGranted {
			return nil, nil
		}
		return next, nil
	})
	if err != nil {
		return domain.BeginResult{}, fmt.Errorf("failed to begin attempt: %w", err)
	}

	return res, nil
}

// CommitSuccess stores the step result; a duplicate identical commit is a no-op
func (r *RedisLedger) CommitSuccess(ctx context.Context, instanceID, stepName string, result json.RawMessage) error {
	return r.update(ctx, instanceID, stepName, func(current *domain.LedgerEntry) (*domain.LedgerEntry, error) {
		next, changed, err := current.Succeed(result, r.now().UTC())
		if err != nil || !changed {
			return nil, err
		}
		return next, nil
	})
}

// CommitFailure records a failed attempt
func (r *RedisLedger) CommitFailure(ctx context.Context, instanceID, stepName string, attempt int, stepErr error) error {
	return r.update(ctx, instanceID, stepName, func(current *domain.LedgerEntry) (*domain.LedgerEntry, error) {
		next, changed, err := current.Fail(attempt, stepErr, r.now().UTC())
		if err != nil || !changed {
			return nil, err
		}
		return next, nil
	})
}

// ExtendLease renews the lease of the pending attempt
func (r *RedisLedger) ExtendLease(ctx context.Context, instanceID, stepName string, attempt int) error {
	return r.update(ctx, instanceID, stepName, func(current *domain.LedgerEntry) (*domain.LedgerEntry, error) {
		return current.Renew(attempt, r.now().UTC(), r.lease)
	})
}

// BindInstance stores the instance with SET NX or checks it against the stored one
func (r *RedisLedger) BindInstance(ctx context.Context, instance *domain.Instance) (*domain.Instance, error) {
	stored := *instance
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = r.now().UTC()
	}

	data, err := json.Marshal(&stored)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal instance: %w", err)
	}

	status, err := r.client.SetArgs(ctx, r.instanceKey(instance.ID), data, redis.SetArgs{Mode: "NX"}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to bind instance: %w", err)
	}
	if status == "OK" {
		return &stored, nil
	}

	existing, err := r.GetInstance(ctx, instance.ID)
	if err != nil {
		return nil, err
	}
	if err := existing.Bind(instance); err != nil {
		return nil, err
	}
	return existing, nil
}

// GetInstance loads an instance by id
func (r *RedisLedger) GetInstance(ctx context.Context, instanceID string) (*domain.Instance, error) {
	data, err := r.client.Get(ctx, r.instanceKey(instanceID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrInstanceNotFound
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var instance domain.Instance
	if err := json.Unmarshal(data, &instance); err != nil {
		return nil, fmt.Errorf("failed to decode instance: %w", err)
	}
	return &instance, nil
}

// ListEntries returns the entries of an instance ordered by first attempt
func (r *RedisLedger) ListEntries(ctx context.Context, instanceID string) ([]domain.LedgerEntry, error) {
	steps, err := r.client.SMembers(ctx, r.stepsKey(instanceID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers: %w", err)
	}

	entries := make([]domain.LedgerEntry, 0, len(steps))
	for _, step := range steps {
		entry, err := r.loadEntry(ctx, r.client, r.entryKey(instanceID, step))
		if err != nil {
			return nil, err
		}
		if entry != nil {
			entries = append(entries, *entry)
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].FirstAttemptAt.Equal(entries[j].FirstAttemptAt) {
			return entries[i].StepName < entries[j].StepName
		}
		return entries[i].FirstAttemptAt.Before(entries[j].FirstAttemptAt)
	})
	return entries, nil
}

// update runs mutate under WATCH on the entry key. A nil entry returned by
// mutate leaves the key untouched.
func (r *RedisLedger) update(ctx context.Context, instanceID, stepName string, mutate func(current *domain.LedgerEntry) (*domain.LedgerEntry, error)) error {
	key := r.entryKey(instanceID, stepName)

	txf := func(tx *redis.Tx) error {
		current, err := r.loadEntry(ctx, tx, key)
		if err != nil {
			return err
		}

		next, err := mutate(current)
		if err != nil || next == nil {
			return err
		}

		data, err := encodeEntry(next)
		if err != nil {
			return fmt.Errorf("failed to marshal ledger entry: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			pipe.SAdd(ctx, r.stepsKey(instanceID), stepName)
			return nil
		})
		return err
	}

	for i := 0; i < maxWatchRetries; i++ {
		err := r.client.Watch(ctx, txf, key)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			r.logger.Debug("Ledger entry changed concurrently, retrying",
				slog.String("key", key),
				slog.Int("retry", i+1),
			)
			continue
		}
		return err
	}

	return fmt.Errorf("ledger entry %s kept changing after %d retries", key, maxWatchRetries)
}

// encodeEntry keeps the result bytes as committed; json.Marshal would
// HTML-escape them and break the identical-result comparison.
func encodeEntry(entry *domain.LedgerEntry) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(entry); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func (r *RedisLedger) loadEntry(ctx context.Context, c stringGetter, key string) (*domain.LedgerEntry, error) {
	data, err := c.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry domain.LedgerEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to decode ledger entry: %w", err)
	}
	return &entry, nil
}

func (r *RedisLedger) entryKey(instanceID, stepName string) string {
	return fmt.Sprintf("%s:entry:{%s}:%s", r.prefix, instanceID, stepName)
}

func (r *RedisLedger) stepsKey(instanceID string) string {
	return fmt.Sprintf("%s:steps:{%s}", r.prefix, instanceID)
}

func (r *RedisLedger) instanceKey(instanceID string) string {
	return fmt.Sprintf("%s:instance:{%s}", r.prefix, instanceID)
}
