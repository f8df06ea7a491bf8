package storage

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/cuongbtq/meeting-jobs/internal/engine/domain"
)

type entryKey struct {
	instanceID string
	stepName   string
}

// MemoryLedger keeps the ledger in process memory. It is used by tests and
// single-process deployments that accept losing history on restart.
type MemoryLedger struct {
	mu        sync.RWMutex
	entries   map[entryKey]*domain.LedgerEntry
	instances map[string]*domain.Instance
	lease     time.Duration
	now       func() time.Time
}

// NewMemoryLedger creates an empty in-memory ledger
func NewMemoryLedger(lease time.Duration) *MemoryLedger {
	if lease <= 0 {
		lease = domain.DefaultAttemptLease
	}
	return &MemoryLedger{
		entries:   make(map[entryKey]*domain.LedgerEntry),
		instances: make(map[string]*domain.Instance),
		lease:     lease,
		now:       time.Now,
	}
}

// Get returns a copy of the entry for (instanceID, stepName), or nil
func (m *MemoryLedger) Get(ctx context.Context, instanceID, stepName string) (*domain.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.entries[entryKey{instanceID, stepName}]
	if !ok {
		return nil, nil
	}
	return cloneEntry(entry), nil
}

// TryBeginAttempt grants the next attempt of a step to at most one caller
func (m *MemoryLedger) TryBeginAttempt(ctx context.Context, instanceID, stepName string) (domain.BeginResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := entryKey{instanceID, stepName}
	next, res := m.entries[key].Begin(instanceID, stepName, m.now(), m.lease)
	if res.Outcome == domain.BeginGranted {
		m.entries[key] = next
	}
	res.Result = cloneRaw(res.Result)
	return res, nil
}

// CommitSuccess stores the result of a step
func (m *MemoryLedger) CommitSuccess(ctx context.Context, instanceID, stepName string, result json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := entryKey{instanceID, stepName}
	next, changed, err := m.entries[key].Succeed(result, m.now())
	if err != nil {
		return err
	}
	if changed {
		m.entries[key] = next
	}
	return nil
}

// CommitFailure records a failed attempt
func (m *MemoryLedger) CommitFailure(ctx context.Context, instanceID, stepName string, attempt int, stepErr error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := entryKey{instanceID, stepName}
	next, changed, err := m.entries[key].Fail(attempt, stepErr, m.now())
	if err != nil {
		return err
	}
	if changed {
		m.entries[key] = next
	}
	return nil
}

// ExtendLease renews the lease of the pending attempt
func (m *MemoryLedger) ExtendLease(ctx context.Context, instanceID, stepName string, attempt int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := entryKey{instanceID, stepName}
	next, err := m.entries[key].Renew(attempt, m.now(), m.lease)
	if err != nil {
		return err
	}
	m.entries[key] = next
	return nil
}

// BindInstance stores the instance on first sight and checks later triggers against it
func (m *MemoryLedger) BindInstance(ctx context.Context, instance *domain.Instance) (*domain.Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if stored, ok := m.instances[instance.ID]; ok {
		if err := stored.Bind(instance); err != nil {
			return nil, err
		}
		return cloneInstance(stored), nil
	}

	stored := cloneInstance(instance)
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = m.now()
	}
	m.instances[instance.ID] = stored
	return cloneInstance(stored), nil
}

// GetInstance returns the stored trigger of an instance
func (m *MemoryLedger) GetInstance(ctx context.Context, instanceID string) (*domain.Instance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored, ok := m.instances[instanceID]
	if !ok {
		return nil, domain.ErrInstanceNotFound
	}
	return cloneInstance(stored), nil
}

// ListEntries returns every entry of an instance ordered by first attempt
func (m *MemoryLedger) ListEntries(ctx context.Context, instanceID string) ([]domain.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var entries []domain.LedgerEntry
	for key, entry := range m.entries {
		if key.instanceID == instanceID {
			entries = append(entries, *cloneEntry(entry))
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

// ListInstances returns instances newest first, PageSize+1 at most
func (m *MemoryLedger) ListInstances(ctx context.Context, filter domain.InstanceFilter) ([]domain.Instance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	instances := make([]domain.Instance, 0, len(m.instances))
	for _, inst := range m.instances {
		if filter.JobType != "" && inst.JobType != filter.JobType {
			continue
		}
		if filter.Cursor != nil && !before(inst, filter.Cursor) {
			continue
		}
		instances = append(instances, *cloneInstance(inst))
	}

	sort.Slice(instances, func(i, j int) bool {
		if instances[i].CreatedAt.Equal(instances[j].CreatedAt) {
			return instances[i].ID > instances[j].ID
		}
		return instances[i].CreatedAt.After(instances[j].CreatedAt)
	})

	if filter.PageSize > 0 && len(instances) > filter.PageSize+1 {
		instances = instances[:filter.PageSize+1]
	}
	return instances, nil
}

// before reports whether inst sorts after the cursor in newest-first order
func before(inst *domain.Instance, cursor *domain.InstanceCursor) bool {
	if inst.CreatedAt.Equal(cursor.CreatedAt) {
		return inst.ID < cursor.InstanceID
	}
	return inst.CreatedAt.Before(cursor.CreatedAt)
}

func cloneEntry(e *domain.LedgerEntry) *domain.LedgerEntry {
	out := *e
	out.Result = cloneRaw(e.Result)
	if e.LeaseExpiresAt != nil {
		expires := *e.LeaseExpiresAt
		out.LeaseExpiresAt = &expires
	}
	return &out
}

func cloneInstance(i *domain.Instance) *domain.Instance {
	out := *i
	out.Payload = cloneRaw(i.Payload)
	return &out
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	return append(json.RawMessage(nil), raw...)
}
