package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/meeting-jobs/internal/engine/domain"
	"github.com/jackc/pgerrcode"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

//go:embed schema.sql
var schemaSQL string

const entryColumns = `
	instance_id, step_name, status, COALESCE(result, ''::bytea) AS result, attempts, last_error,
	first_attempt_at, last_attempt_at, lease_expires_at
`

const upsertEntrySQL = `
	INSERT INTO step_ledger (
		instance_id, step_name, status, result, attempts, last_error,
		first_attempt_at, last_attempt_at, lease_expires_at
	) VALUES (
		:instance_id, :step_name, :status, :result, :attempts, :last_error,
		:first_attempt_at, :last_attempt_at, :lease_expires_at
	)
	ON CONFLICT (instance_id, step_name) DO UPDATE
	SET status = EXCLUDED.status,
	    result = EXCLUDED.result,
	    attempts = EXCLUDED.attempts,
	    last_error = EXCLUDED.last_error,
	    last_attempt_at = EXCLUDED.last_attempt_at,
	    lease_expires_at = EXCLUDED.lease_expires_at
`

// PostgresLedger stores ledger entries in PostgreSQL. Every mutation of a
// (instance, step) key runs in a transaction holding a transaction-scoped
// advisory lock on that key.
type PostgresLedger struct {
	db     *sqlx.DB
	logger *slog.Logger
	lease  time.Duration
	now    func() time.Time
}

// NewPostgresLedger creates a new PostgresLedger instance
func NewPostgresLedger(db *sqlx.DB, logger *slog.Logger, lease time.Duration) *PostgresLedger {
	if lease <= 0 {
		lease = domain.DefaultAttemptLease
	}
	return &PostgresLedger{
		db:     db,
		logger: logger,
		lease:  lease,
		now:    time.Now,
	}
}

// Migrate creates the ledger tables if they do not exist
func (s *PostgresLedger) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to migrate ledger schema: %w", err)
	}
	return nil
}

// Get retrieves the entry of a step, or nil when the step was never attempted
func (s *PostgresLedger) Get(ctx context.Context, instanceID, stepName string) (*domain.LedgerEntry, error) {
	return s.loadEntry(ctx, s.db, instanceID, stepName)
}

// TryBeginAttempt atomically claims the next attempt of a step
func (s *PostgresLedger) TryBeginAttempt(ctx context.Context, instanceID, stepName string) (domain.BeginResult, error) {
	var res domain.BeginResult

	err := s.withEntryLock(ctx, instanceID, stepName, func(tx *sqlx.Tx, current *domain.LedgerEntry) error {
		var next *domain.LedgerEntry
		next, res = current.Begin(instanceID, stepName, s.now().UTC(), s.lease)
		if res.Outcome != domain.BeginGranted {
			return nil
		}
		return s.saveEntry(ctx, tx, next)
	})
	if err != nil {
		return domain.BeginResult{}, fmt.Errorf("failed to begin attempt: %w", err)
	}

	s.logger.Debug("Step attempt requested",
		slog.String("instance_id", instanceID),
		slog.String("step", stepName),
		slog.String("outcome", res.Outcome.String()),
		slog.Int("attempt", res.Attempt),
	)

	return res, nil
}

// CommitSuccess stores the step result; a duplicate identical commit is a no-op
func (s *PostgresLedger) CommitSuccess(ctx context.Context, instanceID, stepName string, result json.RawMessage) error {
	return s.withEntryLock(ctx, instanceID, stepName, func(tx *sqlx.Tx, current *domain.LedgerEntry) error {
		next, changed, err := current.Succeed(result, s.now().UTC())
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}
		return s.saveEntry(ctx, tx, next)
	})
}

// CommitFailure records a failed attempt
func (s *PostgresLedger) CommitFailure(ctx context.Context, instanceID, stepName string, attempt int, stepErr error) error {
	return s.withEntryLock(ctx, instanceID, stepName, func(tx *sqlx.Tx, current *domain.LedgerEntry) error {
		next, changed, err := current.Fail(attempt, stepErr, s.now().UTC())
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}
		return s.saveEntry(ctx, tx, next)
	})
}

// ExtendLease renews the lease of the pending attempt
func (s *PostgresLedger) ExtendLease(ctx context.Context, instanceID, stepName string, attempt int) error {
	return s.withEntryLock(ctx, instanceID, stepName, func(tx *sqlx.Tx, current *domain.LedgerEntry) error {
		next, err := current.Renew(attempt, s.now().UTC(), s.lease)
		if err != nil {
			return err
		}
		return s.saveEntry(ctx, tx, next)
	})
}

// BindInstance inserts the instance record or verifies the existing one matches
func (s *PostgresLedger) BindInstance(ctx context.Context, instance *domain.Instance) (*domain.Instance, error) {
	query := `
		INSERT INTO job_instances (
			instance_id, job_type, event_type, fingerprint, payload, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6
		)
		RETURNING instance_id, job_type, event_type, fingerprint, payload, created_at
	`

	createdAt := instance.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now().UTC()
	}

	var stored domain.Instance
	err := s.db.GetContext(ctx, &stored, query,
		instance.ID,
		instance.JobType,
		instance.EventType,
		instance.Fingerprint,
		string(instance.Payload),
		createdAt,
	)
	if err == nil {
		s.logger.Info("Job instance created",
			slog.String("instance_id", stored.ID),
			slog.String("job_type", stored.JobType),
		)
		return &stored, nil
	}

	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || string(pqErr.Code) != pgerrcode.UniqueViolation {
		return nil, fmt.Errorf("failed to bind instance: %w", err)
	}

	existing, err := s.GetInstance(ctx, instance.ID)
	if err != nil {
		return nil, err
	}
	if err := existing.Bind(instance); err != nil {
		return nil, err
	}
	return existing, nil
}

// GetInstance loads an instance by id
func (s *PostgresLedger) GetInstance(ctx context.Context, instanceID string) (*domain.Instance, error) {
	query := `
		SELECT instance_id, job_type, event_type, fingerprint, payload, created_at
		FROM job_instances
		WHERE instance_id = $1
	`

	var instance domain.Instance
	if err := s.db.GetContext(ctx, &instance, query, instanceID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrInstanceNotFound
		}
		return nil, fmt.Errorf("failed to get instance: %w", err)
	}
	return &instance, nil
}

// ListEntries returns the entries of an instance ordered by first attempt
func (s *PostgresLedger) ListEntries(ctx context.Context, instanceID string) ([]domain.LedgerEntry, error) {
	query := `SELECT ` + entryColumns + `
		FROM step_ledger
		WHERE instance_id = $1
		ORDER BY first_attempt_at ASC, step_name ASC
	`

	var entries []domain.LedgerEntry
	if err := s.db.SelectContext(ctx, &entries, query, instanceID); err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	return entries, nil
}

// ListInstances lists instances newest first, fetching PageSize+1 rows so
// callers can tell whether another page exists
func (s *PostgresLedger) ListInstances(ctx context.Context, filter domain.InstanceFilter) ([]domain.Instance, error) {
	query := `
		SELECT instance_id, job_type, event_type, fingerprint, payload, created_at
		FROM job_instances
		WHERE 1=1
	`
	args := []interface{}{}
	argIdx := 1

	if filter.JobType != "" {
		query += fmt.Sprintf(" AND job_type = $%d", argIdx)
		args = append(args, filter.JobType)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, instance_id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.InstanceID)
		argIdx += 2
	}

	query += " ORDER BY created_at DESC, instance_id DESC"

	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, pageSize+1)

	var instances []domain.Instance
	if err := s.db.SelectContext(ctx, &instances, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}
	return instances, nil
}

// withEntryLock runs fn in a transaction that holds the advisory lock of the key
func (s *PostgresLedger) withEntryLock(ctx context.Context, instanceID, stepName string, fn func(tx *sqlx.Tx, current *domain.LedgerEntry) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		// no-op after a successful commit
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, lockKey(instanceID, stepName)); err != nil {
		return fmt.Errorf("failed to lock ledger entry: %w", err)
	}

	current, err := s.loadEntry(ctx, tx, instanceID, stepName)
	if err != nil {
		return err
	}

	if err := fn(tx, current); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *PostgresLedger) loadEntry(ctx context.Context, q sqlx.QueryerContext, instanceID, stepName string) (*domain.LedgerEntry, error) {
	query := `SELECT ` + entryColumns + `
		FROM step_ledger
		WHERE instance_id = $1 AND step_name = $2
	`

	var entry domain.LedgerEntry
	if err := sqlx.GetContext(ctx, q, &entry, query, instanceID, stepName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get ledger entry: %w", err)
	}
	if len(entry.Result) == 0 {
		entry.Result = nil
	}
	return &entry, nil
}

func (s *PostgresLedger) saveEntry(ctx context.Context, tx *sqlx.Tx, entry *domain.LedgerEntry) error {
	if _, err := tx.NamedExecContext(ctx, upsertEntrySQL, entry); err != nil {
		return fmt.Errorf("failed to save ledger entry: %w", err)
	}
	return nil
}

func lockKey(instanceID, stepName string) string {
	return instanceID + "/" + stepName
}
