package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/jonesrussell/content-scheduler/internal/domain"
)

// scheduleSelectList is the column list for SELECT/RETURNING on schedules
// (single source for schema changes).
const scheduleSelectList = `id, content_id, occurrence_date, occurrence_time, timezone,
			recurrence, recurrence_interval, recurrence_until, next_occurrence,
			target_ids, status, is_active, is_deleted, retry_count, max_retries,
			last_error, next_retry_at, last_dispatched_at, created_at, updated_at`

// occurrenceInstant resolves occurrence_date plus optional time-of-day in
// the entry's timezone to a comparable instant, for due ordering and
// comparison inside the database.
const occurrenceInstant = `((occurrence_date + COALESCE(occurrence_time, '00:00'::time)) AT TIME ZONE timezone)`

// fallbackMaxRetries guards against a zero retry limit when the repository
// is constructed without one.
const fallbackMaxRetries = 5

// ScheduleRepository manages schedule entries in PostgreSQL. It is the
// calendar store: due claiming, recurrence advancement, and deactivation.
type ScheduleRepository struct {
	db                *sql.DB
	defaultMaxRetries int
}

// NewScheduleRepository creates a new repository. defaultMaxRetries applies
// to entries created without an explicit retry limit.
func NewScheduleRepository(db *sql.DB, defaultMaxRetries int) *ScheduleRepository {
	if defaultMaxRetries <= 0 {
		defaultMaxRetries = fallbackMaxRetries
	}
	return &ScheduleRepository{db: db, defaultMaxRetries: defaultMaxRetries}
}

// Create inserts a new schedule entry in pending status. The entry is
// validated first so malformed recurrence rules never reach the dispatcher.
func (r *ScheduleRepository) Create(ctx context.Context, entry *domain.ScheduleEntry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.MaxRetries <= 0 {
		entry.MaxRetries = r.defaultMaxRetries
	}

	query := `
		INSERT INTO schedules (id, content_id, occurrence_date, occurrence_time, timezone,
			recurrence, recurrence_interval, recurrence_until, target_ids,
			status, is_active, is_deleted, retry_count, max_retries,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, TRUE, FALSE, 0, $11, NOW(), NOW())
		RETURNING created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		entry.ID, entry.ContentID, entry.OccurrenceDate, entry.OccurrenceTime, entry.Timezone,
		entry.Recurrence, entry.RecurrenceInterval, entry.RecurrenceUntil,
		pq.Array([]string(entry.TargetIDs)), domain.ScheduleStatusPending, entry.MaxRetries,
	).Scan(&entry.CreatedAt, &entry.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create schedule: %w", err)
	}

	entry.Status = domain.ScheduleStatusPending
	entry.IsActive = true
	return nil
}

// ClaimDue atomically claims due entries by flipping them from pending to
// dispatching, oldest occurrence first. FOR UPDATE SKIP LOCKED keeps
// overlapping poll cycles and concurrent workers from claiming the same
// entry twice.
func (r *ScheduleRepository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]domain.ScheduleEntry, error) {
	query := `
		UPDATE schedules
		SET status = 'dispatching', updated_at = NOW()
		WHERE id IN (
			SELECT id FROM schedules
			WHERE status = 'pending'
			  AND is_active = TRUE
			  AND is_deleted = FALSE
			  AND ` + occurrenceInstant + ` <= $1
			ORDER BY ` + occurrenceInstant + ` ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + scheduleSelectList

	rows, err := r.db.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("claim due schedules: %w", err)
	}
	defer rows.Close()

	return scanScheduleEntries(rows)
}

// ClaimRetryable atomically claims failed entries whose backoff window has
// passed and which still have retries left.
func (r *ScheduleRepository) ClaimRetryable(ctx context.Context, now time.Time, limit int) ([]domain.ScheduleEntry, error) {
	query := `
		UPDATE schedules
		SET status = 'dispatching', updated_at = NOW()
		WHERE id IN (
			SELECT id FROM schedules
			WHERE status = 'failed'
			  AND is_active = TRUE
			  AND is_deleted = FALSE
			  AND retry_count < max_retries
			  AND (next_retry_at IS NULL OR next_retry_at <= $1)
			ORDER BY next_retry_at ASC NULLS FIRST
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + scheduleSelectList

	rows, err := r.db.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("claim retryable schedules: %w", err)
	}
	defer rows.Close()

	return scanScheduleEntries(rows)
}

// GetRecurringNeedingAdvance returns active recurring entries whose next
// occurrence is missing or has already passed. Read-only; advancement
// happens through AdvanceOccurrence.
func (r *ScheduleRepository) GetRecurringNeedingAdvance(ctx context.Context, now time.Time, limit int) ([]domain.ScheduleEntry, error) {
	query := `
		SELECT ` + scheduleSelectList + `
		FROM schedules
		WHERE recurrence <> 'none'
		  AND is_active = TRUE
		  AND is_deleted = FALSE
		  AND status = 'dispatched'
		  AND (next_occurrence IS NULL OR next_occurrence <= $1)
		ORDER BY occurrence_date ASC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("get recurring needing advance: %w", err)
	}
	defer rows.Close()

	return scanScheduleEntries(rows)
}

// execExpectOneRow runs an exec and returns domain.ErrNotFound when no row
// was affected.
func (r *ScheduleRepository) execExpectOneRow(ctx context.Context, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	rows, rowsErr := result.RowsAffected()
	if rowsErr != nil {
		return fmt.Errorf("get affected rows: %w", rowsErr)
	}
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// MarkDispatched marks an entry as successfully dispatched and clears retry
// bookkeeping.
func (r *ScheduleRepository) MarkDispatched(ctx context.Context, id string) error {
	query := `
		UPDATE schedules
		SET status = 'dispatched',
		    retry_count = 0,
		    last_error = NULL,
		    next_retry_at = NULL,
		    last_dispatched_at = NOW(),
		    updated_at = NOW()
		WHERE id = $1`
	if err := r.execExpectOneRow(ctx, query, id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return fmt.Errorf("mark dispatched: %w", err)
	}
	return nil
}

// MarkFailed marks an entry as failed with retry scheduling.
// Exponential backoff: 1min, 2min, 4min, 8min, ...
func (r *ScheduleRepository) MarkFailed(ctx context.Context, id, lastError string) error {
	query := `
		UPDATE schedules
		SET status = 'failed',
		    last_error = $2,
		    retry_count = retry_count + 1,
		    next_retry_at = NOW() + (INTERVAL '1 minute' * POWER(2, retry_count)),
		    updated_at = NOW()
		WHERE id = $1`
	if err := r.execExpectOneRow(ctx, query, id, lastError); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

// AdvanceOccurrence rolls a recurring entry forward: the computed next date
// becomes the current occurrence and the entry returns to pending so the
// due query picks it up when the new instant arrives.
func (r *ScheduleRepository) AdvanceOccurrence(ctx context.Context, id string, next time.Time) error {
	query := `
		UPDATE schedules
		SET occurrence_date = $2,
		    next_occurrence = $2,
		    status = 'pending',
		    retry_count = 0,
		    last_error = NULL,
		    next_retry_at = NULL,
		    updated_at = NOW()
		WHERE id = $1`
	if err := r.execExpectOneRow(ctx, query, id, next); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return fmt.Errorf("advance occurrence: %w", err)
	}
	return nil
}

// Deactivate turns an entry off, either on cancellation or when its
// recurrence is exhausted.
func (r *ScheduleRepository) Deactivate(ctx context.Context, id string) error {
	query := `
		UPDATE schedules
		SET is_active = FALSE,
		    next_occurrence = NULL,
		    updated_at = NOW()
		WHERE id = $1`
	if err := r.execExpectOneRow(ctx, query, id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return fmt.Errorf("deactivate schedule: %w", err)
	}
	return nil
}

// ReleaseStale resets stale dispatching entries back to pending. This
// recovers entries that were claimed by a cycle that crashed before
// completing.
func (r *ScheduleRepository) ReleaseStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	query := `
		UPDATE schedules
		SET status = 'pending', updated_at = NOW()
		WHERE status = 'dispatching'
		  AND updated_at < NOW() - make_interval(secs => $1)`

	result, err := r.db.ExecContext(ctx, query, olderThan.Seconds())
	if err != nil {
		return 0, fmt.Errorf("release stale schedules: %w", err)
	}

	return result.RowsAffected()
}

// GetByID retrieves a single schedule entry by id.
func (r *ScheduleRepository) GetByID(ctx context.Context, id string) (*domain.ScheduleEntry, error) {
	query := `SELECT ` + scheduleSelectList + ` FROM schedules WHERE id = $1`

	rows, err := r.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("get schedule by id: %w", err)
	}
	defer rows.Close()

	entries, err := scanScheduleEntries(rows)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, domain.ErrNotFound
	}
	return &entries[0], nil
}

// GetStats returns schedule counts for monitoring.
func (r *ScheduleRepository) GetStats(ctx context.Context) (*domain.ScheduleStats, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = 'pending' AND is_active) as pending,
			COUNT(*) FILTER (WHERE status = 'dispatching') as dispatching,
			COUNT(*) FILTER (WHERE status = 'dispatched') as dispatched,
			COUNT(*) FILTER (WHERE status = 'failed') as failed,
			COUNT(*) FILTER (WHERE recurrence <> 'none' AND is_active) as recurring
		FROM schedules
		WHERE is_deleted = FALSE`

	var stats domain.ScheduleStats
	err := r.db.QueryRowContext(ctx, query).Scan(
		&stats.Pending,
		&stats.Dispatching,
		&stats.Dispatched,
		&stats.Failed,
		&stats.Recurring,
	)
	if err != nil {
		return nil, fmt.Errorf("get schedule stats: %w", err)
	}
	return &stats, nil
}

// initialScheduleCapacity is a reasonable default for batch operations.
const initialScheduleCapacity = 50

func scanScheduleEntries(rows *sql.Rows) ([]domain.ScheduleEntry, error) {
	entries := make([]domain.ScheduleEntry, 0, initialScheduleCapacity)
	for rows.Next() {
		var e domain.ScheduleEntry
		var targets pq.StringArray

		err := rows.Scan(
			&e.ID, &e.ContentID, &e.OccurrenceDate, &e.OccurrenceTime, &e.Timezone,
			&e.Recurrence, &e.RecurrenceInterval, &e.RecurrenceUntil, &e.NextOccurrence,
			&targets, &e.Status, &e.IsActive, &e.IsDeleted, &e.RetryCount, &e.MaxRetries,
			&e.LastError, &e.NextRetryAt, &e.LastDispatchedAt, &e.CreatedAt, &e.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan schedule entry: %w", err)
		}
		e.TargetIDs = targets
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
