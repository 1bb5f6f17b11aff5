package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jonesrussell/content-scheduler/internal/domain"
)

// approvalSelectList is the column list for SELECT/RETURNING on approvals.
const approvalSelectList = `id, content_id, approver_id, status, notes, decided_at,
			created_at, updated_at`

// ApprovalRepository manages approval records in PostgreSQL.
type ApprovalRepository struct {
	db *sql.DB
}

// NewApprovalRepository creates a new repository.
func NewApprovalRepository(db *sql.DB) *ApprovalRepository {
	return &ApprovalRepository{db: db}
}

// CreateOpen inserts a new pending approval record for the content. The
// conditional insert enforces the at-most-one-open invariant: if another
// pending record exists for the content id, no row is inserted and
// ErrConflict is returned.
func (r *ApprovalRepository) CreateOpen(ctx context.Context, contentID, approverID string, notes *string) (*domain.ApprovalRecord, error) {
	record := &domain.ApprovalRecord{
		ID:         uuid.NewString(),
		ContentID:  contentID,
		ApproverID: approverID,
		Status:     domain.ApprovalStatusPending,
		Notes:      notes,
	}

	query := `
		INSERT INTO approvals (id, content_id, approver_id, status, notes, created_at, updated_at)
		SELECT $1, $2, $3, $4, $5, NOW(), NOW()
		WHERE NOT EXISTS (
			SELECT 1 FROM approvals
			WHERE content_id = $2 AND status = $6
		)
		RETURNING created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		record.ID, record.ContentID, record.ApproverID, record.Status, record.Notes,
		domain.ApprovalStatusPending,
	).Scan(&record.CreatedAt, &record.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: content %s", domain.ErrConflict, contentID)
	}
	if err != nil {
		return nil, fmt.Errorf("create approval: %w", err)
	}

	return record, nil
}

// GetByID retrieves an approval record by id.
func (r *ApprovalRepository) GetByID(ctx context.Context, id string) (*domain.ApprovalRecord, error) {
	query := `SELECT ` + approvalSelectList + ` FROM approvals WHERE id = $1`

	var a domain.ApprovalRecord
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&a.ID, &a.ContentID, &a.ApproverID, &a.Status, &a.Notes, &a.DecidedAt,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get approval by id: %w", err)
	}
	return &a, nil
}

// Resolve closes a pending approval record with the given decision. The
// pending status is part of the WHERE clause so resolving an already
// resolved record affects zero rows and surfaces as ErrInvalidTransition.
func (r *ApprovalRepository) Resolve(ctx context.Context, id string, decision domain.ApprovalStatus, notes *string, decidedAt time.Time) error {
	query := `
		UPDATE approvals
		SET status = $2,
		    notes = COALESCE($3, notes),
		    decided_at = $4,
		    updated_at = NOW()
		WHERE id = $1 AND status = $5`

	result, err := r.db.ExecContext(ctx, query, id, decision, notes, decidedAt,
		domain.ApprovalStatusPending)
	if err != nil {
		return fmt.Errorf("resolve approval: %w", err)
	}
	rows, rowsErr := result.RowsAffected()
	if rowsErr != nil {
		return fmt.Errorf("get affected rows: %w", rowsErr)
	}
	if rows == 0 {
		return fmt.Errorf("%w: approval %s is already resolved", domain.ErrInvalidTransition, id)
	}
	return nil
}

// ListByContentID returns the approval history for a content item, newest
// first.
func (r *ApprovalRepository) ListByContentID(ctx context.Context, contentID string) ([]domain.ApprovalRecord, error) {
	query := `SELECT ` + approvalSelectList + `
		FROM approvals
		WHERE content_id = $1
		ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, contentID)
	if err != nil {
		return nil, fmt.Errorf("list approvals: %w", err)
	}
	defer rows.Close()

	var records []domain.ApprovalRecord
	for rows.Next() {
		var a domain.ApprovalRecord
		scanErr := rows.Scan(
			&a.ID, &a.ContentID, &a.ApproverID, &a.Status, &a.Notes, &a.DecidedAt,
			&a.CreatedAt, &a.UpdatedAt,
		)
		if scanErr != nil {
			return nil, fmt.Errorf("scan approval: %w", scanErr)
		}
		records = append(records, a)
	}
	return records, rows.Err()
}
