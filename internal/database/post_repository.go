package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/jonesrussell/content-scheduler/internal/domain"
)

// postSelectList is the column list for SELECT/RETURNING on post_records.
const postSelectList = `id, content_id, target_id, external_post_id, published_at,
			is_deleted, created_at`

// PostRepository manages post records in PostgreSQL. The unique index on
// (content_id, target_id) is what makes dispatch idempotent: two concurrent
// publishes for the same pair produce exactly one record.
type PostRepository struct {
	db *sql.DB
}

// NewPostRepository creates a new repository.
func NewPostRepository(db *sql.DB) *PostRepository {
	return &PostRepository{db: db}
}

// Create inserts a post record for a successful publish. Returns
// created=false when a record for the (content id, target id) pair already
// exists; the duplicate loser is not an error.
func (r *PostRepository) Create(ctx context.Context, contentID, targetID, externalPostID string) (created bool, err error) {
	query := `
		INSERT INTO post_records (id, content_id, target_id, external_post_id,
			published_at, is_deleted, created_at)
		VALUES ($1, $2, $3, $4, NOW(), FALSE, NOW())
		ON CONFLICT (content_id, target_id) DO NOTHING`

	result, err := r.db.ExecContext(ctx, query, uuid.NewString(), contentID, targetID, externalPostID)
	if err != nil {
		return false, fmt.Errorf("create post record: %w", err)
	}

	rows, rowsErr := result.RowsAffected()
	if rowsErr != nil {
		return false, fmt.Errorf("get affected rows: %w", rowsErr)
	}
	return rows == 1, nil
}

// GetByContentAndTarget retrieves the post record for a pair, if any.
func (r *PostRepository) GetByContentAndTarget(ctx context.Context, contentID, targetID string) (*domain.PostRecord, error) {
	query := `SELECT ` + postSelectList + `
		FROM post_records
		WHERE content_id = $1 AND target_id = $2 AND is_deleted = FALSE`

	var p domain.PostRecord
	err := r.db.QueryRowContext(ctx, query, contentID, targetID).Scan(
		&p.ID, &p.ContentID, &p.TargetID, &p.ExternalPostID, &p.PublishedAt,
		&p.IsDeleted, &p.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get post record: %w", err)
	}
	return &p, nil
}

// ListTargetsPublished returns the target ids that already have a post
// record for the content. Used on retry to skip fulfilled targets.
func (r *PostRepository) ListTargetsPublished(ctx context.Context, contentID string) ([]string, error) {
	query := `SELECT target_id FROM post_records
		WHERE content_id = $1 AND is_deleted = FALSE`

	rows, err := r.db.QueryContext(ctx, query, contentID)
	if err != nil {
		return nil, fmt.Errorf("list published targets: %w", err)
	}
	defer rows.Close()

	var targets []string
	for rows.Next() {
		var t string
		if scanErr := rows.Scan(&t); scanErr != nil {
			return nil, fmt.Errorf("scan target id: %w", scanErr)
		}
		targets = append(targets, t)
	}
	return targets, rows.Err()
}
