package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/jonesrussell/content-scheduler/internal/domain"
)

// contentSelectList is the column list for SELECT/RETURNING on content.
const contentSelectList = `id, owner_id, title, body, status, created_at, updated_at`

// ContentRepository manages content items in PostgreSQL.
type ContentRepository struct {
	db *sql.DB
}

// NewContentRepository creates a new repository.
func NewContentRepository(db *sql.DB) *ContentRepository {
	return &ContentRepository{db: db}
}

// Create inserts a new content item in draft status.
func (r *ContentRepository) Create(ctx context.Context, ownerID, title, body string) (*domain.ContentItem, error) {
	item := &domain.ContentItem{
		ID:      uuid.NewString(),
		OwnerID: ownerID,
		Title:   title,
		Body:    body,
		Status:  domain.ContentStatusDraft,
	}

	query := `
		INSERT INTO content (id, owner_id, title, body, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		RETURNING created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		item.ID, item.OwnerID, item.Title, item.Body, item.Status,
	).Scan(&item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create content: %w", err)
	}

	return item, nil
}

// GetByID retrieves a content item by id.
func (r *ContentRepository) GetByID(ctx context.Context, id string) (*domain.ContentItem, error) {
	query := `SELECT ` + contentSelectList + ` FROM content WHERE id = $1`

	var c domain.ContentItem
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&c.ID, &c.OwnerID, &c.Title, &c.Body, &c.Status, &c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get content by id: %w", err)
	}
	return &c, nil
}

// UpdateStatus moves a content item to a new status. The current status is
// part of the WHERE clause so a concurrent transition loses cleanly instead
// of overwriting: zero rows affected surfaces as ErrInvalidTransition.
func (r *ContentRepository) UpdateStatus(ctx context.Context, id string, from, to domain.ContentStatus) error {
	if err := domain.ValidateContentTransition(from, to); err != nil {
		return err
	}

	query := `
		UPDATE content
		SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2`

	result, err := r.db.ExecContext(ctx, query, id, from, to)
	if err != nil {
		return fmt.Errorf("update content status: %w", err)
	}
	rows, rowsErr := result.RowsAffected()
	if rowsErr != nil {
		return fmt.Errorf("get affected rows: %w", rowsErr)
	}
	if rows == 0 {
		return fmt.Errorf("%w: content %s is no longer %s", domain.ErrInvalidTransition, id, from)
	}
	return nil
}
