package database

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/content-scheduler/internal/domain"
)

func TestContentRepositoryCreate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewContentRepository(db)
	now := time.Now()

	mock.ExpectQuery("INSERT INTO content").
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	item, err := repo.Create(context.Background(), "owner-1", "Launch post", "Body text")
	require.NoError(t, err)

	assert.NotEmpty(t, item.ID)
	assert.Equal(t, "owner-1", item.OwnerID)
	assert.Equal(t, domain.ContentStatusDraft, item.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestContentRepositoryGetByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewContentRepository(db)
	now := time.Now()

	mock.ExpectQuery("SELECT").
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows(
			[]string{"id", "owner_id", "title", "body", "status", "created_at", "updated_at"}).
			AddRow("c1", "owner-1", "Launch post", "Body text", "approved", now, now))

	item, err := repo.GetByID(context.Background(), "c1")
	require.NoError(t, err)

	assert.Equal(t, "c1", item.ID)
	assert.Equal(t, domain.ContentStatusApproved, item.Status)
}

func TestContentRepositoryGetByIDNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewContentRepository(db)

	mock.ExpectQuery("SELECT").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err = repo.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestContentRepositoryUpdateStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewContentRepository(db)

	mock.ExpectExec("UPDATE content").
		WithArgs("c1", string(domain.ContentStatusApproved), string(domain.ContentStatusPublished)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = repo.UpdateStatus(context.Background(), "c1",
		domain.ContentStatusApproved, domain.ContentStatusPublished)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestContentRepositoryUpdateStatusInvalidTransition(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewContentRepository(db)

	// Rejected before any query runs.
	err = repo.UpdateStatus(context.Background(), "c1",
		domain.ContentStatusDraft, domain.ContentStatusPublished)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestContentRepositoryUpdateStatusConcurrentLoss(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewContentRepository(db)

	// Another writer already moved the item off the expected status.
	mock.ExpectExec("UPDATE content").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = repo.UpdateStatus(context.Background(), "c1",
		domain.ContentStatusApproved, domain.ContentStatusPublished)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}
