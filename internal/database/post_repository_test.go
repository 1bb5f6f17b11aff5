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

func TestPostRepositoryCreate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostRepository(db)

	mock.ExpectExec("INSERT INTO post_records").
		WillReturnResult(sqlmock.NewResult(0, 1))

	created, err := repo.Create(context.Background(), "c1", "t1", "ext-42")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostRepositoryCreateDuplicate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostRepository(db)

	// ON CONFLICT DO NOTHING affects zero rows for the losing writer.
	mock.ExpectExec("INSERT INTO post_records").
		WillReturnResult(sqlmock.NewResult(0, 0))

	created, err := repo.Create(context.Background(), "c1", "t1", "ext-43")
	require.NoError(t, err)
	assert.False(t, created)
}

func TestPostRepositoryGetByContentAndTarget(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostRepository(db)
	now := time.Now()

	mock.ExpectQuery("SELECT").
		WithArgs("c1", "t1").
		WillReturnRows(sqlmock.NewRows(
			[]string{"id", "content_id", "target_id", "external_post_id", "published_at",
				"is_deleted", "created_at"}).
			AddRow("p1", "c1", "t1", "ext-42", now, false, now))

	record, err := repo.GetByContentAndTarget(context.Background(), "c1", "t1")
	require.NoError(t, err)

	assert.Equal(t, "p1", record.ID)
	assert.Equal(t, "ext-42", record.ExternalPostID)
}

func TestPostRepositoryGetByContentAndTargetNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostRepository(db)

	mock.ExpectQuery("SELECT").
		WithArgs("c1", "t9").
		WillReturnError(sql.ErrNoRows)

	_, err = repo.GetByContentAndTarget(context.Background(), "c1", "t9")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPostRepositoryListTargetsPublished(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostRepository(db)

	mock.ExpectQuery("SELECT target_id FROM post_records").
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"target_id"}).
			AddRow("t1").
			AddRow("t3"))

	targets, err := repo.ListTargetsPublished(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, []string{"t1", "t3"}, targets)
}
