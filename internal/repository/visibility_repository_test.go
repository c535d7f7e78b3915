package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVisibilityRepositoryHide(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewVisibilityRepository(db)

	mock.ExpectExec("INSERT INTO iotd_hidden_images").
		WithArgs(sqlmock.AnyArg(), "img-1", "u1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	hidden, err := repo.Hide(context.Background(), "img-1", "u1")
	require.NoError(t, err)
	assert.Equal(t, "img-1", hidden.ImageID)
	assert.NotEmpty(t, hidden.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVisibilityRepositoryDismissTwice(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewVisibilityRepository(db)

	mock.ExpectExec("INSERT INTO iotd_dismissed_images").
		WithArgs(sqlmock.AnyArg(), "img-1", "u1", sqlmock.AnyArg()).
		WillReturnError(&pq.Error{Code: "23505"})

	_, err := repo.Dismiss(context.Background(), "img-1", "u1")
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestVisibilityRepositoryUnhideMissing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewVisibilityRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM iotd_hidden_images WHERE id = $1 AND actor_id = $2")).
		WithArgs("h1", "u1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, repo.Unhide(context.Background(), "h1", "u1"), sql.ErrNoRows)
}

func TestVisibilityRepositoryListAndCount(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewVisibilityRepository(db)

	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta("FROM iotd_dismissed_images WHERE actor_id = $1")).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "image_id", "actor_id", "created_at"}).
			AddRow("d1", "img-1", "u1", now))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM iotd_dismissed_images WHERE image_id = $1")).
		WithArgs("img-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	items, err := repo.ListDismissed(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, items, 1)

	count, err := repo.CountDismissals(context.Background(), "img-1")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}
