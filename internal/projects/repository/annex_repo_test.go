package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldwork/fieldwork-backend/internal/projects/domain"
)

func TestAnnexRepository_Add(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewAnnexRepository(db)

	t.Run("inserts below the limit", func(t *testing.T) {
		mock.ExpectExec(`INSERT INTO project_annexes`).
			WithArgs(sqlmock.AnyArg(), "p-1", "plan.pdf", "image/abc.pdf", sqlmock.AnyArg(), "http://presigned", sqlmock.AnyArg(), domain.MaxAnnexes).
			WillReturnResult(sqlmock.NewResult(0, 1))

		expire := time.Now().Add(time.Hour)
		err := repo.Add(context.Background(), &domain.Annex{
			ProjectID:  "p-1",
			Name:       "plan.pdf",
			Path:       "image/abc.pdf",
			AccessURL:  "http://presigned",
			ExpireTime: &expire,
		})
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("full project refuses a fourth annex", func(t *testing.T) {
		mock.ExpectExec(`INSERT INTO project_annexes`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.Add(context.Background(), &domain.Annex{ProjectID: "p-full", Name: "extra.pdf"})
		require.ErrorIs(t, err, domain.ErrAnnexLimit)
	})
}

func TestAnnexRepository_BlankExpiredURLs(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewAnnexRepository(db)

	mock.ExpectExec(`UPDATE project_annexes`).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.BlankExpiredURLs(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
}

func TestAnnexRepository_SetAccessURL(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewAnnexRepository(db)

	t.Run("refreshes url and lifetime", func(t *testing.T) {
		mock.ExpectExec(`UPDATE project_annexes`).
			WithArgs("a-1", "http://fresh", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		expire := sql.NullTime{Time: time.Now().Add(time.Hour), Valid: true}
		require.NoError(t, repo.SetAccessURL(context.Background(), "a-1", "http://fresh", expire))
	})

	t.Run("absent annex is ErrNotFound", func(t *testing.T) {
		mock.ExpectExec(`UPDATE project_annexes`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.SetAccessURL(context.Background(), "missing", "", sql.NullTime{})
		require.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestAnnexRepository_ListByProjects(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewAnnexRepository(db)

	t.Run("groups annexes by project", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"id", "project_id", "name", "path", "thumbnail", "access_url", "expire_time"}).
			AddRow("a-1", "p-1", "one.pdf", "image/1.pdf", "", "http://u1", nil).
			AddRow("a-2", "p-1", "two.pdf", "image/2.pdf", "", "http://u2", nil).
			AddRow("a-3", "p-2", "three.pdf", "image/3.pdf", "", "http://u3", nil)
		mock.ExpectQuery(`SELECT (.+) FROM project_annexes`).
			WillReturnRows(rows)

		got, err := repo.ListByProjects(context.Background(), []string{"p-1", "p-2"})
		require.NoError(t, err)
		assert.Len(t, got["p-1"], 2)
		assert.Len(t, got["p-2"], 1)
	})

	t.Run("empty id list skips the query", func(t *testing.T) {
		got, err := repo.ListByProjects(context.Background(), nil)
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}
