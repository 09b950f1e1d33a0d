package audit

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldwork/fieldwork-backend/internal/dict"
	"github.com/fieldwork/fieldwork-backend/internal/projects/domain"
	"github.com/fieldwork/fieldwork-backend/internal/projects/repository"
)

func setupPolicy(t *testing.T) (*Policy, sqlmock.Sqlmock, *miniredis.Miniredis) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	policy := NewPolicy(dict.NewRepo(db), rdb, repository.NewProjectRepository(db))
	return policy, mock, mr
}

func rosterRows(labels ...string) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"dict_code", "father_id", "dict_label", "dict_value", "dict_type", "remark"})
	for _, l := range labels {
		rows.AddRow("d-"+l, "", l, l, dict.TypeProjectAuditor, "")
	}
	return rows
}

func TestPolicy_IsAuditor(t *testing.T) {
	t.Run("cold cache falls through to the dictionary", func(t *testing.T) {
		policy, mock, mr := setupPolicy(t)
		mock.ExpectQuery(`SELECT (.+) FROM dict_entries`).
			WithArgs(dict.TypeProjectAuditor).
			WillReturnRows(rosterRows("auditor-1", "auditor-2"))

		ok, err := policy.IsAuditor(context.Background(), "auditor-1")
		require.NoError(t, err)
		assert.True(t, ok)

		// lookup populated the cached roster set
		members, err := mr.SMembers("roster:" + dict.TypeProjectAuditor)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"auditor-1", "auditor-2"}, members)
	})

	t.Run("warm cache skips the dictionary", func(t *testing.T) {
		policy, mock, mr := setupPolicy(t)
		_, err := mr.SAdd("roster:"+dict.TypeProjectAuditor, "auditor-1")
		require.NoError(t, err)

		ok, err := policy.IsAuditor(context.Background(), "auditor-1")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = policy.IsAuditor(context.Background(), "stranger")
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty user id is never an auditor", func(t *testing.T) {
		policy, _, _ := setupPolicy(t)
		ok, err := policy.IsAuditor(context.Background(), "")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("redis outage degrades to a direct lookup", func(t *testing.T) {
		policy, mock, mr := setupPolicy(t)
		mr.Close()
		mock.ExpectQuery(`SELECT (.+) FROM dict_entries`).
			WillReturnRows(rosterRows("auditor-1"))

		ok, err := policy.IsAuditor(context.Background(), "auditor-1")
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestPolicy_Apply(t *testing.T) {
	t.Run("approval updates the project", func(t *testing.T) {
		policy, mock, mr := setupPolicy(t)
		_, err := mr.SAdd("roster:"+dict.TypeProjectAuditor, "auditor-1")
		require.NoError(t, err)

		mock.ExpectExec(`UPDATE projects`).
			WithArgs("p-1", domain.AuditApproved, "").
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, policy.Apply(context.Background(), "auditor-1", "p-1", DecisionApproved, ""))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejection carries the remark", func(t *testing.T) {
		policy, mock, mr := setupPolicy(t)
		_, err := mr.SAdd("roster:"+dict.TypeProjectAuditor, "auditor-1")
		require.NoError(t, err)

		mock.ExpectExec(`UPDATE projects`).
			WithArgs("p-1", domain.AuditRejected, "scope unclear").
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, policy.Apply(context.Background(), "auditor-1", "p-1", DecisionRejected, "scope unclear"))
	})

	t.Run("outsider is forbidden", func(t *testing.T) {
		policy, mock, mr := setupPolicy(t)
		_, err := mr.SAdd("roster:"+dict.TypeProjectAuditor, "auditor-1")
		require.NoError(t, err)

		err = policy.Apply(context.Background(), "stranger", "p-1", DecisionApproved, "")
		require.ErrorIs(t, err, domain.ErrForbidden)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown decision is invalid", func(t *testing.T) {
		policy, _, _ := setupPolicy(t)
		err := policy.Apply(context.Background(), "auditor-1", "p-1", "hold", "")
		require.ErrorIs(t, err, domain.ErrInvalidArgument)
	})
}
