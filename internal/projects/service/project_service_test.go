package service_test

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldwork/fieldwork-backend/internal/audit"
	"github.com/fieldwork/fieldwork-backend/internal/dict"
	"github.com/fieldwork/fieldwork-backend/internal/files"
	"github.com/fieldwork/fieldwork-backend/internal/projects/domain"
	"github.com/fieldwork/fieldwork-backend/internal/projects/repository"
	"github.com/fieldwork/fieldwork-backend/internal/projects/service"
	"github.com/fieldwork/fieldwork-backend/internal/users"
)

// fakeStore satisfies files.ObjectStore without a bucket. Every put is
// recorded so assertions can inspect the keys.
type fakeStore struct {
	keys    []string
	putErr  error
	signErr error
}

func (f *fakeStore) Put(_ context.Context, key string, _ []byte) error {
	if f.putErr != nil {
		return f.putErr
	}
	f.keys = append(f.keys, key)
	return nil
}

func (f *fakeStore) PresignedGet(_ context.Context, key string, _ time.Duration) (string, error) {
	if f.signErr != nil {
		return "", f.signErr
	}
	return "http://store.local/" + key, nil
}

type fixture struct {
	svc   *service.ProjectService
	mock  sqlmock.Sqlmock
	store *fakeStore
	db    *sql.DB
}

func newFixture(t *testing.T) *fixture {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	projects := repository.NewProjectRepository(db)
	annexes := repository.NewAnnexRepository(db)
	claims := repository.NewClaimRepository(db)
	userRepo := users.NewRepo(db)
	policy := audit.NewPolicy(dict.NewRepo(db), nil, projects)
	store := &fakeStore{}
	uploader := files.NewUploader(store, annexes, time.Hour)

	svc := service.NewProjectService(projects, annexes, claims, userRepo, policy, uploader, 200000)
	return &fixture{svc: svc, mock: mock, store: store, db: db}
}

func (f *fixture) projectRow(id, publisherID string, push, auditStatus int) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "publisher_id", "name", "technology", "request", "category",
		"push_status", "audit_status", "audit_remark", "created_at", "updated_at",
	}).AddRow(id, publisherID, "Site survey", "drone mapping", "aerial survey of the site", "survey",
		push, auditStatus, "", time.Now(), time.Now())
}

func (f *fixture) expectProfile(userID string, lat, lon *float64) {
	rows := sqlmock.NewRows([]string{
		"id", "user_id", "org_type", "org_name", "technology", "token_sign", "latitude", "longitude",
	}).AddRow("prof-"+userID, userID, 0, "Acme Field Co", "", "", lat, lon)
	f.mock.ExpectQuery(`SELECT (.+) FROM user_profiles`).
		WithArgs(userID).
		WillReturnRows(rows)
}

func (f *fixture) expectAuditorRoster(labels ...string) {
	rows := sqlmock.NewRows([]string{"dict_code", "father_id", "dict_label", "dict_value", "dict_type", "remark"})
	for i, l := range labels {
		rows.AddRow(fmt.Sprintf("d-%d", i), "", l, fmt.Sprintf("%d", i), dict.TypeProjectAuditor, "")
	}
	f.mock.ExpectQuery(`SELECT (.+) FROM dict_entries`).
		WithArgs(dict.TypeProjectAuditor).
		WillReturnRows(rows)
}

func ptr(v float64) *float64 { return &v }

func TestProjectService_Take(t *testing.T) {
	t.Run("second attempt on the same project is a duplicate", func(t *testing.T) {
		f := newFixture(t)
		f.mock.ExpectQuery(`SELECT exists`).
			WithArgs("p-1", "prov-1").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		_, err := f.svc.Take(context.Background(), "prov-1", "p-1", 0, true)
		require.ErrorIs(t, err, domain.ErrDuplicateClaim)
	})

	t.Run("provider beyond the limit is out of range", func(t *testing.T) {
		f := newFixture(t)
		f.mock.ExpectQuery(`SELECT exists`).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		f.mock.ExpectQuery(`SELECT (.+) FROM projects`).
			WithArgs("p-1").
			WillReturnRows(f.projectRow("p-1", "pub-1", domain.PushOpen, domain.AuditApproved))
		// 0.1 degrees of longitude at 30N is roughly 9.6 km
		f.expectProfile("prov-1", ptr(30.0), ptr(120.1))
		f.expectProfile("pub-1", ptr(30.0), ptr(120.0))

		_, err := f.svc.Take(context.Background(), "prov-1", "p-1", 5000, true)
		require.ErrorIs(t, err, domain.ErrOutOfRange)
	})

	t.Run("provider within the limit records an accepted claim", func(t *testing.T) {
		f := newFixture(t)
		f.mock.ExpectQuery(`SELECT exists`).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		f.mock.ExpectQuery(`SELECT (.+) FROM projects`).
			WithArgs("p-1").
			WillReturnRows(f.projectRow("p-1", "pub-1", domain.PushOpen, domain.AuditApproved))
		f.expectProfile("prov-1", ptr(30.0), ptr(120.1))
		f.expectProfile("pub-1", ptr(30.0), ptr(120.0))
		f.mock.ExpectExec(`INSERT INTO project_claims`).
			WithArgs(sqlmock.AnyArg(), "p-1", "prov-1", domain.ClaimAccepted, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		claim, err := f.svc.Take(context.Background(), "prov-1", "p-1", 20000, true)
		require.NoError(t, err)
		assert.True(t, claim.Accepted())
		require.NotNil(t, claim.TakenAt)
		require.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("declined take stores a rejected claim without take time", func(t *testing.T) {
		f := newFixture(t)
		f.mock.ExpectQuery(`SELECT exists`).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		f.mock.ExpectQuery(`SELECT (.+) FROM projects`).
			WithArgs("p-1").
			WillReturnRows(f.projectRow("p-1", "pub-1", domain.PushOpen, domain.AuditApproved))
		f.expectProfile("prov-1", ptr(30.0), ptr(120.0))
		f.expectProfile("pub-1", ptr(30.0), ptr(120.0))
		f.mock.ExpectExec(`INSERT INTO project_claims`).
			WithArgs(sqlmock.AnyArg(), "p-1", "prov-1", domain.ClaimRejected, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		claim, err := f.svc.Take(context.Background(), "prov-1", "p-1", 0, false)
		require.NoError(t, err)
		assert.False(t, claim.Accepted())
		assert.Nil(t, claim.TakenAt)
	})

	t.Run("provider without coordinates cannot take", func(t *testing.T) {
		f := newFixture(t)
		f.mock.ExpectQuery(`SELECT exists`).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		f.mock.ExpectQuery(`SELECT (.+) FROM projects`).
			WithArgs("p-1").
			WillReturnRows(f.projectRow("p-1", "pub-1", domain.PushOpen, domain.AuditApproved))
		f.expectProfile("prov-1", nil, nil)

		_, err := f.svc.Take(context.Background(), "prov-1", "p-1", 0, true)
		require.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestProjectService_Create(t *testing.T) {
	t.Run("four attachments exceed the annex limit", func(t *testing.T) {
		f := newFixture(t)
		atts := make([]domain.Attachment, 4)
		for i := range atts {
			atts[i] = domain.Attachment{Name: fmt.Sprintf("f%d.jpg", i), Data: []byte("x")}
		}

		_, err := f.svc.Create(context.Background(), domain.CreateProjectInput{
			PublisherID: "pub-1", Name: "Site survey",
		}, atts)
		require.ErrorIs(t, err, domain.ErrAnnexLimit)
	})

	t.Run("stores attachments after the insert", func(t *testing.T) {
		f := newFixture(t)
		f.mock.ExpectQuery(`INSERT INTO projects`).
			WillReturnRows(f.projectRow("p-1", "pub-1", domain.PushOpen, domain.AuditPending))
		f.mock.ExpectExec(`INSERT INTO project_annexes`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		p, err := f.svc.Create(context.Background(), domain.CreateProjectInput{
			PublisherID: "pub-1", Name: "Site survey",
		}, []domain.Attachment{{Name: "plan.png", Data: []byte("not really a png")}})
		require.NoError(t, err)
		assert.Equal(t, domain.AuditPending, p.AuditStatus)
		require.Len(t, f.store.keys, 1)
		assert.True(t, strings.HasPrefix(f.store.keys[0], "image/"))
		assert.True(t, strings.HasSuffix(f.store.keys[0], ".png"))
	})
}

func TestProjectService_Update(t *testing.T) {
	t.Run("existing annexes count against the limit", func(t *testing.T) {
		f := newFixture(t)
		f.mock.ExpectQuery(`SELECT (.+) FROM projects`).
			WithArgs("p-1").
			WillReturnRows(f.projectRow("p-1", "pub-1", domain.PushOpen, domain.AuditApproved))
		f.mock.ExpectQuery(`SELECT count`).
			WithArgs("p-1").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

		_, err := f.svc.Update(context.Background(), "p-1", domain.UpdateProjectInput{Name: "Edited"},
			[]domain.Attachment{
				{Name: "a.jpg", Data: []byte("a")},
				{Name: "b.jpg", Data: []byte("b")},
			})
		require.ErrorIs(t, err, domain.ErrAnnexLimit)
	})

	t.Run("edit sends the project back to pending audit", func(t *testing.T) {
		f := newFixture(t)
		f.mock.ExpectQuery(`SELECT (.+) FROM projects`).
			WithArgs("p-1").
			WillReturnRows(f.projectRow("p-1", "pub-1", domain.PushOpen, domain.AuditApproved))
		f.mock.ExpectQuery(`SELECT count`).
			WithArgs("p-1").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

		updated := sqlmock.NewRows([]string{
			"id", "publisher_id", "name", "technology", "request", "category",
			"push_status", "audit_status", "audit_remark", "created_at", "updated_at",
		}).AddRow("p-1", "pub-1", "Edited", "drone mapping", "aerial survey of the site", "survey",
			domain.PushOpen, domain.AuditPending, "", time.Now(), time.Now())
		f.mock.ExpectQuery(`UPDATE projects`).
			WithArgs("p-1", "Edited", "", "", "", domain.AuditPending).
			WillReturnRows(updated)
		f.mock.ExpectExec(`INSERT INTO project_annexes`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		p, err := f.svc.Update(context.Background(), "p-1", domain.UpdateProjectInput{Name: "Edited"},
			[]domain.Attachment{{Name: "c.jpg", Data: []byte("c")}})
		require.NoError(t, err)
		assert.Equal(t, domain.AuditPending, p.AuditStatus)
		assert.False(t, p.Discoverable())
	})
}

func TestProjectService_Hall(t *testing.T) {
	t.Run("without coordinates lists all discoverable projects", func(t *testing.T) {
		f := newFixture(t)
		f.mock.ExpectQuery(`SELECT (.+) FROM projects`).
			WithArgs(domain.PushOpen, domain.AuditApproved, 10, 0).
			WillReturnRows(f.projectRow("p-1", "pub-1", domain.PushOpen, domain.AuditApproved))
		f.mock.ExpectQuery(`SELECT count`).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
		expired := time.Now().Add(-time.Minute)
		annexRows := sqlmock.NewRows([]string{"id", "project_id", "name", "path", "thumbnail", "access_url", "expire_time"}).
			AddRow("a-1", "p-1", "stale.jpg", "image/stale.jpg", nil, "http://stale", expired).
			AddRow("a-2", "p-1", "fresh.jpg", "image/fresh.jpg", nil, "http://fresh", time.Now().Add(time.Hour))
		f.mock.ExpectQuery(`SELECT (.+) FROM project_annexes`).
			WillReturnRows(annexRows)

		views, pg, err := f.svc.Hall(context.Background(), service.HallQuery{Page: 1, Size: 10})
		require.NoError(t, err)
		require.Len(t, views, 1)
		assert.Equal(t, "open", views[0].Status)
		assert.Equal(t, "approved", views[0].AuditStatus)
		assert.EqualValues(t, 1, pg.Total)

		// stale presigned URLs are blanked before they leave the service
		require.Len(t, views[0].AnnexList, 2)
		byID := map[string]string{}
		for _, a := range views[0].AnnexList {
			byID[a.ID] = a.AccessURL
		}
		assert.Empty(t, byID["a-1"])
		assert.Equal(t, "http://fresh", byID["a-2"])
	})

	t.Run("with coordinates restricts the feed by distance", func(t *testing.T) {
		f := newFixture(t)
		f.mock.ExpectQuery(`JOIN user_profiles`).
			WithArgs(30.0, 120.0, 50000.0, domain.PushOpen, domain.AuditApproved, 10, 0).
			WillReturnRows(f.projectRow("p-1", "pub-1", domain.PushOpen, domain.AuditApproved))
		f.mock.ExpectQuery(`SELECT count`).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
		f.mock.ExpectQuery(`SELECT (.+) FROM project_annexes`).
			WillReturnRows(sqlmock.NewRows([]string{"id", "project_id", "name", "path", "thumbnail", "access_url", "expire_time"}))

		views, _, err := f.svc.Hall(context.Background(), service.HallQuery{
			Page: 1, Size: 10, RadiusMeters: 50000, Latitude: ptr(30.0), Longitude: ptr(120.0),
		})
		require.NoError(t, err)
		assert.Len(t, views, 1)
		require.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("rejects coordinates off the globe", func(t *testing.T) {
		f := newFixture(t)
		_, _, err := f.svc.Hall(context.Background(), service.HallQuery{
			Page: 1, Size: 10, Latitude: ptr(95.0), Longitude: ptr(120.0),
		})
		require.ErrorIs(t, err, domain.ErrInvalidArgument)
	})
}

func TestProjectService_MyProjects(t *testing.T) {
	t.Run("page math reports the page count", func(t *testing.T) {
		f := newFixture(t)
		f.mock.ExpectQuery(`SELECT (.+) FROM projects`).
			WithArgs("pub-1", "", 10, 0).
			WillReturnRows(f.projectRow("p-1", "pub-1", domain.PushOpen, domain.AuditApproved))
		f.mock.ExpectQuery(`SELECT count`).
			WithArgs("pub-1", "").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(25))

		_, pg, err := f.svc.MyProjects(context.Background(), "pub-1", "", 1, 10)
		require.NoError(t, err)
		assert.EqualValues(t, 25, pg.Total)
		assert.Equal(t, 3, pg.Count)
		assert.Equal(t, 10, pg.Size)
	})
}

func TestProjectService_AuditList(t *testing.T) {
	t.Run("non-roster caller is forbidden", func(t *testing.T) {
		f := newFixture(t)
		f.expectAuditorRoster("auditor-1", "auditor-2")

		_, _, err := f.svc.AuditList(context.Background(), "someone-else", 1, 10)
		require.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("roster member sees the pending queue", func(t *testing.T) {
		f := newFixture(t)
		f.expectAuditorRoster("auditor-1")
		f.mock.ExpectQuery(`SELECT (.+) FROM projects`).
			WithArgs(domain.AuditPending, 10, 0).
			WillReturnRows(f.projectRow("p-1", "pub-1", domain.PushOpen, domain.AuditPending))
		f.mock.ExpectQuery(`SELECT count`).
			WithArgs(domain.AuditPending).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
		f.mock.ExpectQuery(`SELECT (.+) FROM user_profiles`).
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "org_name"}).AddRow("pub-1", "Acme Field Co"))

		rows, pg, err := f.svc.AuditList(context.Background(), "auditor-1", 1, 10)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "pending", rows[0].AuditStatus)
		assert.Equal(t, "Acme Field Co", rows[0].Publisher)
		assert.EqualValues(t, 1, pg.Total)
	})
}

func TestProjectService_ApplyAudit(t *testing.T) {
	t.Run("unknown decision is invalid", func(t *testing.T) {
		f := newFixture(t)
		err := f.svc.ApplyAudit(context.Background(), "auditor-1", "p-1", "maybe", "")
		require.ErrorIs(t, err, domain.ErrInvalidArgument)
	})

	t.Run("roster member can approve", func(t *testing.T) {
		f := newFixture(t)
		f.expectAuditorRoster("auditor-1")
		f.mock.ExpectExec(`UPDATE projects`).
			WithArgs("p-1", domain.AuditApproved, "looks good").
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, f.svc.ApplyAudit(context.Background(), "auditor-1", "p-1", audit.DecisionApproved, "looks good"))
		require.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("roster member can reject with a remark", func(t *testing.T) {
		f := newFixture(t)
		f.expectAuditorRoster("auditor-1")
		f.mock.ExpectExec(`UPDATE projects`).
			WithArgs("p-1", domain.AuditRejected, "missing detail").
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, f.svc.ApplyAudit(context.Background(), "auditor-1", "p-1", audit.DecisionRejected, "missing detail"))
	})
}

func TestProjectService_SetPush(t *testing.T) {
	t.Run("rejects unknown status values", func(t *testing.T) {
		f := newFixture(t)
		require.ErrorIs(t, f.svc.SetPush(context.Background(), "p-1", 7), domain.ErrInvalidArgument)
	})

	t.Run("closes an open project", func(t *testing.T) {
		f := newFixture(t)
		f.mock.ExpectExec(`UPDATE projects`).
			WithArgs("p-1", domain.PushClosed).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, f.svc.SetPush(context.Background(), "p-1", domain.PushClosed))
	})
}

func TestProjectService_MyTakenProjects(t *testing.T) {
	f := newFixture(t)
	now := time.Now()

	claimRows := sqlmock.NewRows([]string{"id", "project_id", "uid", "status", "taken_at"}).
		AddRow("c-1", "p-1", "prov-1", domain.ClaimAccepted, now)
	f.mock.ExpectQuery(`SELECT (.+) FROM project_claims`).
		WithArgs("prov-1", domain.ClaimAccepted, 10, 0).
		WillReturnRows(claimRows)
	f.mock.ExpectQuery(`SELECT count`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	f.mock.ExpectQuery(`SELECT (.+) FROM projects`).
		WillReturnRows(f.projectRow("p-1", "pub-1", domain.PushOpen, domain.AuditApproved))
	f.mock.ExpectQuery(`SELECT (.+) FROM project_annexes`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "project_id", "name", "path", "thumbnail", "access_url", "expire_time"}))
	f.mock.ExpectQuery(`SELECT (.+) FROM users`).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "user_name", "phone_number"}).
			AddRow("pub-1", "Pat Publisher", "13800000000"))

	views, pg, err := f.svc.MyTakenProjects(context.Background(), "prov-1", 1, 10)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "Site survey", views[0].ProjectName)
	assert.Equal(t, "Pat Publisher", views[0].Contact)
	assert.Equal(t, "13800000000", views[0].Phone)
	require.NotNil(t, views[0].TakeTime)
	assert.EqualValues(t, 1, pg.Total)
}

func TestProjectService_Detail(t *testing.T) {
	f := newFixture(t)
	now := time.Now()

	f.mock.ExpectQuery(`SELECT (.+) FROM projects`).
		WithArgs("p-1").
		WillReturnRows(f.projectRow("p-1", "pub-1", domain.PushOpen, domain.AuditApproved))
	f.mock.ExpectQuery(`SELECT (.+) FROM project_annexes`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "project_id", "name", "path", "thumbnail", "access_url", "expire_time"}).
			AddRow("a-1", "p-1", "plan.jpg", "image/plan.jpg", nil, "http://gone", now.Add(-time.Hour)))
	f.mock.ExpectQuery(`SELECT (.+) FROM project_claims`).
		WithArgs("p-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "project_id", "uid", "status", "taken_at"}).
			AddRow("c-1", "p-1", "prov-1", domain.ClaimAccepted, now))
	f.mock.ExpectQuery(`SELECT (.+) FROM users`).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "user_name", "phone_number"}).
			AddRow("prov-1", "Riley Provider", "13900000000"))

	detail, err := f.svc.Detail(context.Background(), "p-1")
	require.NoError(t, err)
	assert.Equal(t, "Site survey", detail.ProjectName)
	require.Len(t, detail.AnnexList, 1)
	assert.Empty(t, detail.AnnexList[0].AccessURL)
	require.Len(t, detail.ClaimList, 1)
	assert.Equal(t, "Riley Provider", detail.ClaimList[0].Name)
	require.NotNil(t, detail.ClaimList[0].TakeTime)
}
