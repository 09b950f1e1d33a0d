package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/fieldwork/fieldwork-backend/internal/projects/domain"
)

const annexColumns = `id, project_id, name, path, thumbnail, access_url, expire_time`

// AnnexRepository persists annex metadata. The binary payload lives in
// the object store; only the key, a cached thumbnail and a presigned URL
// are stored here.
type AnnexRepository struct {
	db *sql.DB
}

func NewAnnexRepository(db *sql.DB) *AnnexRepository {
	return &AnnexRepository{db: db}
}

// Add inserts annex metadata, refusing the insert when the project
// already holds domain.MaxAnnexes. The guard runs inside the INSERT so
// two concurrent uploads cannot both slip past the count.
func (r *AnnexRepository) Add(ctx context.Context, a *domain.Annex) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}

	const q = `
INSERT INTO project_annexes (id, project_id, name, path, thumbnail, access_url, expire_time)
SELECT $1, $2, $3, $4, $5, $6, $7
WHERE (SELECT count(*) FROM project_annexes WHERE project_id = $2) < $8;
`
	res, err := r.db.ExecContext(ctx, q,
		a.ID, a.ProjectID, a.Name, a.Path, a.Thumbnail, a.AccessURL, a.ExpireTime, domain.MaxAnnexes)
	if err != nil {
		return fmt.Errorf("%w: add annex: %v", domain.ErrStorage, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrAnnexLimit
	}
	return nil
}

// CountByProject returns how many annexes a project currently holds.
func (r *AnnexRepository) CountByProject(ctx context.Context, projectID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM project_annexes WHERE project_id = $1;`, projectID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("%w: count annexes: %v", domain.ErrStorage, err)
	}
	return n, nil
}

// FindByID returns a single annex scoped to its project.
func (r *AnnexRepository) FindByID(ctx context.Context, projectID, id string) (*domain.Annex, error) {
	const q = `
SELECT ` + annexColumns + `
FROM project_annexes
WHERE id = $1 AND project_id = $2;
`
	var a domain.Annex
	err := r.db.QueryRowContext(ctx, q, id, projectID).
		Scan(&a.ID, &a.ProjectID, &a.Name, &a.Path, &a.Thumbnail, &a.AccessURL, &a.ExpireTime)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: find annex: %v", domain.ErrStorage, err)
	}
	return &a, nil
}

// ListByProject returns all annexes of one project.
func (r *AnnexRepository) ListByProject(ctx context.Context, projectID string) ([]domain.Annex, error) {
	const q = `
SELECT ` + annexColumns + `
FROM project_annexes
WHERE project_id = $1;
`
	rows, err := r.db.QueryContext(ctx, q, projectID)
	if err != nil {
		return nil, fmt.Errorf("%w: list annexes: %v", domain.ErrStorage, err)
	}
	return scanAnnexes(rows)
}

// ListByProjects batches the annex lookup for a feed page.
func (r *AnnexRepository) ListByProjects(ctx context.Context, projectIDs []string) (map[string][]domain.Annex, error) {
	if len(projectIDs) == 0 {
		return map[string][]domain.Annex{}, nil
	}

	const q = `
SELECT ` + annexColumns + `
FROM project_annexes
WHERE project_id = ANY($1);
`
	rows, err := r.db.QueryContext(ctx, q, pq.Array(projectIDs))
	if err != nil {
		return nil, fmt.Errorf("%w: list annexes batch: %v", domain.ErrStorage, err)
	}
	list, err := scanAnnexes(rows)
	if err != nil {
		return nil, err
	}

	out := make(map[string][]domain.Annex, len(projectIDs))
	for _, a := range list {
		out[a.ProjectID] = append(out[a.ProjectID], a)
	}
	return out, nil
}

// Delete removes a single annex row.
func (r *AnnexRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM project_annexes WHERE id = $1;`, id)
	if err != nil {
		return fmt.Errorf("%w: delete annex: %v", domain.ErrStorage, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SetAccessURL refreshes the cached presigned URL and its lifetime.
func (r *AnnexRepository) SetAccessURL(ctx context.Context, id, url string, expire sql.NullTime) error {
	const q = `
UPDATE project_annexes
SET access_url = $2, expire_time = $3
WHERE id = $1;
`
	res, err := r.db.ExecContext(ctx, q, id, url, expire)
	if err != nil {
		return fmt.Errorf("%w: set access url: %v", domain.ErrStorage, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// BlankExpiredURLs clears cached URLs whose lifetime has passed. Run
// periodically by the sweeper; read paths blank on the fly regardless.
func (r *AnnexRepository) BlankExpiredURLs(ctx context.Context) (int64, error) {
	const q = `
UPDATE project_annexes
SET access_url = ''
WHERE access_url <> '' AND expire_time IS NOT NULL AND expire_time < now();
`
	res, err := r.db.ExecContext(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("%w: blank expired urls: %v", domain.ErrStorage, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func scanAnnexes(rows *sql.Rows) ([]domain.Annex, error) {
	defer rows.Close()

	out := make([]domain.Annex, 0, 8)
	for rows.Next() {
		var a domain.Annex
		if err := rows.Scan(&a.ID, &a.ProjectID, &a.Name, &a.Path, &a.Thumbnail, &a.AccessURL, &a.ExpireTime); err != nil {
			return nil, fmt.Errorf("%w: scan annex: %v", domain.ErrStorage, err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return out, nil
}
