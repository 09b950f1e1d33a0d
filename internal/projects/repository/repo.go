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

// sphereDistanceSQL mirrors geo.DistanceMeters (spherical law of cosines,
// R = 6371000 m) so the hall's near filter and the claim distance gate
// agree. $1 = latitude, $2 = longitude of the query center.
const sphereDistanceSQL = `6371000 * acos(least(1.0, greatest(-1.0,
	cos(radians($1)) * cos(radians(up.latitude)) * cos(radians(up.longitude) - radians($2))
	+ sin(radians($1)) * sin(radians(up.latitude)))))`

const projectColumns = `id, publisher_id, name, technology, request, category,
	push_status, audit_status, audit_remark, created_at, updated_at`

// ProjectRepository provides persistence operations for projects and
// their annexes.
type ProjectRepository struct {
	db *sql.DB
}

// NewProjectRepository creates a new project repository
func NewProjectRepository(db *sql.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

// Create inserts a new project. New projects start open and pending
// audit; they only reach the hall once an auditor approves them.
func (r *ProjectRepository) Create(ctx context.Context, in domain.CreateProjectInput) (*domain.Project, error) {
	if in.Name == "" {
		return nil, fmt.Errorf("%w: name required", domain.ErrInvalidArgument)
	}
	if in.PublisherID == "" {
		return nil, fmt.Errorf("%w: publisher id required", domain.ErrInvalidArgument)
	}

	const q = `
INSERT INTO projects (id, publisher_id, name, technology, request, category, push_status, audit_status, audit_remark)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, '')
RETURNING ` + projectColumns + `;
`
	var p domain.Project
	err := r.db.QueryRowContext(ctx, q,
		uuid.New().String(), in.PublisherID, in.Name, in.Technology, in.Request, in.Category,
		domain.PushOpen, domain.AuditPending).
		Scan(&p.ID, &p.PublisherID, &p.Name, &p.Technology, &p.Request, &p.Category,
			&p.PushStatus, &p.AuditStatus, &p.AuditRemark, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: create project: %v", domain.ErrStorage, err)
	}
	return &p, nil
}

// FindByID returns a single project or domain.ErrNotFound.
func (r *ProjectRepository) FindByID(ctx context.Context, id string) (*domain.Project, error) {
	const q = `
SELECT ` + projectColumns + `
FROM projects
WHERE id = $1;
`
	var p domain.Project
	err := r.db.QueryRowContext(ctx, q, id).
		Scan(&p.ID, &p.PublisherID, &p.Name, &p.Technology, &p.Request, &p.Category,
			&p.PushStatus, &p.AuditStatus, &p.AuditRemark, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: find project: %v", domain.ErrStorage, err)
	}
	return &p, nil
}

// Update applies the publisher's patch. Empty patch fields keep the
// stored value. Every content edit is a one-way transition back to
// pending audit with the remark cleared.
func (r *ProjectRepository) Update(ctx context.Context, id string, in domain.UpdateProjectInput) (*domain.Project, error) {
	const q = `
UPDATE projects
SET name = coalesce(nullif($2, ''), name),
    technology = coalesce(nullif($3, ''), technology),
    request = coalesce(nullif($4, ''), request),
    category = coalesce(nullif($5, ''), category),
    audit_status = $6,
    audit_remark = '',
    updated_at = now()
WHERE id = $1
RETURNING ` + projectColumns + `;
`
	var p domain.Project
	err := r.db.QueryRowContext(ctx, q, id, in.Name, in.Technology, in.Request, in.Category, domain.AuditPending).
		Scan(&p.ID, &p.PublisherID, &p.Name, &p.Technology, &p.Request, &p.Category,
			&p.PushStatus, &p.AuditStatus, &p.AuditRemark, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: update project: %v", domain.ErrStorage, err)
	}
	return &p, nil
}

// SetPush toggles hall visibility for a project.
func (r *ProjectRepository) SetPush(ctx context.Context, id string, status int) error {
	const q = `
UPDATE projects
SET push_status = $2, updated_at = now()
WHERE id = $1;
`
	res, err := r.db.ExecContext(ctx, q, id, status)
	if err != nil {
		return fmt.Errorf("%w: set push: %v", domain.ErrStorage, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SetAudit records an auditor's decision. The policy layer has already
// authorized the caller and validated the decision value.
func (r *ProjectRepository) SetAudit(ctx context.Context, id string, status int, remark string) error {
	const q = `
UPDATE projects
SET audit_status = $2, audit_remark = $3, updated_at = now()
WHERE id = $1;
`
	res, err := r.db.ExecContext(ctx, q, id, status, remark)
	if err != nil {
		return fmt.Errorf("%w: set audit: %v", domain.ErrStorage, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Delete removes the project and cascades to its annexes explicitly;
// annex ownership is a plain foreign key, not an engine constraint.
func (r *ProjectRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM projects WHERE id = $1;`, id); err != nil {
		return fmt.Errorf("%w: delete project: %v", domain.ErrStorage, err)
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM project_annexes WHERE project_id = $1;`, id); err != nil {
		return fmt.Errorf("%w: delete project annexes: %v", domain.ErrStorage, err)
	}
	return nil
}

// ListDiscoverable returns the public hall page: open, approved, newest
// first.
func (r *ProjectRepository) ListDiscoverable(ctx context.Context, page, size int) ([]domain.Project, int64, error) {
	const q = `
SELECT ` + projectColumns + `
FROM projects
WHERE push_status = $1 AND audit_status = $2
ORDER BY created_at DESC
LIMIT $3 OFFSET $4;
`
	rows, err := r.db.QueryContext(ctx, q, domain.PushOpen, domain.AuditApproved, size, offset(page, size))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: list discoverable: %v", domain.ErrStorage, err)
	}
	out, err := scanProjects(rows)
	if err != nil {
		return nil, 0, err
	}

	const cq = `
SELECT count(*) FROM projects
WHERE push_status = $1 AND audit_status = $2;
`
	var total int64
	if err := r.db.QueryRowContext(ctx, cq, domain.PushOpen, domain.AuditApproved).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("%w: count discoverable: %v", domain.ErrStorage, err)
	}
	return out, total, nil
}

// FindNear returns discoverable projects whose publisher's profile
// coordinate lies within radiusMeters of the center, newest first. The
// count query repeats the same predicate so totals stay consistent with
// the page.
func (r *ProjectRepository) FindNear(ctx context.Context, lat, lon, radiusMeters float64, page, size int) ([]domain.Project, int64, error) {
	const q = `
SELECT p.id, p.publisher_id, p.name, p.technology, p.request, p.category,
	p.push_status, p.audit_status, p.audit_remark, p.created_at, p.updated_at
FROM projects p
JOIN user_profiles up ON up.user_id = p.publisher_id
JOIN users u ON u.user_id = up.user_id AND u.status = 0
WHERE p.push_status = $4 AND p.audit_status = $5
  AND up.latitude IS NOT NULL AND up.longitude IS NOT NULL
  AND ` + sphereDistanceSQL + ` <= $3
ORDER BY p.created_at DESC
LIMIT $6 OFFSET $7;
`
	rows, err := r.db.QueryContext(ctx, q, lat, lon, radiusMeters,
		domain.PushOpen, domain.AuditApproved, size, offset(page, size))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: find near: %v", domain.ErrStorage, err)
	}
	out, err := scanProjects(rows)
	if err != nil {
		return nil, 0, err
	}

	const cq = `
SELECT count(*)
FROM projects p
JOIN user_profiles up ON up.user_id = p.publisher_id
JOIN users u ON u.user_id = up.user_id AND u.status = 0
WHERE p.push_status = $4 AND p.audit_status = $5
  AND up.latitude IS NOT NULL AND up.longitude IS NOT NULL
  AND ` + sphereDistanceSQL + ` <= $3;
`
	var total int64
	if err := r.db.QueryRowContext(ctx, cq, lat, lon, radiusMeters,
		domain.PushOpen, domain.AuditApproved).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("%w: count near: %v", domain.ErrStorage, err)
	}
	return out, total, nil
}

// FindByIDs batches project lookups for the claim views. Missing ids are
// simply absent from the result.
func (r *ProjectRepository) FindByIDs(ctx context.Context, ids []string) (map[string]domain.Project, error) {
	if len(ids) == 0 {
		return map[string]domain.Project{}, nil
	}

	const q = `
SELECT ` + projectColumns + `
FROM projects
WHERE id = ANY($1);
`
	rows, err := r.db.QueryContext(ctx, q, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("%w: find projects: %v", domain.ErrStorage, err)
	}
	list, err := scanProjects(rows)
	if err != nil {
		return nil, err
	}

	out := make(map[string]domain.Project, len(list))
	for _, p := range list {
		out[p.ID] = p
	}
	return out, nil
}

// ListByPublisher returns one publisher's projects, optionally filtered
// by exact name.
func (r *ProjectRepository) ListByPublisher(ctx context.Context, publisherID, name string, page, size int) ([]domain.Project, int64, error) {
	const q = `
SELECT ` + projectColumns + `
FROM projects
WHERE publisher_id = $1 AND ($2 = '' OR name = $2)
ORDER BY created_at DESC
LIMIT $3 OFFSET $4;
`
	rows, err := r.db.QueryContext(ctx, q, publisherID, name, size, offset(page, size))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: list by publisher: %v", domain.ErrStorage, err)
	}
	out, err := scanProjects(rows)
	if err != nil {
		return nil, 0, err
	}

	const cq = `
SELECT count(*) FROM projects
WHERE publisher_id = $1 AND ($2 = '' OR name = $2);
`
	var total int64
	if err := r.db.QueryRowContext(ctx, cq, publisherID, name).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("%w: count by publisher: %v", domain.ErrStorage, err)
	}
	return out, total, nil
}

// ListPendingAudit returns projects waiting for a decision, oldest edits
// included; auditors work the queue in creation order.
func (r *ProjectRepository) ListPendingAudit(ctx context.Context, page, size int) ([]domain.Project, int64, error) {
	const q = `
SELECT ` + projectColumns + `
FROM projects
WHERE audit_status = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3;
`
	rows, err := r.db.QueryContext(ctx, q, domain.AuditPending, size, offset(page, size))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: list pending audit: %v", domain.ErrStorage, err)
	}
	out, err := scanProjects(rows)
	if err != nil {
		return nil, 0, err
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM projects WHERE audit_status = $1;`,
		domain.AuditPending).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("%w: count pending audit: %v", domain.ErrStorage, err)
	}
	return out, total, nil
}

func scanProjects(rows *sql.Rows) ([]domain.Project, error) {
	defer rows.Close()

	out := make([]domain.Project, 0, 16)
	for rows.Next() {
		var p domain.Project
		if err := rows.Scan(&p.ID, &p.PublisherID, &p.Name, &p.Technology, &p.Request, &p.Category,
			&p.PushStatus, &p.AuditStatus, &p.AuditRemark, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("%w: scan project: %v", domain.ErrStorage, err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return out, nil
}

func offset(page, size int) int {
	if page < 1 {
		page = 1
	}
	return (page - 1) * size
}
