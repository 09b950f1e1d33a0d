package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/fieldwork/fieldwork-backend/internal/projects/domain"
)

const claimColumns = `id, project_id, uid, status, taken_at`

// ClaimRepository is the claim ledger. Uniqueness of (project_id, uid) is
// enforced by the database index, so two racing attempts cannot both
// insert; the loser's unique violation comes back as ErrDuplicateClaim.
type ClaimRepository struct {
	db *sql.DB
}

func NewClaimRepository(db *sql.DB) *ClaimRepository {
	return &ClaimRepository{db: db}
}

// Exists reports whether any claim row is already recorded for the pair,
// regardless of its status.
func (r *ClaimRepository) Exists(ctx context.Context, projectID, providerID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT exists(SELECT 1 FROM project_claims WHERE project_id = $1 AND uid = $2);`,
		projectID, providerID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("%w: claim exists: %v", domain.ErrStorage, err)
	}
	return exists, nil
}

// Create inserts the claim. taken_at is only recorded for accepted
// claims.
func (r *ClaimRepository) Create(ctx context.Context, projectID, providerID string, accept bool) (*domain.Claim, error) {
	c := &domain.Claim{
		ID:         uuid.New().String(),
		ProjectID:  projectID,
		ProviderID: providerID,
		Status:     domain.ClaimRejected,
	}
	if accept {
		c.Status = domain.ClaimAccepted
		now := time.Now()
		c.TakenAt = &now
	}

	const q = `
INSERT INTO project_claims (id, project_id, uid, status, taken_at)
VALUES ($1, $2, $3, $4, $5);
`
	_, err := r.db.ExecContext(ctx, q, c.ID, c.ProjectID, c.ProviderID, c.Status, c.TakenAt)
	if err != nil {
		// unique violation on (project_id, uid) → the pair already claimed
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, domain.ErrDuplicateClaim
		}
		return nil, fmt.Errorf("%w: create claim: %v", domain.ErrStorage, err)
	}
	return c, nil
}

// ListAcceptedByProvider pages one provider's accepted claims, most
// recently taken first.
func (r *ClaimRepository) ListAcceptedByProvider(ctx context.Context, providerID string, page, size int) ([]domain.Claim, int64, error) {
	const q = `
SELECT ` + claimColumns + `
FROM project_claims
WHERE uid = $1 AND status = $2
ORDER BY taken_at DESC
LIMIT $3 OFFSET $4;
`
	rows, err := r.db.QueryContext(ctx, q, providerID, domain.ClaimAccepted, size, offset(page, size))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: list claims by provider: %v", domain.ErrStorage, err)
	}
	out, err := scanClaims(rows)
	if err != nil {
		return nil, 0, err
	}

	var total int64
	err = r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM project_claims WHERE uid = $1 AND status = $2;`,
		providerID, domain.ClaimAccepted).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: count claims by provider: %v", domain.ErrStorage, err)
	}
	return out, total, nil
}

// ListByProject returns every claim recorded against a project.
func (r *ClaimRepository) ListByProject(ctx context.Context, projectID string) ([]domain.Claim, error) {
	const q = `
SELECT ` + claimColumns + `
FROM project_claims
WHERE project_id = $1;
`
	rows, err := r.db.QueryContext(ctx, q, projectID)
	if err != nil {
		return nil, fmt.Errorf("%w: list claims by project: %v", domain.ErrStorage, err)
	}
	return scanClaims(rows)
}

func scanClaims(rows *sql.Rows) ([]domain.Claim, error) {
	defer rows.Close()

	out := make([]domain.Claim, 0, 8)
	for rows.Next() {
		var c domain.Claim
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.ProviderID, &c.Status, &c.TakenAt); err != nil {
			return nil, fmt.Errorf("%w: scan claim: %v", domain.ErrStorage, err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return out, nil
}
