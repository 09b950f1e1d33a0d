package audit

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fieldwork/fieldwork-backend/internal/dict"
	"github.com/fieldwork/fieldwork-backend/internal/projects/domain"
	"github.com/fieldwork/fieldwork-backend/internal/projects/repository"
)

// Decision values accepted from auditors.
const (
	DecisionApproved = "approved"
	DecisionRejected = "rejected"
)

const (
	rosterKey       = "roster:" + dict.TypeProjectAuditor
	defaultCacheTTL = time.Minute
)

// Policy gates audit operations. The roster of authorized auditors lives
// in the dictionary table and is cached in Redis as a set with a short
// TTL so roster edits take effect without a restart.
type Policy struct {
	dict     *dict.Repo
	rdb      *redis.Client
	projects *repository.ProjectRepository
	cacheTTL time.Duration
}

func NewPolicy(dictRepo *dict.Repo, rdb *redis.Client, projects *repository.ProjectRepository) *Policy {
	return &Policy{
		dict:     dictRepo,
		rdb:      rdb,
		projects: projects,
		cacheTTL: defaultCacheTTL,
	}
}

// IsAuditor reports roster membership for a user.
func (p *Policy) IsAuditor(ctx context.Context, userID string) (bool, error) {
	if userID == "" {
		return false, nil
	}

	if p.rdb != nil {
		n, err := p.rdb.Exists(ctx, rosterKey).Result()
		if err == nil && n > 0 {
			ok, err := p.rdb.SIsMember(ctx, rosterKey, userID).Result()
			if err == nil {
				return ok, nil
			}
		}
		if err != nil {
			log.Printf("auditor roster cache unavailable: %v", err)
		}
	}

	labels, err := p.dict.Labels(ctx, dict.TypeProjectAuditor)
	if err != nil {
		return false, err
	}

	if p.rdb != nil && len(labels) > 0 {
		if err := p.rdb.SAdd(ctx, rosterKey, toAny(labels)...).Err(); err == nil {
			p.rdb.Expire(ctx, rosterKey, p.cacheTTL)
		}
	}

	for _, l := range labels {
		if l == userID {
			return true, nil
		}
	}
	return false, nil
}

// Apply validates and records an auditor's decision on a project.
func (p *Policy) Apply(ctx context.Context, auditorID, projectID, decision, remark string) error {
	var status int
	switch decision {
	case DecisionApproved:
		status = domain.AuditApproved
	case DecisionRejected:
		status = domain.AuditRejected
	default:
		return domain.ErrInvalidArgument
	}

	ok, err := p.IsAuditor(ctx, auditorID)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrForbidden
	}

	return p.projects.SetAudit(ctx, projectID, status, remark)
}

func toAny(ss []string) []interface{} {
	out := make([]interface{}, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
