package domain

import "time"

// Push status values stored on a project. Only open projects show up in
// the public hall.
const (
	PushClosed = 0
	PushOpen   = 1
)

// Audit status values. A freshly created or edited project goes back to
// pending and stays out of the hall until an auditor approves it.
const (
	AuditPending  = 0
	AuditApproved = 1
	AuditRejected = 3
)

// Claim status values recorded in the ledger.
const (
	ClaimRejected = 0
	ClaimAccepted = 1
)

// MaxAnnexes caps how many attachments a single project may carry.
const MaxAnnexes = 3

// Project is a published piece of work looking for a service provider.
type Project struct {
	ID          string    `json:"id"`
	PublisherID string    `json:"publisherId"`
	Name        string    `json:"projectName"`
	Technology  string    `json:"technology"`
	Request     string    `json:"request"`
	Category    string    `json:"category"`
	PushStatus  int       `json:"-"`
	AuditStatus int       `json:"-"`
	AuditRemark string    `json:"auditRemark"`
	CreatedAt   time.Time `json:"createTime"`
	UpdatedAt   time.Time `json:"updateTime"`
}

// Discoverable reports whether the project is visible in the public hall.
func (p *Project) Discoverable() bool {
	return p.PushStatus == PushOpen && p.AuditStatus == AuditApproved
}

// Annex is an image attached to a project. Path is the object-store key;
// AccessURL is a cached presigned link that stops being valid after
// ExpireTime and must be blanked in every read path past that point.
type Annex struct {
	ID         string     `json:"id"`
	ProjectID  string     `json:"projectId"`
	Name       string     `json:"name"`
	Path       string     `json:"-"`
	Thumbnail  []byte     `json:"thumbnail,omitempty"`
	AccessURL  string     `json:"url"`
	ExpireTime *time.Time `json:"expireTime,omitempty"`
}

// Expired reports whether the cached access URL is past its lifetime.
func (a *Annex) Expired(now time.Time) bool {
	return a.ExpireTime != nil && a.ExpireTime.Before(now)
}

// Claim is one provider's take on one project. At most one row exists per
// (ProjectID, ProviderID) pair; the ledger enforces that with a unique
// index. TakenAt is set only on accepted claims.
type Claim struct {
	ID         string     `json:"id"`
	ProjectID  string     `json:"projectId"`
	ProviderID string     `json:"uid"`
	Status     int        `json:"status"`
	TakenAt    *time.Time `json:"takeTime,omitempty"`
}

// Accepted reports whether the provider took the project rather than
// declining it.
func (c *Claim) Accepted() bool {
	return c.Status == ClaimAccepted
}

// CreateProjectInput carries the validated fields for a new project.
type CreateProjectInput struct {
	PublisherID string
	Name        string
	Technology  string
	Request     string
	Category    string
}

// UpdateProjectInput is the patch a publisher may apply. Empty strings
// leave the stored value unchanged, matching the partial-update contract
// of the write endpoints. Any update resets the audit state to pending.
type UpdateProjectInput struct {
	Name       string
	Technology string
	Request    string
	Category   string
}

// Attachment is a raw uploaded file handed to the lifecycle service.
type Attachment struct {
	Name string
	Data []byte
}

// PushStatusLabel maps a stored push status to its external mood.
func PushStatusLabel(status int) string {
	if status == PushOpen {
		return "open"
	}
	return "closed"
}

// AuditStatusLabel maps a stored audit status to its external mood.
func AuditStatusLabel(status int) string {
	switch status {
	case AuditApproved:
		return "approved"
	case AuditRejected:
		return "rejected"
	default:
		return "pending"
	}
}
