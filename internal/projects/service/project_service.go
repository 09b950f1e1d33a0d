package service

import (
	"context"
	"fmt"
	"time"

	"github.com/fieldwork/fieldwork-backend/internal/audit"
	"github.com/fieldwork/fieldwork-backend/internal/files"
	"github.com/fieldwork/fieldwork-backend/internal/geo"
	"github.com/fieldwork/fieldwork-backend/internal/projects/domain"
	"github.com/fieldwork/fieldwork-backend/internal/projects/repository"
	"github.com/fieldwork/fieldwork-backend/internal/users"
)

// ProjectService orchestrates the project lifecycle: hall discovery,
// publisher CRUD, the audit gate and the claim protocol.
type ProjectService struct {
	projects *repository.ProjectRepository
	annexes  *repository.AnnexRepository
	claims   *repository.ClaimRepository
	users    *users.Repo
	policy   *audit.Policy
	uploader *files.Uploader

	// defaultMaxDistance is the claim radius applied when the caller
	// does not supply one, in meters.
	defaultMaxDistance float64
}

func NewProjectService(
	projects *repository.ProjectRepository,
	annexes *repository.AnnexRepository,
	claims *repository.ClaimRepository,
	userRepo *users.Repo,
	policy *audit.Policy,
	uploader *files.Uploader,
	defaultMaxDistance float64,
) *ProjectService {
	if defaultMaxDistance <= 0 {
		defaultMaxDistance = 200000
	}
	return &ProjectService{
		projects:           projects,
		annexes:            annexes,
		claims:             claims,
		users:              userRepo,
		policy:             policy,
		uploader:           uploader,
		defaultMaxDistance: defaultMaxDistance,
	}
}

// Page describes one slice of a paginated listing.
type Page struct {
	Total   int64 `json:"total"`
	Current int   `json:"currentPage"`
	Size    int   `json:"pageSize"`
	Count   int   `json:"pageCount"`
}

func pageOf(total int64, page, size int) Page {
	if page < 1 {
		page = 1
	}
	count := int((total + int64(size) - 1) / int64(size))
	return Page{Total: total, Current: page, Size: size, Count: count}
}

// ProjectView is the external shape of a project: internal name becomes
// projectName, numeric statuses become their moods.
type ProjectView struct {
	ID          string         `json:"id"`
	PublisherID string         `json:"publisherId"`
	ProjectName string         `json:"projectName"`
	Technology  string         `json:"technology"`
	Request     string         `json:"request"`
	Category    string         `json:"category"`
	Status      string         `json:"status"`
	AuditStatus string         `json:"auditStatus"`
	AuditRemark string         `json:"auditRemark"`
	CreateTime  time.Time      `json:"createTime"`
	AnnexList   []domain.Annex `json:"annexList"`
}

func viewOf(p *domain.Project, annexes []domain.Annex) ProjectView {
	if annexes == nil {
		annexes = []domain.Annex{}
	}
	return ProjectView{
		ID:          p.ID,
		PublisherID: p.PublisherID,
		ProjectName: p.Name,
		Technology:  p.Technology,
		Request:     p.Request,
		Category:    p.Category,
		Status:      domain.PushStatusLabel(p.PushStatus),
		AuditStatus: domain.AuditStatusLabel(p.AuditStatus),
		AuditRemark: p.AuditRemark,
		CreateTime:  p.CreatedAt,
		AnnexList:   annexes,
	}
}

// blankExpired nulls out cached access URLs whose lifetime has passed.
// Every read path applies this before returning annexes.
func blankExpired(annexes []domain.Annex, now time.Time) []domain.Annex {
	for i := range annexes {
		if annexes[i].Expired(now) {
			annexes[i].AccessURL = ""
		}
	}
	return annexes
}

// HallQuery selects a hall page. When both coordinates are set the feed
// is restricted to projects whose publisher is within RadiusMeters.
type HallQuery struct {
	Page         int
	Size         int
	RadiusMeters float64
	Latitude     *float64
	Longitude    *float64
}

// Hall returns the public feed of open, approved projects, newest first,
// each joined with its annex list.
func (s *ProjectService) Hall(ctx context.Context, q HallQuery) ([]ProjectView, Page, error) {
	page, size := normalize(q.Page, q.Size)

	var (
		records []domain.Project
		total   int64
		err     error
	)
	if q.Latitude != nil && q.Longitude != nil {
		center := geo.Point{Latitude: *q.Latitude, Longitude: *q.Longitude}
		if !center.Valid() {
			return nil, Page{}, fmt.Errorf("%w: coordinates out of range", domain.ErrInvalidArgument)
		}
		radius := q.RadiusMeters
		if radius <= 0 {
			radius = s.defaultMaxDistance
		}
		records, total, err = s.projects.FindNear(ctx, center.Latitude, center.Longitude, radius, page, size)
	} else {
		records, total, err = s.projects.ListDiscoverable(ctx, page, size)
	}
	if err != nil {
		return nil, Page{}, err
	}

	views, err := s.joinAnnexes(ctx, records)
	if err != nil {
		return nil, Page{}, err
	}
	return views, pageOf(total, page, size), nil
}

// ProjectSummary is the publisher's own listing row: no technology or
// request body, just enough to manage the project.
type ProjectSummary struct {
	ID          string    `json:"id"`
	ProjectName string    `json:"projectName"`
	Category    string    `json:"category"`
	Status      string    `json:"status"`
	AuditStatus string    `json:"auditStatus"`
	AuditRemark string    `json:"auditRemark"`
	CreateTime  time.Time `json:"createTime"`
}

// MyProjects lists one publisher's projects with the presentation
// mapping applied.
func (s *ProjectService) MyProjects(ctx context.Context, publisherID, nameFilter string, pageNo, pageSize int) ([]ProjectSummary, Page, error) {
	page, size := normalize(pageNo, pageSize)

	records, total, err := s.projects.ListByPublisher(ctx, publisherID, nameFilter, page, size)
	if err != nil {
		return nil, Page{}, err
	}

	out := make([]ProjectSummary, 0, len(records))
	for _, p := range records {
		out = append(out, ProjectSummary{
			ID:          p.ID,
			ProjectName: p.Name,
			Category:    p.Category,
			Status:      domain.PushStatusLabel(p.PushStatus),
			AuditStatus: domain.AuditStatusLabel(p.AuditStatus),
			AuditRemark: p.AuditRemark,
			CreateTime:  p.CreatedAt,
		})
	}
	return out, pageOf(total, page, size), nil
}

// Claimant is one provider who recorded a claim on a project.
type Claimant struct {
	Name     string     `json:"name"`
	Phone    string     `json:"phone"`
	TakeTime *time.Time `json:"takeTime,omitempty"`
}

// ProjectDetail is the full record with annexes and the claim roster.
type ProjectDetail struct {
	ProjectView
	ClaimList []Claimant `json:"claimList"`
}

// Detail returns one project with its annex list and the roster of
// providers who claimed it.
func (s *ProjectService) Detail(ctx context.Context, id string) (*ProjectDetail, error) {
	p, err := s.projects.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	annexes, err := s.annexes.ListByProject(ctx, id)
	if err != nil {
		return nil, err
	}
	annexes = blankExpired(annexes, time.Now())

	claims, err := s.claims.ListByProject(ctx, id)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(claims))
	for _, c := range claims {
		ids = append(ids, c.ProviderID)
	}
	contacts, err := s.users.ContactsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	claimList := make([]Claimant, 0, len(claims))
	for _, c := range claims {
		contact := contacts[c.ProviderID]
		claimList = append(claimList, Claimant{
			Name:     contact.Name,
			Phone:    contact.Phone,
			TakeTime: c.TakenAt,
		})
	}

	return &ProjectDetail{ProjectView: viewOf(p, annexes), ClaimList: claimList}, nil
}

// Create persists a new project and stores its attachments. The project
// starts pending audit; approval is the auditors' call.
func (s *ProjectService) Create(ctx context.Context, in domain.CreateProjectInput, attachments []domain.Attachment) (*domain.Project, error) {
	if len(attachments) > domain.MaxAnnexes {
		return nil, domain.ErrAnnexLimit
	}

	p, err := s.projects.Create(ctx, in)
	if err != nil {
		return nil, err
	}

	// Attachments already stored stay stored if a later one fails; the
	// request surfaces the failure and the client retries the rest.
	for _, att := range attachments {
		if _, err := s.uploader.UploadAnnex(ctx, p.ID, att); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Update patches a project, resets its audit state to pending and
// appends new attachments within the annex limit.
func (s *ProjectService) Update(ctx context.Context, id string, in domain.UpdateProjectInput, attachments []domain.Attachment) (*domain.Project, error) {
	if _, err := s.projects.FindByID(ctx, id); err != nil {
		return nil, err
	}

	count, err := s.annexes.CountByProject(ctx, id)
	if err != nil {
		return nil, err
	}
	if count+len(attachments) > domain.MaxAnnexes {
		return nil, domain.ErrAnnexLimit
	}

	p, err := s.projects.Update(ctx, id, in)
	if err != nil {
		return nil, err
	}

	for _, att := range attachments {
		if _, err := s.uploader.UploadAnnex(ctx, id, att); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// SetPush toggles hall visibility.
func (s *ProjectService) SetPush(ctx context.Context, id string, status int) error {
	if status != domain.PushOpen && status != domain.PushClosed {
		return domain.ErrInvalidArgument
	}
	return s.projects.SetPush(ctx, id, status)
}

// Delete removes the project with its annex metadata.
func (s *ProjectService) Delete(ctx context.Context, id string) error {
	return s.projects.Delete(ctx, id)
}

// AuditRow is one pending project in the auditors' queue.
type AuditRow struct {
	ID          string    `json:"id"`
	ProjectName string    `json:"projectName"`
	Category    string    `json:"category"`
	Publisher   string    `json:"publisher"`
	AuditStatus string    `json:"auditStatus"`
	CreateTime  time.Time `json:"createTime"`
}

// AuditList pages projects waiting for a decision. Only roster members
// may see the queue.
func (s *ProjectService) AuditList(ctx context.Context, callerID string, pageNo, pageSize int) ([]AuditRow, Page, error) {
	ok, err := s.policy.IsAuditor(ctx, callerID)
	if err != nil {
		return nil, Page{}, err
	}
	if !ok {
		return nil, Page{}, domain.ErrForbidden
	}

	page, size := normalize(pageNo, pageSize)
	records, total, err := s.projects.ListPendingAudit(ctx, page, size)
	if err != nil {
		return nil, Page{}, err
	}

	ids := make([]string, 0, len(records))
	for _, p := range records {
		ids = append(ids, p.PublisherID)
	}
	orgs, err := s.users.OrgNamesByIDs(ctx, ids)
	if err != nil {
		return nil, Page{}, err
	}

	out := make([]AuditRow, 0, len(records))
	for _, p := range records {
		out = append(out, AuditRow{
			ID:          p.ID,
			ProjectName: p.Name,
			Category:    p.Category,
			Publisher:   orgs[p.PublisherID],
			AuditStatus: domain.AuditStatusLabel(p.AuditStatus),
			CreateTime:  p.CreatedAt,
		})
	}
	return out, pageOf(total, page, size), nil
}

// ApplyAudit records an auditor's decision through the policy.
func (s *ProjectService) ApplyAudit(ctx context.Context, callerID, projectID, decision, remark string) error {
	return s.policy.Apply(ctx, callerID, projectID, decision, remark)
}

// Take runs the claim protocol: duplicate check, distance gate, then the
// insert. The ledger's unique index settles races; a concurrent winner
// turns the loser's insert into ErrDuplicateClaim.
func (s *ProjectService) Take(ctx context.Context, providerID, projectID string, maxDistanceMeters float64, accept bool) (*domain.Claim, error) {
	exists, err := s.claims.Exists(ctx, projectID, providerID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, domain.ErrDuplicateClaim
	}

	p, err := s.projects.FindByID(ctx, projectID)
	if err != nil {
		return nil, err
	}

	provider, err := s.profilePoint(ctx, providerID)
	if err != nil {
		return nil, err
	}
	publisher, err := s.profilePoint(ctx, p.PublisherID)
	if err != nil {
		return nil, err
	}

	distance, err := geo.CheckedDistanceMeters(*provider, *publisher)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}

	limit := maxDistanceMeters
	if limit <= 0 {
		limit = s.defaultMaxDistance
	}
	if distance > limit {
		return nil, fmt.Errorf("%w: %.0fm apart, limit %.0fm", domain.ErrOutOfRange, distance, limit)
	}

	return s.claims.Create(ctx, projectID, providerID, accept)
}

// TakenView is one entry of a provider's accepted-claims listing.
type TakenView struct {
	ProjectView
	Contact  string     `json:"contact"`
	Phone    string     `json:"phone"`
	TakeTime *time.Time `json:"takeTime,omitempty"`
}

// MyTakenProjects lists the provider's accepted claims joined with the
// project, its annexes and the publisher's contact info, most recently
// taken first.
func (s *ProjectService) MyTakenProjects(ctx context.Context, providerID string, pageNo, pageSize int) ([]TakenView, Page, error) {
	page, size := normalize(pageNo, pageSize)

	claims, total, err := s.claims.ListAcceptedByProvider(ctx, providerID, page, size)
	if err != nil {
		return nil, Page{}, err
	}

	projectIDs := make([]string, 0, len(claims))
	for _, c := range claims {
		projectIDs = append(projectIDs, c.ProjectID)
	}

	projectsByID, err := s.projects.FindByIDs(ctx, projectIDs)
	if err != nil {
		return nil, Page{}, err
	}
	annexesByProject, err := s.annexes.ListByProjects(ctx, projectIDs)
	if err != nil {
		return nil, Page{}, err
	}

	publisherIDs := make([]string, 0, len(projectsByID))
	for _, p := range projectsByID {
		publisherIDs = append(publisherIDs, p.PublisherID)
	}
	contacts, err := s.users.ContactsByIDs(ctx, publisherIDs)
	if err != nil {
		return nil, Page{}, err
	}

	now := time.Now()
	out := make([]TakenView, 0, len(claims))
	for _, c := range claims {
		p, ok := projectsByID[c.ProjectID]
		if !ok {
			continue
		}
		contact := contacts[p.PublisherID]
		out = append(out, TakenView{
			ProjectView: viewOf(&p, blankExpired(annexesByProject[p.ID], now)),
			Contact:     contact.Name,
			Phone:       contact.Phone,
			TakeTime:    c.TakenAt,
		})
	}
	return out, pageOf(total, page, size), nil
}

func (s *ProjectService) joinAnnexes(ctx context.Context, records []domain.Project) ([]ProjectView, error) {
	ids := make([]string, 0, len(records))
	for _, p := range records {
		ids = append(ids, p.ID)
	}

	annexesByProject, err := s.annexes.ListByProjects(ctx, ids)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	views := make([]ProjectView, 0, len(records))
	for _, p := range records {
		views = append(views, viewOf(&p, blankExpired(annexesByProject[p.ID], now)))
	}
	return views, nil
}

func (s *ProjectService) profilePoint(ctx context.Context, userID string) (*geo.Point, error) {
	profile, err := s.users.FindProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: profile for %s", domain.ErrNotFound, userID)
	}
	if profile.Latitude == nil || profile.Longitude == nil {
		return nil, fmt.Errorf("%w: no coordinates for %s", domain.ErrNotFound, userID)
	}
	return &geo.Point{Latitude: *profile.Latitude, Longitude: *profile.Longitude}, nil
}

func normalize(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = 10
	}
	return page, size
}
