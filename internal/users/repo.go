package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/fieldwork/fieldwork-backend/internal/projects/domain"
)

// Account status values. Only active accounts may log in or appear as
// publishers in the near feed.
const (
	StatusActive   = 0
	StatusDisabled = 1
)

// User is a platform account, publisher or provider alike.
type User struct {
	ID       string `json:"userId"`
	UserName string `json:"userName"`
	NickName string `json:"nickName"`
	Phone    string `json:"phone"`
	Status   int    `json:"-"`
}

// Profile carries the org info and the coordinate the matching engine
// reads. Coordinates are nil until the client reports a location.
type Profile struct {
	ID         string
	UserID     string
	OrgType    int
	OrgName    string
	Technology string
	TokenSign  string
	Latitude   *float64
	Longitude  *float64
}

// Contact is the slice of a user exposed in claim and detail views.
type Contact struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Phone  string `json:"phone"`
}

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrPhoneTaken    = errors.New("phone number already registered")
	ErrUserDisabled  = errors.New("account disabled")
	ErrNoCoordinates = errors.New("user has no reported coordinates")
)

// Repo provides account and profile lookups for the marketplace core.
type Repo struct {
	db *sql.DB
}

func NewRepo(db *sql.DB) *Repo {
	return &Repo{db: db}
}

// Create registers a new account with its profile row. Phone uniqueness
// is enforced by the index; a violation maps to ErrPhoneTaken.
func (r *Repo) Create(ctx context.Context, u User, p Profile) (*User, error) {
	if u.Phone == "" {
		return nil, fmt.Errorf("phone required")
	}
	if u.UserName == "" {
		return nil, fmt.Errorf("user name required")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin: %v", domain.ErrStorage, err)
	}
	defer tx.Rollback()

	u.ID = uuid.New().String()
	if u.NickName == "" {
		u.NickName = u.UserName
	}

	const uq = `
INSERT INTO users (user_id, user_name, nick_name, phone_number, status)
VALUES ($1, $2, $3, $4, $5);
`
	if _, err := tx.ExecContext(ctx, uq, u.ID, u.UserName, u.NickName, u.Phone, StatusActive); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, ErrPhoneTaken
		}
		return nil, fmt.Errorf("%w: insert user: %v", domain.ErrStorage, err)
	}

	const pq2 = `
INSERT INTO user_profiles (id, user_id, org_type, org_name, technology, latitude, longitude)
VALUES ($1, $2, $3, $4, $5, $6, $7);
`
	if _, err := tx.ExecContext(ctx, pq2, uuid.New().String(), u.ID,
		p.OrgType, p.OrgName, p.Technology, p.Latitude, p.Longitude); err != nil {
		return nil, fmt.Errorf("%w: insert profile: %v", domain.ErrStorage, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit: %v", domain.ErrStorage, err)
	}
	return &u, nil
}

// FindByPhone resolves an account by its phone number.
func (r *Repo) FindByPhone(ctx context.Context, phone string) (*User, error) {
	const q = `
SELECT user_id, user_name, nick_name, phone_number, status
FROM users
WHERE phone_number = $1;
`
	var u User
	err := r.db.QueryRowContext(ctx, q, phone).
		Scan(&u.ID, &u.UserName, &u.NickName, &u.Phone, &u.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: find by phone: %v", domain.ErrStorage, err)
	}
	return &u, nil
}

// FindByID resolves an account by id.
func (r *Repo) FindByID(ctx context.Context, id string) (*User, error) {
	const q = `
SELECT user_id, user_name, nick_name, phone_number, status
FROM users
WHERE user_id = $1;
`
	var u User
	err := r.db.QueryRowContext(ctx, q, id).
		Scan(&u.ID, &u.UserName, &u.NickName, &u.Phone, &u.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: find by id: %v", domain.ErrStorage, err)
	}
	return &u, nil
}

// FindProfile returns the profile row for a user.
func (r *Repo) FindProfile(ctx context.Context, userID string) (*Profile, error) {
	const q = `
SELECT id, user_id, coalesce(org_type, 0), org_name, technology, token_sign, latitude, longitude
FROM user_profiles
WHERE user_id = $1;
`
	var p Profile
	err := r.db.QueryRowContext(ctx, q, userID).
		Scan(&p.ID, &p.UserID, &p.OrgType, &p.OrgName, &p.Technology, &p.TokenSign, &p.Latitude, &p.Longitude)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: find profile: %v", domain.ErrStorage, err)
	}
	return &p, nil
}

// SetTokenSign stores the digest of the most recently issued token.
func (r *Repo) SetTokenSign(ctx context.Context, userID, sign string) error {
	const q = `
UPDATE user_profiles
SET token_sign = $2
WHERE user_id = $1;
`
	if _, err := r.db.ExecContext(ctx, q, userID, sign); err != nil {
		return fmt.Errorf("%w: set token sign: %v", domain.ErrStorage, err)
	}
	return nil
}

// SetLocation updates the reported coordinate on the profile.
func (r *Repo) SetLocation(ctx context.Context, userID string, lat, lon float64) error {
	const q = `
UPDATE user_profiles
SET latitude = $2, longitude = $3
WHERE user_id = $1;
`
	res, err := r.db.ExecContext(ctx, q, userID, lat, lon)
	if err != nil {
		return fmt.Errorf("%w: set location: %v", domain.ErrStorage, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// OrgNamesByIDs batches org-name lookups for the audit queue view.
func (r *Repo) OrgNamesByIDs(ctx context.Context, ids []string) (map[string]string, error) {
	if len(ids) == 0 {
		return map[string]string{}, nil
	}

	const q = `
SELECT user_id, org_name
FROM user_profiles
WHERE user_id = ANY($1);
`
	rows, err := r.db.QueryContext(ctx, q, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("%w: org names by ids: %v", domain.ErrStorage, err)
	}
	defer rows.Close()

	out := make(map[string]string, len(ids))
	for rows.Next() {
		var id, org string
		if err := rows.Scan(&id, &org); err != nil {
			return nil, fmt.Errorf("%w: scan org name: %v", domain.ErrStorage, err)
		}
		out[id] = org
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return out, nil
}

// ContactsByIDs batches name/phone lookups for claim and detail views.
func (r *Repo) ContactsByIDs(ctx context.Context, ids []string) (map[string]Contact, error) {
	if len(ids) == 0 {
		return map[string]Contact{}, nil
	}

	const q = `
SELECT user_id, user_name, phone_number
FROM users
WHERE user_id = ANY($1);
`
	rows, err := r.db.QueryContext(ctx, q, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("%w: contacts by ids: %v", domain.ErrStorage, err)
	}
	defer rows.Close()

	out := make(map[string]Contact, len(ids))
	for rows.Next() {
		var c Contact
		if err := rows.Scan(&c.UserID, &c.Name, &c.Phone); err != nil {
			return nil, fmt.Errorf("%w: scan contact: %v", domain.ErrStorage, err)
		}
		out[c.UserID] = c
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return out, nil
}
