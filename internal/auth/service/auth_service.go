package service

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"github.com/fieldwork/fieldwork-backend/internal/audit"
	"github.com/fieldwork/fieldwork-backend/internal/auth"
	"github.com/fieldwork/fieldwork-backend/internal/sms"
	"github.com/fieldwork/fieldwork-backend/internal/users"
)

// AuthService handles phone-code login, registration and profile
// readback.
type AuthService struct {
	users  *users.Repo
	codes  *sms.Store
	tokens *auth.Manager
	policy *audit.Policy
}

func NewAuthService(userRepo *users.Repo, codes *sms.Store, tokens *auth.Manager, policy *audit.Policy) *AuthService {
	return &AuthService{
		users:  userRepo,
		codes:  codes,
		tokens: tokens,
		policy: policy,
	}
}

// LoginResult is returned to a successfully authenticated caller.
type LoginResult struct {
	Token     string `json:"token"`
	IsAuditor bool   `json:"isAuditor"`
}

// Login verifies the SMS code, issues a token and records its digest on
// the profile so stale tokens can be told apart server-side.
func (s *AuthService) Login(ctx context.Context, phone, code, userType string) (*LoginResult, error) {
	if phone == "" {
		return nil, fmt.Errorf("phone required")
	}
	if code == "" {
		return nil, fmt.Errorf("verification code required")
	}

	if err := s.codes.Consume(ctx, phone, code); err != nil {
		return nil, err
	}

	u, err := s.users.FindByPhone(ctx, phone)
	if err != nil {
		return nil, err
	}
	if u.Status != users.StatusActive {
		return nil, users.ErrUserDisabled
	}

	token, err := s.tokens.Issue(auth.Identity{UserID: u.ID, UserType: userType})
	if err != nil {
		return nil, err
	}

	sum := md5.Sum([]byte(token))
	if err := s.users.SetTokenSign(ctx, u.ID, hex.EncodeToString(sum[:])); err != nil {
		return nil, err
	}

	isAuditor, err := s.policy.IsAuditor(ctx, u.ID)
	if err != nil {
		return nil, err
	}

	return &LoginResult{Token: token, IsAuditor: isAuditor}, nil
}

// RegisterInput carries the validated registration fields.
type RegisterInput struct {
	Phone      string
	Code       string
	UserName   string
	NickName   string
	OrgType    int
	OrgName    string
	Technology string
}

// Register verifies the SMS code and creates the account with its
// profile.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*users.User, error) {
	if in.Phone == "" {
		return nil, fmt.Errorf("phone required")
	}
	if in.Code == "" {
		return nil, fmt.Errorf("verification code required")
	}
	if in.UserName == "" {
		return nil, fmt.Errorf("user name required")
	}

	if err := s.codes.Consume(ctx, in.Phone, in.Code); err != nil {
		return nil, err
	}

	return s.users.Create(ctx,
		users.User{UserName: in.UserName, NickName: in.NickName, Phone: in.Phone},
		users.Profile{OrgType: in.OrgType, OrgName: in.OrgName, Technology: in.Technology})
}

// UserInfo is the profile view returned to the logged-in user.
type UserInfo struct {
	Name       string   `json:"name"`
	Phone      string   `json:"phone"`
	OrgType    int      `json:"orgType"`
	OrgName    string   `json:"orgName"`
	Technology string   `json:"technology"`
	Latitude   *float64 `json:"latitude,omitempty"`
	Longitude  *float64 `json:"longitude,omitempty"`
}

// Info returns the caller's account and profile details.
func (s *AuthService) Info(ctx context.Context, userID string) (*UserInfo, error) {
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	p, err := s.users.FindProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &UserInfo{
		Name:       u.UserName,
		Phone:      u.Phone,
		OrgType:    p.OrgType,
		OrgName:    p.OrgName,
		Technology: p.Technology,
		Latitude:   p.Latitude,
		Longitude:  p.Longitude,
	}, nil
}
