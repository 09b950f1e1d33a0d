package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// Identity is the authenticated caller resolved from a token.
type Identity struct {
	UserID   string `json:"userId"`
	UserType string `json:"userType"`
}

// tokenClaims keeps the identity JSON-encoded inside a single "content"
// claim, the shape the mobile clients already expect.
type tokenClaims struct {
	Content string `json:"content"`
	jwt.RegisteredClaims
}

// Manager signs and verifies the platform's HS256 tokens.
type Manager struct {
	secret []byte
	ttl    time.Duration
}

func NewManager(secret string, ttl time.Duration) *Manager {
	if ttl == 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &Manager{secret: []byte(secret), ttl: ttl}
}

// Issue creates a signed token for the identity.
func (m *Manager) Issue(id Identity) (string, error) {
	content, err := json.Marshal(id)
	if err != nil {
		return "", err
	}

	now := time.Now()
	claims := tokenClaims{
		Content: string(content),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// Parse verifies the signature and expiry and returns the caller
// identity.
func (m *Manager) Parse(token string) (*Identity, error) {
	var claims tokenClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	var id Identity
	if err := json.Unmarshal([]byte(claims.Content), &id); err != nil || id.UserID == "" {
		return nil, ErrInvalidToken
	}
	return &id, nil
}
