package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("expired token")
)

// Claims is the JWT payload for engine callers. Capabilities carry the
// moderation-relevant permission strings; the real permission system
// lives upstream.
type Claims struct {
	jwt.RegisteredClaims
	UserID       uint64   `json:"user_id"`
	UserName     string   `json:"user_name"`
	Registered   bool     `json:"registered"`
	Capabilities []string `json:"caps,omitempty"`
}

// Manager signs and verifies tokens with a shared HMAC secret.
type Manager struct {
	secretKey []byte
	ttl       time.Duration
}

// NewManager creates a Manager
func NewManager(secret string, ttl time.Duration) *Manager {
	return &Manager{secretKey: []byte(secret), ttl: ttl}
}

// Generate issues a token for the given principal.
func (m *Manager) Generate(userID uint64, userName string, registered bool, caps []string) (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
		UserID:       userID,
		UserName:     userName,
		Registered:   registered,
		Capabilities: caps,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secretKey)
}

// Verify parses and validates a token.
func (m *Manager) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secretKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, ErrInvalidToken
}
