package services

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// Claims represents JWT claims issued by the storefront's identity
// service. This service only validates them.
type Claims struct {
	UserID uint   `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// AuthService validates storefront bearer tokens and the admin API key.
// Token issuance, registration and password management live outside this
// service.
type AuthService struct {
	jwtSecret    []byte
	adminKeyHash string
}

// NewAuthService creates a new auth service
func NewAuthService(jwtSecret, adminKeyHash string) *AuthService {
	return &AuthService{
		jwtSecret:    []byte(jwtSecret),
		adminKeyHash: adminKeyHash,
	}
}

// ValidateToken validates a JWT token and returns its claims
func (s *AuthService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, errors.New("invalid token")
}

// CheckAdminKey compares a presented admin API key against the configured
// bcrypt hash.
func (s *AuthService) CheckAdminKey(key string) bool {
	if s.adminKeyHash == "" || key == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(s.adminKeyHash), []byte(key)) == nil
}
