package service

import (
	"context"

	"github.com/rookgm/chatpesa/internal/models"
	"golang.org/x/crypto/bcrypt"
)

const dashboardSubject = "dashboard"

// AuthService checks dashboard password and issues tokens
type AuthService struct {
	passwordHash []byte
	tokens       TokenService
}

// NewAuthService creates new AuthService instance, passwordHash is bcrypt hash
func NewAuthService(passwordHash string, tokens TokenService) *AuthService {
	return &AuthService{
		passwordHash: []byte(passwordHash),
		tokens:       tokens,
	}
}

// Enabled reports whether dashboard requires login
func (as *AuthService) Enabled() bool {
	return len(as.passwordHash) > 0
}

// Login returns dashboard token for valid password
func (as *AuthService) Login(ctx context.Context, password string) (string, error) {
	if !as.Enabled() {
		return "", models.ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword(as.passwordHash, []byte(password)); err != nil {
		return "", models.ErrInvalidCredentials
	}

	return as.tokens.CreateToken(dashboardSubject)
}
