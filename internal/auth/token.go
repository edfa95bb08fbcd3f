package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/rookgm/chatpesa/internal/models"
)

// default token lifetime
const tokenTTL = 12 * time.Hour

var ErrInvalidToken = errors.New("invalid token")

type claims struct {
	jwt.RegisteredClaims
}

// AuthToken signs and verifies dashboard tokens
type AuthToken struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewAuthToken creates new AuthToken instance
func NewAuthToken(key []byte) *AuthToken {
	return &AuthToken{
		key: key,
		ttl: tokenTTL,
		now: time.Now,
	}
}

// CreateToken creates signed token for subject
func (at *AuthToken) CreateToken(subject string) (string, error) {
	now := at.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(at.ttl)),
		},
	})

	return token.SignedString(at.key)
}

// VerifyToken checks token signature and expiry and returns its payload
func (at *AuthToken) VerifyToken(tokenString string) (*models.TokenPayload, error) {
	c := claims{}
	token, err := jwt.ParseWithClaims(tokenString, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return at.key, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	payload := &models.TokenPayload{Subject: c.Subject}
	if c.ExpiresAt != nil {
		payload.ExpiresAt = c.ExpiresAt.Time
	}

	return payload, nil
}
