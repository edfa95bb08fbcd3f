package service

import (
	"context"
	"testing"

	"github.com/rookgm/chatpesa/internal/auth"
	"github.com/rookgm/chatpesa/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestAuthService_Login(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	tokens := auth.NewAuthToken([]byte("key"))
	svc := NewAuthService(string(hash), tokens)
	require.True(t, svc.Enabled())

	token, err := svc.Login(context.Background(), "s3cret")
	require.NoError(t, err)

	payload, err := tokens.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, "dashboard", payload.Subject)

	_, err = svc.Login(context.Background(), "wrong")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
}

func TestAuthService_LoginDisabled(t *testing.T) {
	svc := NewAuthService("", auth.NewAuthToken([]byte("key")))
	assert.False(t, svc.Enabled())

	_, err := svc.Login(context.Background(), "")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
}
