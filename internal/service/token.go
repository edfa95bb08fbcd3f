package service

import "github.com/rookgm/chatpesa/internal/models"

type TokenService interface {
	CreateToken(subject string) (string, error)
	VerifyToken(tokenString string) (*models.TokenPayload, error)
}
