package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rookgm/chatpesa/internal/logger"
	"github.com/rookgm/chatpesa/internal/models"
	"go.uber.org/zap"
)

const authCookieName = "auth_token"

type AuthService interface {
	Login(ctx context.Context, password string) (string, error)
}

// AuthHandler represents HTTP handler for dashboard login
type AuthHandler struct {
	svc AuthService
}

// NewAuthHandler creates new AuthHandler instance
func NewAuthHandler(svc AuthService) *AuthHandler {
	return &AuthHandler{svc: svc}
}

type loginRequest struct {
	Password string `json:"password"`
}

// Login checks dashboard password and sets token cookie
// 200 — пароль верный, токен в cookie.
// 400 — неверный формат запроса.
// 401 — неверный пароль.
// 500 — внутренняя ошибка сервера.
func (ah *AuthHandler) Login() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		token, err := ah.svc.Login(r.Context(), req.Password)
		if err != nil {
			if errors.Is(err, models.ErrInvalidCredentials) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			logger.Log.Error("dashboard login", zap.Error(err))
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     authCookieName,
			Value:    token,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
		w.WriteHeader(http.StatusOK)
	}
}
