package middleware

import (
	"net/http"
	"strings"

	"github.com/rookgm/chatpesa/internal/logger"
	"github.com/rookgm/chatpesa/internal/whatsapp"
	"go.uber.org/zap"
)

// TwilioSignature rejects webhook requests not signed with authToken.
// Signature covers public url, so baseURL is the address Twilio is configured with.
func TwilioSignature(authToken, baseURL string) func(next http.Handler) http.Handler {
	baseURL = strings.TrimRight(baseURL, "/")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := r.ParseForm(); err != nil {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			fullURL := baseURL + r.URL.RequestURI()
			if !whatsapp.ValidateSignature(authToken, fullURL, r.PostForm, r.Header.Get(whatsapp.SignatureHeader)) {
				logger.Log.Warn("invalid webhook signature", zap.String("url", fullURL))
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
