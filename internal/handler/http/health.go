package handler

import (
	"encoding/json"
	"net/http"
	"time"
)

const serviceName = "ChatPesa Backend"

type healthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Timestamp string `json:"timestamp"`
}

// Health reports service is up
func Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)

		if err := json.NewEncoder(w).Encode(healthResponse{
			Status:    "online",
			Service:   serviceName,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}); err != nil {
			return
		}
	}
}
