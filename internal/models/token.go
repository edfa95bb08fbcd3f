package models

import "time"

// TokenPayload is dashboard token payload
type TokenPayload struct {
	Subject   string
	ExpiresAt time.Time
}
