package model

import "time"

// TokenData contains the data stored with an API session token.
type TokenData struct {
	Subject   string    `json:"subject"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}
