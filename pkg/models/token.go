package models

import "time"

// APIToken grants access to the mutating control API routes
type APIToken struct {
	Token     string    // The actual token string
	Label     string    // Who or what the token was issued for
	CreatedAt time.Time // When token was created
	ExpiresAt time.Time // When token expires
	IssuedTo  string    // IP address that requested the token
}

// IsValid checks if the token is still valid at now
func (t *APIToken) IsValid(now time.Time) bool {
	return now.Before(t.ExpiresAt)
}
