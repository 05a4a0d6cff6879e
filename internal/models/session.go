package models

import "time"

// Principal is the authenticated user as seen by the rest of the system.
type Principal struct {
	ID    string `json:"id"`
	Phone string `json:"phone"`
	Name  string `json:"name,omitempty"`
}

// Session is a verified principal plus the bearer token that proves it.
type Session struct {
	Token     string    `json:"token"`
	Principal Principal `json:"user"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Expired reports whether the session is past its expiry at the given time.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}
