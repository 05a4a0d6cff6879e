package auth

import "errors"

var (
	ErrInvalidPhone    = errors.New("auth: invalid phone number")
	ErrUnknownRequest  = errors.New("auth: unknown or expired code request")
	ErrInvalidCode     = errors.New("auth: invalid code")
	ErrTooManyAttempts = errors.New("auth: too many attempts")
	ErrInvalidToken    = errors.New("auth: invalid or expired token")
)
