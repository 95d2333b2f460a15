package domain

import "errors"

var (
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("resource not found")
	// ErrInvalidCredentials covers both unknown email and wrong password.
	// Callers must not be able to tell the two apart.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrPasswordlessAccount is returned when a password login targets an account
	// that was created through a federated provider and never set a password.
	ErrPasswordlessAccount = errors.New("account has no password")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrInvalidToken        = errors.New("invalid token")
	ErrForbidden           = errors.New("forbidden")
	ErrInvalidInput        = errors.New("invalid input")
	ErrConflict            = errors.New("conflict")
	ErrTokenExpired        = errors.New("token expired")
	ErrRateLimited         = errors.New("rate limited")
	ErrUpstream            = errors.New("upstream provider failure")
	ErrNotConfigured       = errors.New("not configured")
	ErrEmailRequired       = errors.New("provider did not return an email")
	ErrStateInvalid        = errors.New("oauth state invalid")
	ErrAccessDenied        = errors.New("provider access denied")
)
