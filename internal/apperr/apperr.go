// Package apperr holds the sentinel errors shared across the client core
// and the store. Callers match them with errors.Is.
package apperr

import "errors"

var (
	ErrNotConfigured    = errors.New("backend is not configured")
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrPermissionDenied = errors.New("permission denied")
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrExpired          = errors.New("invite expired")
	ErrExhausted        = errors.New("invite exhausted")
	ErrTransient        = errors.New("transient network error")
)
