package store

import (
	"errors"

	"github.com/dotcommander/pagekit/internal/models"
)

// RecoverableError is an alias for models.RecoverableError.
type RecoverableError = models.RecoverableError

var (
	// ErrSessionNotFound matches every SessionNotFoundError.
	ErrSessionNotFound = errors.New("journal session not found")
	// ErrInvalidLimit is returned for negative list limits.
	ErrInvalidLimit = errors.New("limit must be positive")
)

// SessionNotFoundError wraps ErrSessionNotFound with the requested id.
type SessionNotFoundError struct {
	SessionID string
}

func (e *SessionNotFoundError) Error() string     { return ErrSessionNotFound.Error() }
func (e *SessionNotFoundError) ErrorCode() string { return "SESSION_NOT_FOUND" }
func (e *SessionNotFoundError) Context() map[string]string {
	return map[string]string{"session_id": e.SessionID}
}
func (e *SessionNotFoundError) SuggestedAction() string {
	return "pagekit journal sessions"
}
func (e *SessionNotFoundError) Is(target error) bool { return target == ErrSessionNotFound }
