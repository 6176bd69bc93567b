package models

import "time"

// SessionStatus represents the state of an editing session.
type SessionStatus string

const (
	SessionStatusActive SessionStatus = "active"
	SessionStatusClosed SessionStatus = "closed"
)

// EditSession describes a server-held editing session on one form.
type EditSession struct {
	ID           string        `json:"id"`
	FormID       string        `json:"formId"`
	Status       SessionStatus `json:"status"`
	CreatedAt    time.Time     `json:"createdAt"`
	LastAccessed time.Time     `json:"lastAccessed"`
	// LastSavedAt is when the definition was last written back to the form.
	LastSavedAt *time.Time `json:"lastSavedAt,omitempty"`
	// SaveError holds the message of the last failed autosave, if any.
	SaveError string `json:"saveError,omitempty"`
}

// NewEditSession creates an active session on formID.
func NewEditSession(id, formID string, now time.Time) *EditSession {
	return &EditSession{
		ID:           id,
		FormID:       formID,
		Status:       SessionStatusActive,
		CreatedAt:    now,
		LastAccessed: now,
	}
}
