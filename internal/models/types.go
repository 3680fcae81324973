package models

import (
	"encoding/json"
	"time"
)

// ID Strategy:
// - Sessions use the page id (uuid string) so journal rows match page logs.
// - Renders use int64 (monotonic ordering, auto-increment).

// Session is one started page recorded in the render journal.
type Session struct {
	ID        string    `json:"id"`
	Page      string    `json:"page"`
	Renders   int       `json:"renders"`
	StartedAt time.Time `json:"started_at"`
}

// Render is one render of a session: what triggered it and the result store
// snapshot it was rendered from.
type Render struct {
	ID        int64           `json:"id"`
	SessionID string          `json:"session_id"`
	Seq       uint64          `json:"seq"`
	Trigger   string          `json:"trigger"`
	Command   string          `json:"command,omitempty"`
	InFlight  string          `json:"in_flight,omitempty"`
	Snapshot  json.RawMessage `json:"snapshot"`
	CreatedAt time.Time       `json:"created_at"`
}

// ErrorSummary is the error mapping of a render flattened for listings.
type ErrorSummary struct {
	Kind        string `json:"kind"`
	ThrowCount  int    `json:"throw_count"`
	IsCancelled bool   `json:"is_cancelled"`
}
