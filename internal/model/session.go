package model

import "time"

// SessionTime tracks session lifecycle timestamps.
type SessionTime struct {
	Created time.Time `json:"created"`
	Updated time.Time `json:"updated"`
}

// ShareInfo holds the external share URL and secret for a session, if the
// session has been shared. The share-service protocol beyond create/delete/
// sync is treated as write-only from the core's perspective (see
// SPEC_FULL.md §9).
type ShareInfo struct {
	URL    string `json:"url"`
	Secret string `json:"secret"`
}

// RevertInfo marks a pending truncation point for a session. Set by
// revert() and consumed by cleanup().
type RevertInfo struct {
	MessageID string  `json:"message_id"`
	PartID    *string `json:"part_id,omitempty"`
	SnapshotID *string `json:"snapshot_id,omitempty"`
}

// Session belongs to exactly one project. ParentID records a fork.
type Session struct {
	ID        string       `json:"id"`
	ProjectID string       `json:"project_id"`
	ParentID  *string      `json:"parent_id,omitempty"`
	Title     string       `json:"title"`
	Directory string       `json:"directory"`
	Time      SessionTime  `json:"time"`
	Share     *ShareInfo   `json:"share,omitempty"`
	Revert    *RevertInfo  `json:"revert,omitempty"`
}

// NewSession creates a session record rooted at the given project/directory.
func NewSession(projectID, directory string, now time.Time) *Session {
	return &Session{
		ID:        NewSessionID(),
		ProjectID: projectID,
		Directory: directory,
		Time:      SessionTime{Created: now, Updated: now},
	}
}
