// Package model defines the core data types shared by every component:
// projects, sessions, messages, message parts, and todos.
package model

import "github.com/google/uuid"

// ID prefixes, per §3 of the spec: every entity has a short, type-prefixed
// string id.
const (
	ProjectIDPrefix    = "prj_"
	SessionIDPrefix    = "ses_"
	MessageIDPrefix    = "msg_"
	PartIDPrefix       = "prt_"
	SnapshotIDPrefix   = "snp_"
	RequestIDPrefix    = "req_"
	TodoIDPrefix       = "tdo_"
	ToolCallIDPrefix   = "tcl_"
)

func newID(prefix string) string {
	return prefix + uuid.Must(uuid.NewV7()).String()
}

// NewProjectID generates a fresh project id.
func NewProjectID() string { return newID(ProjectIDPrefix) }

// NewSessionID generates a fresh session id.
func NewSessionID() string { return newID(SessionIDPrefix) }

// NewMessageID generates a fresh message id.
func NewMessageID() string { return newID(MessageIDPrefix) }

// NewPartID generates a fresh message-part id.
func NewPartID() string { return newID(PartIDPrefix) }

// NewSnapshotID generates a fresh snapshot id.
func NewSnapshotID() string { return newID(SnapshotIDPrefix) }

// NewRequestID generates a fresh permission-request id.
func NewRequestID() string { return newID(RequestIDPrefix) }

// NewTodoID generates a fresh todo id.
func NewTodoID() string { return newID(TodoIDPrefix) }

// NewToolCallID generates a fresh tool-call id.
func NewToolCallID() string { return newID(ToolCallIDPrefix) }
