package runner

import "fmt"

// The §7 error taxonomy, classified by consequence rather than by which
// package raised them. Each satisfies errors.As/errors.Is via a distinct
// concrete type, following the teacher's PermanentError/ProviderError
// pattern (see internal/retry.PermanentError, internal/retry.ProviderError)
// rather than sentinel values, since callers need the structured fields
// (path, requested state) more often than a simple identity check.

// NotFoundError reports a lookup failure (session, message, tool) that
// doesn't correspond to a bug — the id just isn't there (any more).
type NotFoundError struct {
	Kind string // "session", "message", "part", "tool"
	ID   string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s not found: %s", e.Kind, e.ID) }

// ValidationError reports bad tool arguments: surfaced as ToolPart.Error,
// the turn continues with any remaining tools.
type ValidationError struct {
	Tool    string
	Message string
}

func (e *ValidationError) Error() string { return fmt.Sprintf("%s: validation: %s", e.Tool, e.Message) }

// PermissionDeniedError reports a Deny decision or an Ask that timed out /
// was refused. Same surface as ValidationError: a ToolPart.Error, not a
// fatal turn error.
type PermissionDeniedError struct {
	Tool   string
	Reason string
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("%s: permission denied: %s", e.Tool, e.Reason)
}

// ConcurrentEditError reports a write rejected because the target file
// changed on disk after it was last read in this session. Reported to the
// model as a tool error with an explicit instruction to re-read; never
// escalated to a fatal turn error.
type ConcurrentEditError struct {
	Path string
	Err  error
}

func (e *ConcurrentEditError) Error() string {
	return fmt.Sprintf("concurrent edit detected for %s, re-read before writing: %v", e.Path, e.Err)
}

func (e *ConcurrentEditError) Unwrap() error { return e.Err }

// SandboxError reports a Sandbox Runtime failure (container start, exec
// timeout, path-mapping violation). Storage/I/O-class: logged, surfaced as
// an Error update, but the session remains usable.
type SandboxError struct {
	Op  string
	Err error
}

func (e *SandboxError) Error() string { return fmt.Sprintf("sandbox: %s: %v", e.Op, e.Err) }
func (e *SandboxError) Unwrap() error { return e.Err }

// FatalError reports one of §7's Fatal conditions: abort-token fired (not
// wrapped here — callers see context.Canceled directly), a NotRetryable
// auth error from the provider, or the storage root becoming unwritable.
// The runner emits an Error update and returns to Idle; the session itself
// survives.
type FatalError struct {
	Reason string
	Err    error
}

func (e *FatalError) Error() string { return fmt.Sprintf("fatal: %s: %v", e.Reason, e.Err) }
func (e *FatalError) Unwrap() error { return e.Err }
