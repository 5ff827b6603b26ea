package toolreg

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/wonop-io/wonopcore/internal/bus"
	"github.com/wonop-io/wonopcore/internal/model"
	"github.com/wonop-io/wonopcore/internal/permission"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	if err := r.Register(echoTool{id: "echo"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	r.Freeze()
	return r
}

func TestDispatchSuccessPath(t *testing.T) {
	b := bus.New()
	perm := permission.NewManager(b)
	perm.AddRule(permission.Rule{ID: "r1", Tool: "echo", Matcher: "*", Decision: permission.Allow, Scope: permission.ScopeSession, Origin: permission.OriginConfig})
	d := NewDispatcher(newTestRegistry(t), perm, b)

	part := model.NewPendingToolPart("msg_1", "echo", map[string]any{"msg": "hi"})
	tc := ToolContext{Context: context.Background(), SessionID: "ses_1", MessageID: "msg_1"}

	out, err := d.Dispatch(tc, Call{ID: "call_1", Name: "echo", Arguments: json.RawMessage(`{"msg": "hi"}`)}, &part)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if out.Text != "hi" {
		t.Fatalf("got output %q, want hi", out.Text)
	}
	if part.Tool.State != model.ToolCompleted {
		t.Fatalf("part state = %s, want completed", part.Tool.State)
	}
}

func TestDispatchUnknownToolFails(t *testing.T) {
	b := bus.New()
	d := NewDispatcher(newTestRegistry(t), nil, b)
	part := model.NewPendingToolPart("msg_1", "nope", nil)
	tc := ToolContext{Context: context.Background(), SessionID: "ses_1", MessageID: "msg_1"}

	_, err := d.Dispatch(tc, Call{ID: "call_1", Name: "nope", Arguments: json.RawMessage(`{}`)}, &part)
	if err == nil {
		t.Fatal("expected error for unknown tool")
	}
	if part.Tool.State != model.ToolError {
		t.Fatalf("part state = %s, want error", part.Tool.State)
	}
}

func TestDispatchValidationFailureTransitionsToError(t *testing.T) {
	b := bus.New()
	d := NewDispatcher(newTestRegistry(t), nil, b)
	part := model.NewPendingToolPart("msg_1", "echo", nil)
	tc := ToolContext{Context: context.Background(), SessionID: "ses_1", MessageID: "msg_1"}

	_, err := d.Dispatch(tc, Call{ID: "call_1", Name: "echo", Arguments: json.RawMessage(`{}`)}, &part)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if part.Tool.State != model.ToolError {
		t.Fatalf("part state = %s, want error", part.Tool.State)
	}
}

func TestDispatchPermissionDenyShortCircuits(t *testing.T) {
	b := bus.New()
	perm := permission.NewManager(b)
	perm.AddRule(permission.Rule{ID: "deny1", Tool: "echo", Matcher: "*", Decision: permission.Deny, Scope: permission.ScopeSession, Origin: permission.OriginConfig})
	d := NewDispatcher(newTestRegistry(t), perm, b)

	part := model.NewPendingToolPart("msg_1", "echo", map[string]any{"msg": "hi"})
	tc := ToolContext{Context: context.Background(), SessionID: "ses_1", MessageID: "msg_1"}

	_, err := d.Dispatch(tc, Call{ID: "call_1", Name: "echo", Arguments: json.RawMessage(`{"msg": "hi"}`)}, &part)
	if err == nil {
		t.Fatal("expected permission-denied error")
	}
	if part.Tool.State != model.ToolError {
		t.Fatalf("part state = %s, want error", part.Tool.State)
	}
}

func TestPermissionArgExtractsBashCommand(t *testing.T) {
	arg := permissionArg("bash", json.RawMessage(`{"command": "ls -la"}`))
	if arg != "ls -la" {
		t.Fatalf("got %q, want %q", arg, "ls -la")
	}
}

func TestPermissionArgExtractsFilePath(t *testing.T) {
	arg := permissionArg("write", json.RawMessage(`{"file_path": "/a/b.txt", "content": "x"}`))
	if arg != "/a/b.txt" {
		t.Fatalf("got %q, want /a/b.txt", arg)
	}
}
