package permission

import (
	"context"
	"testing"
	"time"

	"github.com/wonop-io/wonopcore/internal/bus"
)

func TestBuiltinDefaultsAllowReadOnlyBash(t *testing.T) {
	m := NewManager(bus.New())
	for _, cmd := range []string{"ls -la", "git status", "git log --oneline", "git diff HEAD", "cat file.txt", "pwd"} {
		d, _, _ := m.Decide("ses_1", "bash", cmd)
		if d != Allow {
			t.Fatalf("Decide(bash, %q) = %s, want Allow", cmd, d)
		}
	}
}

func TestBuiltinDefaultAsksForMutatingBash(t *testing.T) {
	m := NewManager(bus.New())
	d, _, matched := m.Decide("ses_1", "bash", "rm -rf /tmp/x")
	if matched {
		t.Fatal("expected no rule match, just the built-in default")
	}
	if d != Ask {
		t.Fatalf("Decide(bash, rm -rf) = %s, want Ask", d)
	}
}

func TestBuiltinDefaultAllowsReadTools(t *testing.T) {
	m := NewManager(bus.New())
	for _, tool := range []string{"read", "glob", "grep", "list"} {
		d, _, _ := m.Decide("ses_1", tool, "/any/path")
		if d != Allow {
			t.Fatalf("Decide(%s) = %s, want Allow", tool, d)
		}
	}
}

func TestBuiltinDefaultAsksForWrite(t *testing.T) {
	m := NewManager(bus.New())
	d, _, _ := m.Decide("ses_1", "write", "/etc/passwd")
	if d != Ask {
		t.Fatalf("Decide(write) = %s, want Ask", d)
	}
}

func TestAllowAllInSandboxFlipsDefault(t *testing.T) {
	m := NewManager(bus.New())
	m.SetAllowAllInSandbox(true)
	d, _, _ := m.Decide("ses_1", "bash", "rm -rf /tmp/x")
	if d != Allow {
		t.Fatalf("Decide with allow_all_in_sandbox = %s, want Allow", d)
	}
}

func TestMostSpecificRuleWins(t *testing.T) {
	m := NewManager(bus.New())
	m.AddRule(Rule{ID: "r1", Tool: "bash", Matcher: "*", Decision: Deny, Scope: ScopePersistent, Origin: OriginConfig})
	m.AddRule(Rule{ID: "r2", Tool: "bash", Matcher: "npm install*", Decision: Allow, Scope: ScopePersistent, Origin: OriginConfig})

	d, winner, matched := m.Decide("ses_1", "bash", "npm install lodash")
	if !matched || d != Allow || winner.ID != "r2" {
		t.Fatalf("Decide = %s, rule %+v, matched %v; want Allow via r2", d, winner, matched)
	}
}

func TestOriginBreaksSpecificityTie(t *testing.T) {
	m := NewManager(bus.New())
	// Same matcher text -> same specificity score; learned should win.
	m.AddRule(Rule{ID: "builtin", Tool: "bash", Matcher: "npm install*", Decision: Deny, Scope: ScopePersistent, Origin: OriginBuiltIn})
	m.AddRule(Rule{ID: "learned", Tool: "bash", Matcher: "npm install*", Decision: Allow, Scope: ScopeSession, Origin: OriginLearned})

	d, winner, _ := m.Decide("ses_1", "bash", "npm install lodash")
	if d != Allow || winner.ID != "learned" {
		t.Fatalf("Decide = %s via %s, want Allow via learned rule", d, winner.ID)
	}
}

func TestRemoveSessionRulesDropsOnlySessionScope(t *testing.T) {
	m := NewManager(bus.New())
	m.AddRule(Rule{ID: "persist", Tool: "bash", Matcher: "npm install*", Decision: Allow, Scope: ScopePersistent, Origin: OriginConfig})
	m.AddRule(Rule{ID: "temp", Tool: "bash", Matcher: "npm test*", Decision: Allow, Scope: ScopeSession, Origin: OriginLearned})

	m.RemoveSessionRules()

	if d, _, matched := m.Decide("ses_1", "bash", "npm install lodash"); !matched || d != Allow {
		t.Fatal("persistent rule should survive RemoveSessionRules")
	}
	if _, _, matched := m.Decide("ses_1", "bash", "npm test"); matched {
		t.Fatal("session-scoped rule should have been dropped")
	}
}

func TestAskResolvesOnResponseAndRemembers(t *testing.T) {
	b := bus.New()
	m := NewManager(b)
	requested, unsub := bus.Subscribe[bus.PermissionRequested](b, 4)
	defer unsub()

	done := make(chan bool, 1)
	go func() {
		allowed, err := m.Ask(context.Background(), Request{
			SessionID:   "ses_1",
			Tool:        "bash",
			Action:      "execute",
			Description: "install dependency",
		}, "npm install lodash", ScopeSession)
		if err != nil {
			t.Errorf("Ask: %v", err)
		}
		done <- allowed
	}()

	var reqID string
	select {
	case e := <-requested:
		reqID = e.RequestID
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for PermissionRequested")
	}

	if err := m.Respond(Response{RequestID: reqID, Allow: true, Remember: true}); err != nil {
		t.Fatalf("Respond: %v", err)
	}

	select {
	case allowed := <-done:
		if !allowed {
			t.Fatal("expected Ask to resolve allowed")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Ask to return")
	}

	d, winner, matched := m.Decide("ses_1", "bash", "npm install lodash")
	if !matched || d != Allow || winner.Origin != OriginLearned {
		t.Fatalf("expected learned rule to now match, got %s via %+v", d, winner)
	}
}

func TestAskDeniesOnContextCancellation(t *testing.T) {
	b := bus.New()
	m := NewManager(b)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan bool, 1)
	go func() {
		allowed, _ := m.Ask(ctx, Request{SessionID: "ses_1", Tool: "bash", Action: "execute"}, "rm -rf /tmp", ScopeSession)
		done <- allowed
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case allowed := <-done:
		if allowed {
			t.Fatal("expected abort to deny")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Ask to return after cancellation")
	}
}

func TestRespondWithNoPendingRequestErrors(t *testing.T) {
	m := NewManager(bus.New())
	if err := m.Respond(Response{RequestID: "req_nope", Allow: true}); err == nil {
		t.Fatal("expected error for unknown request id")
	}
}
