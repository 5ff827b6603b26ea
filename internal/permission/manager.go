package permission

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/wonop-io/wonopcore/internal/bus"
	"github.com/wonop-io/wonopcore/internal/model"
)

// AskTimeout is the default time an Ask waits for a PermissionResponse
// before treating the request as denied, per §4.3 step 4.
const AskTimeout = 300 * time.Second

// Response is the runner's answer to a pending Ask, delivered by whatever
// surface collected the user's decision (CLI prompt, WebSocket action,
// etc.) via Manager.Respond.
type Response struct {
	RequestID string
	Allow     bool
	Remember  bool
}

// Request describes a pending arbitration that resolved to Ask and is now
// awaiting a Response.
type Request struct {
	ID          string
	SessionID   string
	Tool        string
	Action      string
	Description string
	Path        string
}

// builtinDefault returns the built-in default decision for a tool/arg pair,
// before any configured or learned rule is consulted. Read-only bash
// commands and non-mutating tool categories default to Allow; everything
// else defaults to Ask (or Allow, if allowSandbox is set and a sandbox is
// attached for this call).
func builtinDefault(tool, arg string, allowSandbox bool) Decision {
	if allowSandbox {
		return Allow
	}
	if tool == "bash" {
		for _, p := range []string{"ls*", "git status*", "git log*", "git diff*", "cat *", "pwd"} {
			if matches(p, arg) {
				return Allow
			}
		}
		return Ask
	}
	if tool == "read" || tool == "glob" || tool == "grep" || tool == "list" {
		return Allow
	}
	return Ask
}

// Manager arbitrates tool calls against a rule set and resolves Ask
// decisions by publishing PermissionRequested on the Bus and awaiting a
// matching Response, per §4.3.
type Manager struct {
	bus *bus.Bus

	mu    sync.RWMutex
	rules map[string][]Rule // keyed by tool name; "*" matches rules apply to any tool

	waitersMu sync.Mutex
	waiters   map[string]chan Response

	allowSandbox bool
}

// NewManager creates a Manager publishing to b.
func NewManager(b *bus.Bus) *Manager {
	return &Manager{
		bus:     b,
		rules:   make(map[string][]Rule),
		waiters: make(map[string]chan Response),
	}
}

// SetAllowAllInSandbox flips the built-in default to Allow when a sandbox
// is attached, per §4.3's allow_all_in_sandbox config flag.
func (m *Manager) SetAllowAllInSandbox(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.allowSandbox = v
}

// AddRule inserts a rule into the set, keyed by its tool (or "*" for
// tool-level rules that apply across tools).
func (m *Manager) AddRule(r Rule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules[r.Tool] = append(m.rules[r.Tool], r)
}

// RemoveSessionRules drops every session-scoped rule, called at session end.
func (m *Manager) RemoveSessionRules() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for tool, rs := range m.rules {
		kept := rs[:0]
		for _, r := range rs {
			if r.Scope != ScopeSession {
				kept = append(kept, r)
			}
		}
		m.rules[tool] = kept
	}
}

// candidateRules returns every rule (tool-specific and "*") whose matcher
// matches arg, sorted worst-to-best so the last element is the winner.
func (m *Manager) candidateRules(tool, arg string) []Rule {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var cands []Rule
	for _, r := range m.rules[tool] {
		if r.matchesArg(arg) {
			cands = append(cands, r)
		}
	}
	for _, r := range m.rules["*"] {
		if r.matchesArg(arg) {
			cands = append(cands, r)
		}
	}
	sort.SliceStable(cands, func(i, j int) bool { return less(cands[i], cands[j]) })
	return cands
}

// Decide arbitrates a single (tool, arg) pair, where arg is the bash
// command string or the resolved file path, depending on tool. sessionID
// is used only for the PermissionDecided event; the Ask resolution itself
// is driven by Ask, called separately when Decide returns Ask.
func (m *Manager) Decide(sessionID, tool, arg string) (Decision, Rule, bool) {
	cands := m.candidateRules(tool, arg)
	if len(cands) > 0 {
		winner := cands[len(cands)-1]
		m.publishDecided(sessionID, tool, winner.ID, winner.Matcher, winner.Decision == Allow, "matched rule")
		return winner.Decision, winner, true
	}

	m.mu.RLock()
	allowSandbox := m.allowSandbox
	m.mu.RUnlock()

	d := builtinDefault(tool, arg, allowSandbox)
	m.publishDecided(sessionID, tool, "", "", d == Allow, "built-in default")
	return d, Rule{}, false
}

func (m *Manager) publishDecided(sessionID, tool, ruleID, matcher string, allowed bool, reason string) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(bus.PermissionDecided{
		SessionID: sessionID,
		Tool:      tool,
		RuleID:    ruleID,
		Matcher:   matcher,
		Allowed:   allowed,
		Reason:    reason,
	})
}

// Ask resolves a pending Ask decision by publishing PermissionRequested and
// waiting for a Response, the default timeout, or ctx cancellation
// (the session's abort token), per §4.3 steps 1-5. When remember is true
// in the response, the caller-supplied learnedMatcher (the exact command
// or path observed) is inserted as a new learned rule.
func (m *Manager) Ask(ctx context.Context, req Request, learnedMatcher string, scope Scope) (bool, error) {
	req.ID = model.NewRequestID()

	waitCh := make(chan Response, 1)
	m.waitersMu.Lock()
	m.waiters[req.ID] = waitCh
	m.waitersMu.Unlock()
	defer func() {
		m.waitersMu.Lock()
		delete(m.waiters, req.ID)
		m.waitersMu.Unlock()
	}()

	if m.bus != nil {
		m.bus.Publish(bus.PermissionRequested{
			RequestID:   req.ID,
			SessionID:   req.SessionID,
			Tool:        req.Tool,
			Action:      req.Action,
			Description: req.Description,
			Path:        req.Path,
		})
	}

	timer := time.NewTimer(AskTimeout)
	defer timer.Stop()

	var resp Response
	select {
	case resp = <-waitCh:
	case <-timer.C:
		m.publishDecided(req.SessionID, req.Tool, "", "", false, "ask timed out")
		return false, nil
	case <-ctx.Done():
		m.publishDecided(req.SessionID, req.Tool, "", "", false, "session aborted")
		return false, nil
	}

	if resp.Allow && resp.Remember {
		rule := Rule{
			ID:       "learned-" + req.ID,
			Tool:     req.Tool,
			Matcher:  learnedMatcher,
			Decision: Allow,
			Scope:    scope,
			Origin:   OriginLearned,
		}
		m.AddRule(rule)
		m.publishDecided(req.SessionID, req.Tool, rule.ID, rule.Matcher, true, "learned and remembered")
	} else {
		m.publishDecided(req.SessionID, req.Tool, "", "", resp.Allow, "user decision")
	}

	return resp.Allow, nil
}

// Respond delivers a Response to the waiter registered for its RequestID.
// Returns an error if no such request is pending (already resolved,
// timed out, or never existed).
func (m *Manager) Respond(resp Response) error {
	m.waitersMu.Lock()
	ch, ok := m.waiters[resp.RequestID]
	m.waitersMu.Unlock()
	if !ok {
		return fmt.Errorf("permission: no pending request %s", resp.RequestID)
	}
	select {
	case ch <- resp:
		return nil
	default:
		return fmt.Errorf("permission: request %s already resolved", resp.RequestID)
	}
}
