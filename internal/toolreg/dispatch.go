package toolreg

import (
	"encoding/json"
	"fmt"

	"github.com/wonop-io/wonopcore/internal/bus"
	"github.com/wonop-io/wonopcore/internal/model"
	"github.com/wonop-io/wonopcore/internal/permission"
)

// Call is a streamed tool call as the model emitted it: {id, name,
// arguments_json}.
type Call struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// Dispatcher runs the §4.2 dispatch contract for a single tool call: given
// the caller-created Pending part, it resolves and validates, arbitrates
// via the Permission Manager, executes, and publishes every transition
// after Pending on the Bus.
type Dispatcher struct {
	registry   *Registry
	permission *permission.Manager
	bus        *bus.Bus
}

// NewDispatcher builds a Dispatcher over registry, arbitrating through
// perm and publishing transitions on b.
func NewDispatcher(registry *Registry, perm *permission.Manager, b *bus.Bus) *Dispatcher {
	return &Dispatcher{registry: registry, permission: perm, bus: b}
}

// permissionArg extracts the matcher argument the Permission Manager should
// arbitrate on for a given tool: the bash command string, or the path
// argument for file tools. Falls back to the raw arguments JSON for
// anything else.
func permissionArg(tool string, args json.RawMessage) string {
	var parsed struct {
		Command string `json:"command"`
		Path    string `json:"path"`
		FilePath string `json:"file_path"`
	}
	_ = json.Unmarshal(args, &parsed)
	switch tool {
	case "bash":
		return parsed.Command
	case "write", "edit", "multiedit", "patch":
		if parsed.FilePath != "" {
			return parsed.FilePath
		}
		return parsed.Path
	default:
		return string(args)
	}
}

// Dispatch runs the full 7-step contract for one call against a
// pre-created Pending part.
func (d *Dispatcher) Dispatch(tc ToolContext, call Call, part *model.MessagePart) (Output, error) {
	// Step 2: resolve.
	tool, ok := d.registry.Get(call.Name)
	if !ok {
		return d.fail(tc, call, part, fmt.Sprintf("tool not found: %s", call.Name))
	}

	// Step 3: validate args against schema.
	if err := d.registry.validate(call.Name, call.Arguments); err != nil {
		return d.fail(tc, call, part, "validation: "+err.Error())
	}

	// Step 4: permission arbitration.
	if d.permission != nil {
		arg := permissionArg(call.Name, call.Arguments)
		decision, _, _ := d.permission.Decide(tc.SessionID, call.Name, arg)
		if decision == permission.Ask {
			allowed, err := d.permission.Ask(tc.Context, permission.Request{
				SessionID:   tc.SessionID,
				Tool:        call.Name,
				Action:      "execute",
				Description: arg,
			}, arg, permission.ScopeSession)
			if err != nil || !allowed {
				return d.fail(tc, call, part, "permission denied")
			}
			decision = permission.Allow
		}
		if decision == permission.Deny {
			return d.fail(tc, call, part, "permission denied")
		}
	}

	// Step 5: transition to Running.
	if err := part.Transition(model.ToolRunning, nil); err != nil {
		return Output{}, err
	}
	d.publishPart(tc, part)
	if d.bus != nil {
		d.bus.Publish(bus.ToolStarted{SessionID: tc.SessionID, MessageID: tc.MessageID, ToolCallID: call.ID, Tool: call.Name})
	}

	// Step 6: execute.
	out, err := tool.Execute(tc, call.Arguments)
	if err != nil {
		return d.fail(tc, call, part, err.Error())
	}

	// Step 7: Completed + ToolCompleted.
	transErr := part.Transition(model.ToolCompleted, func(s *model.ToolCallState) {
		s.Output = out.Text
		s.Metadata = out.Metadata
	})
	if transErr != nil {
		return Output{}, transErr
	}
	d.publishPart(tc, part)
	if d.bus != nil {
		d.bus.Publish(bus.ToolCompleted{SessionID: tc.SessionID, MessageID: tc.MessageID, ToolCallID: call.ID, Tool: call.Name, Success: true, Output: out.Text})
	}
	return out, nil
}

func (d *Dispatcher) fail(tc ToolContext, call Call, part *model.MessagePart, message string) (Output, error) {
	toState := model.ToolError
	if err := part.Transition(toState, func(s *model.ToolCallState) { s.Error = message }); err != nil {
		// Already terminal (e.g. a concurrent transition raced us); still
		// report the failure to the caller.
		return Output{}, fmt.Errorf("%s", message)
	}
	d.publishPart(tc, part)
	if d.bus != nil {
		d.bus.Publish(bus.ToolCompleted{SessionID: tc.SessionID, MessageID: tc.MessageID, ToolCallID: call.ID, Tool: call.Name, Success: false, Output: message})
	}
	return Output{}, fmt.Errorf("%s", message)
}

func (d *Dispatcher) publishPart(tc ToolContext, part *model.MessagePart) {
	if d.bus == nil {
		return
	}
	d.bus.Publish(bus.PartUpdated{MessageID: tc.MessageID, Part: *part})
}
