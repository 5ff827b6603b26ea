package toolreg

import (
	"encoding/json"

	"github.com/wonop-io/wonopcore/internal/bus"
)

// planAgentID is the agent id enterplanmode reports. No tool set is tied
// to it: neither this package nor the Session Runner defines a restricted
// agent under this id.
const planAgentID = "plan"

// EnterPlanModeTool implements "enterplanmode": it reports planAgentID as
// Output.Metadata["agent"] (and the current agent as "previous_agent") and
// emits SessionUpdated through tc.Emit. The Session Runner does not read
// Output.Metadata["agent"], so the session's active agent is not changed.
type EnterPlanModeTool struct{}

func (EnterPlanModeTool) ID() string          { return "enterplanmode" }
func (EnterPlanModeTool) Description() string { return "Switch the session into read-only plan mode." }
func (EnterPlanModeTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {}}`)
}

func (EnterPlanModeTool) Execute(tc ToolContext, _ json.RawMessage) (Output, error) {
	if tc.Emit != nil {
		tc.Emit(bus.SessionUpdated{SessionID: tc.SessionID})
	}
	return Output{
		Text:     "entered plan mode",
		Metadata: map[string]any{"agent": planAgentID, "previous_agent": tc.Agent},
	}, nil
}

// ExitPlanModeTool implements "exitplanmode": it reports BuildAgentID as
// Output.Metadata["agent"], along with the plan text. As with
// enterplanmode, the Session Runner does not act on the reported agent.
type ExitPlanModeTool struct {
	// BuildAgentID is the agent reported on exit; "build" when empty. The
	// previous_agent reported by enterplanmode is not consulted.
	BuildAgentID string
}

func (ExitPlanModeTool) ID() string          { return "exitplanmode" }
func (ExitPlanModeTool) Description() string { return "Exit plan mode and resume normal tool access." }
func (ExitPlanModeTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {"plan": {"type": "string"}}
	}`)
}

func (t ExitPlanModeTool) Execute(tc ToolContext, args json.RawMessage) (Output, error) {
	var params struct {
		Plan string `json:"plan"`
	}
	_ = json.Unmarshal(args, &params)

	target := t.BuildAgentID
	if target == "" {
		target = "build"
	}
	if tc.Emit != nil {
		tc.Emit(bus.SessionUpdated{SessionID: tc.SessionID})
	}
	return Output{
		Text:     "exited plan mode",
		Metadata: map[string]any{"agent": target, "plan": params.Plan},
	}, nil
}
