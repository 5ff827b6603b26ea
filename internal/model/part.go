package model

import "fmt"

// PartKind tags the MessagePart union.
type PartKind string

const (
	PartText        PartKind = "text"
	PartReasoning   PartKind = "reasoning"
	PartTool        PartKind = "tool"
	PartStepStart   PartKind = "step_start"
	PartStepFinish  PartKind = "step_finish"
	PartFile        PartKind = "file"
	PartAgent       PartKind = "agent"
	PartSnapshot    PartKind = "snapshot"
)

// ToolState is the lifecycle of a tool call. Transitions are monotonic:
// Pending -> Running -> (Completed | Error), plus Pending -> Error for a
// call that fails before it runs (not found, validation, permission
// denied). No other transition is legal
// (invariant #1, part monotonicity).
type ToolState string

const (
	ToolPending   ToolState = "pending"
	ToolRunning   ToolState = "running"
	ToolCompleted ToolState = "completed"
	ToolError     ToolState = "error"
)

// legalToolTransitions enumerates every allowed (from, to) pair. Pending can
// go straight to Error (schema-validation or permission-denial failures
// happen before the tool ever runs); Running only ever resolves to a
// terminal state. Completed and Error are both terminal.
var legalToolTransitions = map[ToolState]map[ToolState]bool{
	ToolPending: {ToolRunning: true, ToolError: true},
	ToolRunning: {ToolCompleted: true, ToolError: true},
}

// CanTransition reports whether moving from `from` to `to` is a legal,
// monotonic ToolState transition.
func CanTransition(from, to ToolState) bool {
	return legalToolTransitions[from][to]
}

// ToolCallState carries the per-state payload for a Tool part. CallID is
// the provider-native tool-call identifier (e.g. Anthropic's "toolu_…"),
// kept distinct from the part's own id so a later turn's history replay
// can round-trip tool_use/tool_result id pairs exactly as the provider
// requires.
type ToolCallState struct {
	State    ToolState         `json:"state"`
	CallID   string            `json:"call_id,omitempty"`
	Input    map[string]any    `json:"input,omitempty"`
	Output   string            `json:"output,omitempty"`
	Metadata map[string]any    `json:"metadata,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// StepUsageFinish is the payload of a StepFinish part.
type StepUsageFinish struct {
	Usage        Usage        `json:"usage"`
	FinishReason FinishReason `json:"finish_reason"`
}

// MessagePart is one fragment of a message's ordered part list. Exactly one
// of the payload fields is populated, selected by Kind.
type MessagePart struct {
	ID        string `json:"id"`
	MessageID string `json:"message_id"`
	Kind      PartKind `json:"kind"`

	Text       string           `json:"text,omitempty"`       // PartText / PartReasoning
	ToolName   string           `json:"tool_name,omitempty"`  // PartTool
	Tool       *ToolCallState   `json:"tool,omitempty"`       // PartTool
	StepFinish *StepUsageFinish `json:"step_finish,omitempty"` // PartStepFinish
}

// NewTextPart creates a Text part.
func NewTextPart(messageID, text string) MessagePart {
	return MessagePart{ID: NewPartID(), MessageID: messageID, Kind: PartText, Text: text}
}

// NewReasoningPart creates a Reasoning part.
func NewReasoningPart(messageID, text string) MessagePart {
	return MessagePart{ID: NewPartID(), MessageID: messageID, Kind: PartReasoning, Text: text}
}

// NewStepStartPart creates a StepStart delimiter part.
func NewStepStartPart(messageID string) MessagePart {
	return MessagePart{ID: NewPartID(), MessageID: messageID, Kind: PartStepStart}
}

// NewStepFinishPart creates a StepFinish delimiter part.
func NewStepFinishPart(messageID string, usage Usage, reason FinishReason) MessagePart {
	return MessagePart{
		ID: NewPartID(), MessageID: messageID, Kind: PartStepFinish,
		StepFinish: &StepUsageFinish{Usage: usage, FinishReason: reason},
	}
}

// NewPendingToolPart creates a Tool part in the Pending state.
func NewPendingToolPart(messageID, toolName string, input map[string]any) MessagePart {
	return MessagePart{
		ID: NewPartID(), MessageID: messageID, Kind: PartTool, ToolName: toolName,
		Tool: &ToolCallState{State: ToolPending, Input: input},
	}
}

// Transition moves the part's tool state forward, enforcing monotonicity.
// Returns an error if the part is not a Tool part or the transition is
// illegal.
func (p *MessagePart) Transition(to ToolState, mutate func(*ToolCallState)) error {
	if p.Kind != PartTool || p.Tool == nil {
		return fmt.Errorf("part %s is not a tool part", p.ID)
	}
	if !CanTransition(p.Tool.State, to) {
		return fmt.Errorf("illegal tool state transition %s -> %s on part %s", p.Tool.State, to, p.ID)
	}
	p.Tool.State = to
	if mutate != nil {
		mutate(p.Tool)
	}
	return nil
}
