// Package runner implements the Session Runner of SPEC_FULL.md §4.1: the
// per-session state machine that turns a stream of AppAction into a stream
// of AppUpdate, driving the provider, the tool dispatcher, and persistence
// for one conversation.
//
// It lives in its own subpackage rather than the teacher's package agent
// because the teacher already defines LoopConfig/AgenticLoop/ToolRegistry/
// LLMProvider/ResponseChunk — names this component would otherwise collide
// with — and because the teacher itself nests specialized agent concerns
// under internal/agent/ (providers/, toolconv/, routing/, context/, tape/).
// Grounded on the teacher's internal/agent/loop.go phase/channel idiom
// (goroutine producing a channel, phase-tagged state, closed on
// completion), rebuilt against internal/provider, internal/toolreg,
// internal/permission, internal/bus and internal/store instead of the
// teacher's own superseded types.
package runner

import (
	"github.com/wonop-io/wonopcore/internal/model"
	"github.com/wonop-io/wonopcore/internal/permission"
)

// ActionKind tags which variant of AppAction is populated.
type ActionKind string

const (
	ActionSendPrompt         ActionKind = "send_prompt"
	ActionCancel             ActionKind = "cancel"
	ActionChangeModel        ActionKind = "change_model"
	ActionChangeAgent        ActionKind = "change_agent"
	ActionPermissionResponse ActionKind = "permission_response"
	ActionQuit               ActionKind = "quit"
)

// AppAction is the §4.1 input sum type the Runner consumes, one turn at a
// time, from whatever surface is driving it (CLI REPL, WebSocket gateway).
type AppAction struct {
	Kind ActionKind

	// SendPrompt payload.
	Text string

	// ChangeModel payload.
	ModelID    string
	ProviderID string

	// ChangeAgent payload.
	Agent string

	// PermissionResponse payload.
	Permission permission.Response
}

// SendPrompt builds a SendPrompt action.
func SendPrompt(text string) AppAction { return AppAction{Kind: ActionSendPrompt, Text: text} }

// Cancel builds a Cancel action.
func Cancel() AppAction { return AppAction{Kind: ActionCancel} }

// ChangeModel builds a ChangeModel action.
func ChangeModel(providerID, modelID string) AppAction {
	return AppAction{Kind: ActionChangeModel, ProviderID: providerID, ModelID: modelID}
}

// ChangeAgent builds a ChangeAgent action.
func ChangeAgent(agent string) AppAction { return AppAction{Kind: ActionChangeAgent, Agent: agent} }

// PermissionResponse builds a PermissionResponse action.
func PermissionResponse(resp permission.Response) AppAction {
	return AppAction{Kind: ActionPermissionResponse, Permission: resp}
}

// Quit builds a Quit action.
func Quit() AppAction { return AppAction{Kind: ActionQuit} }

// UpdateKind tags which variant of AppUpdate is populated.
type UpdateKind string

const (
	UpdateTextDelta      UpdateKind = "text_delta"
	UpdateReasoningDelta UpdateKind = "reasoning_delta"
	UpdateToolStarted    UpdateKind = "tool_started"
	UpdateToolCompleted  UpdateKind = "tool_completed"
	UpdateCompleted      UpdateKind = "completed"
	UpdateError          UpdateKind = "error"
	UpdateUsageUpdated   UpdateKind = "usage_updated"
)

// AppUpdate is the §4.1 output sum type: operations never throw to the
// caller, all failure is reported as an Error update.
type AppUpdate struct {
	Kind UpdateKind

	// TextDelta / ReasoningDelta / Completed payload.
	Text string

	// ToolStarted / ToolCompleted payload.
	ToolCallID  string
	ToolName    string
	ToolSuccess bool
	ToolOutput  string

	// Error payload.
	ErrMessage string

	// UsageUpdated payload.
	MessageID string
	Cost      float64
	Tokens    model.Usage
}
