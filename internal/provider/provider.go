// Package provider implements the §6 model-stream-chunk contract: the
// LLMProvider interface the Session Runner consumes, independent of which
// backend actually generates tokens.
//
// Grounded on the teacher's internal/agent.LLMProvider /
// internal/agent/provider_types.go shape (Complete returning a channel,
// Name/Models/SupportsTools), generalized from the teacher's single
// CompletionChunk struct into the spec's StreamChunk sum type so a
// provider can't accidentally populate two mutually exclusive fields at
// once.
package provider

import (
	"context"
	"encoding/json"

	"github.com/wonop-io/wonopcore/internal/model"
)

// ChunkKind tags which variant of StreamChunk is populated.
type ChunkKind string

const (
	ChunkTextStart      ChunkKind = "text_start"
	ChunkTextDelta      ChunkKind = "text_delta"
	ChunkTextEnd        ChunkKind = "text_end"
	ChunkReasoningStart ChunkKind = "reasoning_start"
	ChunkReasoningDelta ChunkKind = "reasoning_delta"
	ChunkReasoningEnd   ChunkKind = "reasoning_end"
	ChunkToolCallStart  ChunkKind = "tool_call_start"
	ChunkToolCallDelta  ChunkKind = "tool_call_delta"
	ChunkToolCall       ChunkKind = "tool_call"
	ChunkToolObserved   ChunkKind = "tool_observed"
	ChunkToolResultObs  ChunkKind = "tool_result_observed"
	ChunkFinishStep     ChunkKind = "finish_step"
	ChunkError          ChunkKind = "error"
)

// StreamChunk is the §6 StreamChunk sum type: exactly one payload group is
// populated, selected by Kind.
type StreamChunk struct {
	Kind ChunkKind

	// TextDelta / ReasoningDelta payload.
	Text string

	// ToolCallStart / ToolCallDelta / ToolCall / ToolObserved payload.
	ToolCallID string
	ToolName   string
	ArgsDelta  string          // ToolCallDelta
	Arguments  json.RawMessage // ToolCall, ToolObserved ("input")

	// ToolResultObserved payload.
	ToolSuccess bool
	ToolOutput  string

	// FinishStep payload.
	Usage        model.Usage
	FinishReason model.FinishReason

	// Error payload.
	ErrMessage string
}

// Request is what the Session Runner hands a provider for one model step.
type Request struct {
	Model     string
	System    string
	Messages  []Message
	Tools     []ToolDescriptor
	MaxTokens int
}

// Message is one turn of conversation history in the provider-agnostic
// shape; adapters translate this into their own wire format.
type Message struct {
	Role    model.Role
	Text    string
	Tools   []ToolCallRecord
	Results []ToolResultRecord
}

// ToolCallRecord mirrors a previously emitted ToolCall chunk, replayed back
// into history on the next request.
type ToolCallRecord struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// ToolResultRecord mirrors a tool's outcome, replayed back into history.
type ToolResultRecord struct {
	ToolCallID string
	Success    bool
	Output     string
}

// ToolDescriptor is a tool's advertisable shape, the same wire format
// toolreg.Descriptor produces.
type ToolDescriptor struct {
	Name        string
	Description string
	Schema      json.RawMessage
}

// LLMProvider is the capability set the Session Runner drives for one
// model step. Stream must satisfy §6's obligations: pair every Start with
// a matching End before any FinishStep, emit exactly one FinishStep, and
// deliver ToolCall only after its ToolCallStart.
type LLMProvider interface {
	Name() string
	Models() []ModelInfo
	SupportsTools() bool
	Stream(ctx context.Context, req Request) (<-chan StreamChunk, error)
}

// ModelInfo describes one model a provider can drive requests against.
type ModelInfo struct {
	ID             string
	Name           string
	ContextSize    int
	SupportsVision bool
}
