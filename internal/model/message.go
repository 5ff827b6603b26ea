package model

import "time"

// Role distinguishes the two message kinds in the tagged union.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// FinishReason is why a model step ended.
type FinishReason string

const (
	FinishEndTurn       FinishReason = "end_turn"
	FinishStop          FinishReason = "stop"
	FinishMaxTokens     FinishReason = "max_tokens"
	FinishToolUse       FinishReason = "tool_use"
	FinishContentFilter FinishReason = "content_filter"
	FinishOther         FinishReason = "other"
)

// CacheUsage reports prompt-cache token usage for a step.
type CacheUsage struct {
	Read  int64 `json:"read"`
	Write int64 `json:"write"`
}

// Usage is the token accounting reported by a single FinishStep chunk.
type Usage struct {
	Input     int64      `json:"input"`
	Output    int64      `json:"output"`
	Reasoning int64      `json:"reasoning,omitempty"`
	Cache     CacheUsage `json:"cache"`
}

// Add merges another usage into this one, field by field.
func (u *Usage) Add(o Usage) {
	u.Input += o.Input
	u.Output += o.Output
	u.Reasoning += o.Reasoning
	u.Cache.Read += o.Cache.Read
	u.Cache.Write += o.Cache.Write
}

// MessageError records why an assistant message terminated abnormally, so
// later renders convey the failure even after reload (§7).
type MessageError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// MessageTime tracks a message's lifecycle timestamps.
type MessageTime struct {
	Created   time.Time  `json:"created"`
	Completed *time.Time `json:"completed,omitempty"`
}

// AssistantPath records the cwd/root the assistant turn executed under.
type AssistantPath struct {
	Cwd  string `json:"cwd"`
	Root string `json:"root"`
}

// Message is a tagged union of User and Assistant. Both carry
// {id, session_id, time.created}; Assistant additionally carries the fields
// below.
type Message struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`
	Role      Role   `json:"role"`
	Time      MessageTime `json:"time"`

	// Assistant-only fields.
	ParentID     string        `json:"parent_id,omitempty"`
	ModelID      string        `json:"model_id,omitempty"`
	ProviderID   string        `json:"provider_id,omitempty"`
	Agent        string        `json:"agent,omitempty"`
	Path         AssistantPath `json:"path,omitempty"`
	Cost         float64       `json:"cost,omitempty"`
	Tokens       Usage         `json:"tokens,omitempty"`
	FinishReason FinishReason  `json:"finish_reason,omitempty"`
	Error        *MessageError `json:"error,omitempty"`
}

// NewUserMessage creates a user message for a session.
func NewUserMessage(sessionID string, now time.Time) *Message {
	return &Message{
		ID:        NewMessageID(),
		SessionID: sessionID,
		Role:      RoleUser,
		Time:      MessageTime{Created: now},
	}
}

// NewAssistantMessage creates an assistant message answering parentID (the
// user message that triggered it).
func NewAssistantMessage(sessionID, parentID, modelID, providerID, agent string, path AssistantPath, now time.Time) *Message {
	return &Message{
		ID:         NewMessageID(),
		SessionID:  sessionID,
		Role:       RoleAssistant,
		Time:       MessageTime{Created: now},
		ParentID:   parentID,
		ModelID:    modelID,
		ProviderID: providerID,
		Agent:      agent,
		Path:       path,
	}
}

// MergeUsage folds a step's usage into the assistant message's running total
// and recomputes cost from the rate card. Enforces invariant #3 (cost
// additivity): assistant.cost is always the sum, over steps, of usage·rate.
func (m *Message) MergeUsage(u Usage, rate RateCard) {
	m.Tokens.Add(u)
	m.Cost += rate.Cost(u)
}

// RateCard gives USD-per-1M-token prices for a model.
type RateCard struct {
	InputPerMTok     float64
	OutputPerMTok    float64
	CacheReadPerMTok float64
	CacheWritePerMTok float64
}

// Cost prices a single usage snapshot (not cumulative) against the card.
func (r RateCard) Cost(u Usage) float64 {
	const million = 1_000_000.0
	return float64(u.Input)*r.InputPerMTok/million +
		float64(u.Output)*r.OutputPerMTok/million +
		float64(u.Cache.Read)*r.CacheReadPerMTok/million +
		float64(u.Cache.Write)*r.CacheWritePerMTok/million
}
