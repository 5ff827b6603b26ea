package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/wonop-io/wonopcore/internal/model"
	"github.com/wonop-io/wonopcore/internal/retry"
)

// maxEmptyStreamEvents bounds how many consecutive events produce nothing
// translatable before the stream is treated as malformed, grounded on the
// teacher's processStream guard of the same name.
const maxEmptyStreamEvents = 300

// Anthropic adapts the Anthropic Messages streaming API to the §6
// StreamChunk contract. Grounded on the teacher's
// internal/agent/providers/anthropic.go (client construction, message/tool
// conversion, processStream's event switch), generalized from the
// teacher's single CompletionChunk struct into paired Start/Delta/End
// chunks and retry.ProviderError instead of the teacher's own
// ProviderError/FailoverReason type.
type Anthropic struct {
	client       anthropic.Client
	defaultModel string
}

// AnthropicConfig configures an Anthropic adapter.
type AnthropicConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
}

// NewAnthropic builds an Anthropic adapter. Requires APIKey.
func NewAnthropic(cfg AnthropicConfig) (*Anthropic, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("provider: anthropic API key is required")
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "claude-sonnet-4-20250514"
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Anthropic{client: anthropic.NewClient(opts...), defaultModel: cfg.DefaultModel}, nil
}

func (a *Anthropic) Name() string { return "anthropic" }

func (a *Anthropic) Models() []ModelInfo {
	return []ModelInfo{
		{ID: "claude-sonnet-4-20250514", Name: "Claude Sonnet 4", ContextSize: 200000, SupportsVision: true},
		{ID: "claude-opus-4-20250514", Name: "Claude Opus 4", ContextSize: 200000, SupportsVision: true},
		{ID: "claude-3-5-sonnet-20241022", Name: "Claude 3.5 Sonnet", ContextSize: 200000, SupportsVision: true},
		{ID: "claude-3-haiku-20240307", Name: "Claude 3 Haiku", ContextSize: 200000, SupportsVision: true},
	}
}

func (a *Anthropic) SupportsTools() bool { return true }

func (a *Anthropic) modelOrDefault(m string) string {
	if m == "" {
		return a.defaultModel
	}
	return m
}

func (a *Anthropic) Stream(ctx context.Context, req Request) (<-chan StreamChunk, error) {
	messages, err := convertMessages(req.Messages)
	if err != nil {
		return nil, fmt.Errorf("provider: converting messages: %w", err)
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.modelOrDefault(req.Model)),
		Messages:  messages,
		MaxTokens: int64(maxTokens),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: req.System}}
	}
	if len(req.Tools) > 0 {
		tools, err := convertTools(req.Tools)
		if err != nil {
			return nil, fmt.Errorf("provider: converting tools: %w", err)
		}
		params.Tools = tools
	}

	stream := a.client.Messages.NewStreaming(ctx, params)

	out := make(chan StreamChunk, 16)
	go a.translate(stream, out, params.Model.String())
	return out, nil
}

func convertMessages(msgs []Message) ([]anthropic.MessageParam, error) {
	var result []anthropic.MessageParam
	for _, msg := range msgs {
		var content []anthropic.ContentBlockParamUnion
		if msg.Text != "" {
			content = append(content, anthropic.NewTextBlock(msg.Text))
		}
		for _, r := range msg.Results {
			content = append(content, anthropic.NewToolResultBlock(r.ToolCallID, r.Output, !r.Success))
		}
		for _, c := range msg.Tools {
			var input map[string]interface{}
			if len(c.Arguments) > 0 {
				if err := json.Unmarshal(c.Arguments, &input); err != nil {
					return nil, fmt.Errorf("invalid tool call arguments for %s: %w", c.Name, err)
				}
			}
			content = append(content, anthropic.NewToolUseBlock(c.ID, input, c.Name))
		}
		if len(content) == 0 {
			continue
		}
		if msg.Role == model.RoleAssistant {
			result = append(result, anthropic.NewAssistantMessage(content...))
		} else {
			result = append(result, anthropic.NewUserMessage(content...))
		}
	}
	return result, nil
}

func convertTools(tools []ToolDescriptor) ([]anthropic.ToolUnionParam, error) {
	var result []anthropic.ToolUnionParam
	for _, t := range tools {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(t.Schema, &schema); err != nil {
			return nil, fmt.Errorf("invalid schema for %s: %w", t.Name, err)
		}
		param := anthropic.ToolUnionParamOfTool(schema, t.Name)
		if param.OfTool == nil {
			return nil, fmt.Errorf("invalid schema for %s: missing tool definition", t.Name)
		}
		param.OfTool.Description = anthropic.String(t.Description)
		result = append(result, param)
	}
	return result, nil
}

// translate consumes the SSE stream and emits §6 StreamChunks, pairing
// every Start with its End before any FinishStep and delivering ToolCall
// only after ToolCallStart, per the provider obligations in §6.
func (a *Anthropic) translate(stream anthropicEventStream, out chan<- StreamChunk, modelID string) {
	defer close(out)

	var (
		inText, inReasoning, inTool bool
		toolID, toolName            string
		toolInput                   strings.Builder
		inputTokens, outputTokens   int64
		emptyEvents                 int
	)

	for stream.Next() {
		event := stream.Current()
		handled := true

		switch event.Type {
		case "message_start":
			ms := event.AsMessageStart()
			inputTokens = ms.Message.Usage.InputTokens

		case "content_block_start":
			block := event.AsContentBlockStart().ContentBlock
			switch block.Type {
			case "text":
				inText = true
				out <- StreamChunk{Kind: ChunkTextStart}
			case "thinking":
				inReasoning = true
				out <- StreamChunk{Kind: ChunkReasoningStart}
			case "tool_use":
				tu := block.AsToolUse()
				toolID, toolName = tu.ID, tu.Name
				toolInput.Reset()
				inTool = true
				out <- StreamChunk{Kind: ChunkToolCallStart, ToolCallID: toolID, ToolName: toolName}
			default:
				handled = false
			}

		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				if delta.Text != "" {
					out <- StreamChunk{Kind: ChunkTextDelta, Text: delta.Text}
				}
			case "thinking_delta":
				if delta.Thinking != "" {
					out <- StreamChunk{Kind: ChunkReasoningDelta, Text: delta.Thinking}
				}
			case "input_json_delta":
				if delta.PartialJSON != "" {
					toolInput.WriteString(delta.PartialJSON)
					out <- StreamChunk{Kind: ChunkToolCallDelta, ToolCallID: toolID, ArgsDelta: delta.PartialJSON}
				}
			default:
				handled = false
			}

		case "content_block_stop":
			switch {
			case inTool:
				out <- StreamChunk{Kind: ChunkToolCall, ToolCallID: toolID, ToolName: toolName, Arguments: json.RawMessage(toolInput.String())}
				inTool = false
			case inReasoning:
				out <- StreamChunk{Kind: ChunkReasoningEnd}
				inReasoning = false
			case inText:
				out <- StreamChunk{Kind: ChunkTextEnd}
				inText = false
			default:
				handled = false
			}

		case "message_delta":
			md := event.AsMessageDelta()
			if md.Usage.OutputTokens > 0 {
				outputTokens = md.Usage.OutputTokens
			}

		case "message_stop":
			out <- StreamChunk{
				Kind:         ChunkFinishStep,
				Usage:        model.Usage{Input: inputTokens, Output: outputTokens},
				FinishReason: model.FinishEndTurn,
			}
			return

		case "error":
			out <- StreamChunk{Kind: ChunkError, ErrMessage: "anthropic stream error"}
			return

		default:
			handled = false
		}

		if handled {
			emptyEvents = 0
		} else {
			emptyEvents++
			if emptyEvents >= maxEmptyStreamEvents {
				out <- StreamChunk{Kind: ChunkError, ErrMessage: fmt.Sprintf("stream appears malformed after %d empty events", emptyEvents)}
				return
			}
		}
	}

	if err := stream.Err(); err != nil {
		out <- StreamChunk{Kind: ChunkError, ErrMessage: wrapProviderError(err, modelID).Error()}
	}
}

// anthropicEventStream is the subset of ssestream.Stream[anthropic.MessageStreamEventUnion]
// translate needs, narrowed to an interface so tests can substitute a fake
// stream without constructing a real SSE connection.
type anthropicEventStream interface {
	Next() bool
	Current() anthropic.MessageStreamEventUnion
	Err() error
}

// wrapProviderError converts a transport-level Anthropic SDK error into
// retry.ProviderError so the Session Runner's retry loop can classify it,
// grounded on the teacher's wrapError status/message extraction.
func wrapProviderError(err error, modelID string) error {
	if err == nil {
		return nil
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return &retry.ProviderError{Status: apiErr.StatusCode, Message: apiErr.Error(), Err: err}
	}
	return &retry.ProviderError{Message: fmt.Sprintf("anthropic(%s): %v", modelID, err), Err: err}
}
