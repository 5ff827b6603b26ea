package runner

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/wonop-io/wonopcore/internal/model"
	"github.com/wonop-io/wonopcore/internal/permission"
	"github.com/wonop-io/wonopcore/internal/provider"
	"github.com/wonop-io/wonopcore/internal/toolreg"
)

// TaskTool implements "task": delegates a focused sub-instruction to a
// restricted subagent, per §4.1's subagent contract ("explore": read-only,
// "general": no nested task) and §9's dynamic-tool-dispatch guidance (a
// capability object in the registry, no inheritance). toolsForAgent never
// offers "task" to a "general" step, so a task can't spawn a task.
type TaskTool struct {
	Runner *Runner
}

func (t *TaskTool) ID() string { return "task" }

func (t *TaskTool) Description() string {
	return "Delegate a focused sub-task to a restricted subagent ('explore' is read-only; 'general' has no nested task tool)."
}

func (t *TaskTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"agent": {"type": "string", "enum": ["explore", "general"]},
			"prompt": {"type": "string"}
		},
		"required": ["agent", "prompt"]
	}`)
}

func (t *TaskTool) Execute(tc toolreg.ToolContext, args json.RawMessage) (toolreg.Output, error) {
	var params struct {
		Agent  string `json:"agent"`
		Prompt string `json:"prompt"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return toolreg.Output{}, err
	}
	if params.Agent != AgentExplore && params.Agent != AgentGeneral {
		return toolreg.Output{}, &ValidationError{Tool: "task", Message: "agent must be 'explore' or 'general'"}
	}

	text, err := t.Runner.runSubagent(tc, params.Agent, params.Prompt)
	if err != nil {
		return toolreg.Output{}, err
	}
	return toolreg.Output{Text: text, Metadata: map[string]any{"agent": params.Agent}}, nil
}

// runSubagent drives an independent, single-turn model-and-tool loop for a
// task-tool delegation. It shares the outer Runner's provider, registry
// (filtered by agent), file-time tracker, snapshots and sandbox, but never
// the outer session's Permission Manager: a subagent gets a fresh,
// rule-less Manager so a parent's learned/denied rules neither leak into
// nor get polluted by a child's decisions. It inherits the parent's
// abort-token chain by running under tc.Context directly, so cancelling
// the outer turn cancels every in-flight subagent too.
func (r *Runner) runSubagent(tc toolreg.ToolContext, agent, prompt string) (string, error) {
	subPerm := permission.NewManager(r.Bus)
	subDispatcher := toolreg.NewDispatcher(r.Registry, subPerm, r.Bus)
	descriptors := toProviderTools(r.toolsForAgent(agent))

	req := provider.Request{
		System:    r.System,
		Messages:  []provider.Message{{Role: model.RoleUser, Text: prompt}},
		Tools:     descriptors,
		MaxTokens: r.maxTokens(),
	}

	var finalText strings.Builder
	for step := 0; step < r.maxSteps(); step++ {
		sink := make(chan AppUpdate, 16)
		drained := make(chan struct{})
		go func() {
			defer close(drained)
			for range sink {
				// Subagent deltas never reach the outer AppUpdate stream;
				// only its final text (the task tool's Output) does.
			}
		}()
		result, err := r.runStep(tc.Context, sink, req)
		close(sink)
		<-drained
		if err != nil {
			return finalText.String(), fmt.Errorf("task(%s): %w", agent, err)
		}
		finalText.WriteString(result.text)
		if result.cancelled {
			return finalText.String(), tc.Context.Err()
		}
		if len(result.toolCalls) == 0 {
			return finalText.String(), nil
		}

		assistantTurn := provider.Message{Role: model.RoleAssistant, Text: result.text}
		var toolResults []provider.ToolResultRecord
		for _, call := range result.toolCalls {
			assistantTurn.Tools = append(assistantTurn.Tools, provider.ToolCallRecord{ID: call.ID, Name: call.Name, Arguments: call.Arguments})

			var input map[string]any
			_ = json.Unmarshal(call.Arguments, &input)
			part := model.NewPendingToolPart(tc.MessageID, call.Name, input)
			part.Tool.CallID = call.ID

			output, derr := subDispatcher.Dispatch(tc, toolreg.Call{ID: call.ID, Name: call.Name, Arguments: call.Arguments}, &part)
			success := derr == nil
			text := output.Text
			if !success {
				text = derr.Error()
			}
			toolResults = append(toolResults, provider.ToolResultRecord{ToolCallID: call.ID, Success: success, Output: text})
		}
		req.Messages = append(req.Messages, assistantTurn, provider.Message{Role: model.RoleUser, Results: toolResults})
	}

	return finalText.String(), fmt.Errorf("task(%s): exceeded %d steps", agent, r.maxSteps())
}
