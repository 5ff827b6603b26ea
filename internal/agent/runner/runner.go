package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/wonop-io/wonopcore/internal/bus"
	"github.com/wonop-io/wonopcore/internal/filetime"
	"github.com/wonop-io/wonopcore/internal/model"
	"github.com/wonop-io/wonopcore/internal/permission"
	"github.com/wonop-io/wonopcore/internal/provider"
	"github.com/wonop-io/wonopcore/internal/retry"
	"github.com/wonop-io/wonopcore/internal/sandbox"
	"github.com/wonop-io/wonopcore/internal/store"
	"github.com/wonop-io/wonopcore/internal/toolreg"
)

// Agent names recognized by toolsForAgent. Any other string is treated as
// the unrestricted main agent.
const (
	AgentMain    = "main"
	AgentExplore = "explore"
	AgentGeneral = "general"
)

const (
	defaultMaxSteps  = 50
	defaultMaxTokens = 4096
)

// Runner wires together every component of §4 into the single-writer
// per-session state machine of §4.1. One Runner instance drives one
// session's turn sequence; Run is the only entrypoint.
type Runner struct {
	Store      *store.SessionStore
	Snapshots  *store.SnapshotStore
	Bus        *bus.Bus
	Permission *permission.Manager
	Registry   *toolreg.Registry
	Dispatcher *toolreg.Dispatcher
	FileTimes  *filetime.State
	Sandbox    sandbox.SandboxRuntime
	Todos      store.Store

	Provider provider.LLMProvider
	RateCard model.RateCard
	System   string

	MaxSteps    int
	MaxTokens   int
	RetryConfig retry.Config
}

// NewRunner builds a Runner from its required dependencies, applying the
// spec's defaults (§4.7's retry Config, a 50-step tool-loop ceiling). It
// registers a TaskTool bound to itself into registry and freezes it, so
// registry must not already be frozen when this is called.
func NewRunner(
	sessions *store.SessionStore,
	snapshots *store.SnapshotStore,
	b *bus.Bus,
	perm *permission.Manager,
	registry *toolreg.Registry,
	fileTimes *filetime.State,
	sbox sandbox.SandboxRuntime,
	todos store.Store,
	llm provider.LLMProvider,
	rate model.RateCard,
) (*Runner, error) {
	r := &Runner{
		Store:       sessions,
		Snapshots:   snapshots,
		Bus:         b,
		Permission:  perm,
		Registry:    registry,
		Dispatcher:  toolreg.NewDispatcher(registry, perm, b),
		FileTimes:   fileTimes,
		Sandbox:     sbox,
		Todos:       todos,
		Provider:    llm,
		RateCard:    rate,
		MaxSteps:    defaultMaxSteps,
		MaxTokens:   defaultMaxTokens,
		RetryConfig: retry.DefaultConfig(),
	}
	if err := registry.Register(&TaskTool{Runner: r}); err != nil {
		return nil, fmt.Errorf("runner: registering task tool: %w", err)
	}
	registry.Freeze()
	return r, nil
}

func (r *Runner) maxSteps() int {
	if r.MaxSteps <= 0 {
		return defaultMaxSteps
	}
	return r.MaxSteps
}

func (r *Runner) maxTokens() int {
	if r.MaxTokens <= 0 {
		return defaultMaxTokens
	}
	return r.MaxTokens
}

// Run consumes actions and produces updates, per §4.1: "operations never
// throw to the caller; all failure is reported as an Error update." The
// returned channel is closed when actions is closed, a Quit action is
// received, or ctx is cancelled. The Runner is sess's single writer: all
// mutation of its messages/parts happens on the goroutine this spawns.
func (r *Runner) Run(ctx context.Context, sess *model.Session, actions <-chan AppAction) <-chan AppUpdate {
	out := make(chan AppUpdate, 32)
	go r.loop(ctx, sess, actions, out)
	return out
}

func (r *Runner) loop(ctx context.Context, sess *model.Session, actions <-chan AppAction, out chan<- AppUpdate) {
	defer close(out)

	curModelID := ""
	curProviderID := r.Provider.Name()
	curAgent := AgentMain

	var cancelTurn context.CancelFunc
	var turnDone chan struct{}

	for {
		select {
		case <-ctx.Done():
			if cancelTurn != nil {
				cancelTurn()
			}
			return

		case <-turnDone:
			cancelTurn = nil
			turnDone = nil

		case a, ok := <-actions:
			if !ok {
				if cancelTurn != nil {
					cancelTurn()
				}
				return
			}
			switch a.Kind {
			case ActionQuit:
				if cancelTurn != nil {
					cancelTurn()
				}
				return

			case ActionChangeModel:
				curModelID = a.ModelID
				if a.ProviderID != "" {
					curProviderID = a.ProviderID
				}

			case ActionChangeAgent:
				curAgent = a.Agent

			case ActionPermissionResponse:
				if r.Permission != nil {
					_ = r.Permission.Respond(a.Permission)
				}

			case ActionCancel:
				if cancelTurn != nil {
					cancelTurn()
				}

			case ActionSendPrompt:
				if turnDone != nil {
					// A turn is already in flight; the caller must Cancel
					// (or wait for Completed) before sending another
					// prompt. Dropping it silently would lose input, so
					// report it instead.
					out <- AppUpdate{Kind: UpdateError, ErrMessage: "a turn is already in progress"}
					continue
				}
				turnCtx, cancel := context.WithCancel(ctx)
				cancelTurn = cancel
				done := make(chan struct{})
				turnDone = done
				modelID, providerID, agent := curModelID, curProviderID, curAgent
				go func(text string) {
					defer close(done)
					r.runTurn(turnCtx, sess, text, modelID, providerID, agent, out)
				}(a.Text)
			}
		}
	}
}

// stepResult is the accumulated effect of one provider Stream call, after
// every chunk has been translated and (for deltas) forwarded live.
type stepResult struct {
	text      string
	reasoning string
	toolCalls []pendingToolCall
	usage     model.Usage
	finish    model.FinishReason
	cancelled bool
}

type pendingToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// runTurn executes one full SendPrompt: persist the user message, loop
// model steps (dispatching tool calls between them) until the model stops
// requesting tools or MaxSteps is hit, and always finish by emitting
// exactly one of Completed or Error, per §4.1/§7.
func (r *Runner) runTurn(ctx context.Context, sess *model.Session, prompt, modelID, providerID, agent string, out chan<- AppUpdate) {
	now := time.Now()

	userMsg := model.NewUserMessage(sess.ID, now)
	if err := r.createMessage(userMsg); err != nil {
		out <- AppUpdate{Kind: UpdateError, ErrMessage: err.Error()}
		return
	}
	userText := model.NewTextPart(userMsg.ID, prompt)
	if err := r.createPart(&userText); err != nil {
		out <- AppUpdate{Kind: UpdateError, ErrMessage: err.Error()}
		return
	}

	path := model.AssistantPath{Cwd: sess.Directory, Root: sess.Directory}
	assistantMsg := model.NewAssistantMessage(sess.ID, userMsg.ID, modelID, providerID, agent, path, now)
	if err := r.createMessage(assistantMsg); err != nil {
		out <- AppUpdate{Kind: UpdateError, ErrMessage: err.Error()}
		return
	}

	var turnText strings.Builder
	descriptors := toProviderTools(r.toolsForAgent(agent))

	for step := 0; step < r.maxSteps(); step++ {
		stepStart := model.NewStepStartPart(assistantMsg.ID)
		if err := r.createPart(&stepStart); err != nil {
			out <- AppUpdate{Kind: UpdateError, ErrMessage: err.Error()}
			return
		}

		req, err := r.buildRequest(sess, modelID, descriptors)
		if err != nil {
			r.finishWithError(assistantMsg, "build_request", err, out)
			return
		}

		result, err := r.runStep(ctx, out, req)
		if err != nil {
			r.finishWithError(assistantMsg, classifyFatal(err), err, out)
			return
		}
		if result.cancelled {
			turnText.WriteString(result.text)
			r.finishCancelled(assistantMsg, turnText.String(), out)
			return
		}

		if result.text != "" {
			turnText.WriteString(result.text)
			part := model.NewTextPart(assistantMsg.ID, result.text)
			if err := r.createPart(&part); err != nil {
				out <- AppUpdate{Kind: UpdateError, ErrMessage: err.Error()}
				return
			}
		}
		if result.reasoning != "" {
			part := model.NewReasoningPart(assistantMsg.ID, result.reasoning)
			if err := r.createPart(&part); err != nil {
				out <- AppUpdate{Kind: UpdateError, ErrMessage: err.Error()}
				return
			}
		}

		finishPart := model.NewStepFinishPart(assistantMsg.ID, result.usage, result.finish)
		if err := r.createPart(&finishPart); err != nil {
			out <- AppUpdate{Kind: UpdateError, ErrMessage: err.Error()}
			return
		}

		assistantMsg.MergeUsage(result.usage, r.RateCard)
		if err := r.Store.PutMessage(assistantMsg); err != nil {
			out <- AppUpdate{Kind: UpdateError, ErrMessage: err.Error()}
			return
		}
		if r.Bus != nil {
			r.Bus.Publish(bus.UsageUpdated{MessageID: assistantMsg.ID, Cost: assistantMsg.Cost, Tokens: assistantMsg.Tokens})
		}
		out <- AppUpdate{Kind: UpdateUsageUpdated, MessageID: assistantMsg.ID, Cost: assistantMsg.Cost, Tokens: assistantMsg.Tokens}

		if len(result.toolCalls) == 0 {
			r.finishCompleted(assistantMsg, turnText.String(), out)
			return
		}

		cancelled, err := r.dispatchTools(ctx, sess, assistantMsg, agent, result.toolCalls, out)
		if err != nil {
			r.finishWithError(assistantMsg, "tool_dispatch", err, out)
			return
		}
		if cancelled {
			r.finishCancelled(assistantMsg, turnText.String(), out)
			return
		}
	}

	r.finishWithError(assistantMsg, "max_steps", fmt.Errorf("exceeded %d model steps without finishing", r.maxSteps()), out)
}

// runStep drives one provider.Stream call (retried per §4.7's classifier/
// backoff policy) to completion, forwarding TextDelta/ReasoningDelta live
// and accumulating everything else for the caller. A Cancel (ctx done)
// stops the loop immediately without triggering a retry.
func (r *Runner) runStep(ctx context.Context, out chan<- AppUpdate, req provider.Request) (stepResult, error) {
	var result stepResult

	err := retry.Do(ctx, r.RetryConfig, func(ctx context.Context, attempt int) error {
		result = stepResult{}
		ch, err := r.Provider.Stream(ctx, req)
		if err != nil {
			return err
		}

		toolArgs := map[string]*strings.Builder{}
		toolNames := map[string]string{}

	drain:
		for {
			select {
			case <-ctx.Done():
				result.cancelled = true
				break drain
			case c, ok := <-ch:
				if !ok {
					break drain
				}
				switch c.Kind {
				case provider.ChunkTextDelta:
					result.text += c.Text
					out <- AppUpdate{Kind: UpdateTextDelta, Text: c.Text}
				case provider.ChunkReasoningDelta:
					result.reasoning += c.Text
					out <- AppUpdate{Kind: UpdateReasoningDelta, Text: c.Text}
				case provider.ChunkToolCallStart:
					toolArgs[c.ToolCallID] = &strings.Builder{}
					toolNames[c.ToolCallID] = c.ToolName
				case provider.ChunkToolCallDelta:
					if b, ok := toolArgs[c.ToolCallID]; ok {
						b.WriteString(c.ArgsDelta)
					}
				case provider.ChunkToolCall:
					args := c.Arguments
					if len(args) == 0 {
						if b, ok := toolArgs[c.ToolCallID]; ok && b.Len() > 0 {
							args = json.RawMessage(b.String())
						}
					}
					name := c.ToolName
					if name == "" {
						name = toolNames[c.ToolCallID]
					}
					result.toolCalls = append(result.toolCalls, pendingToolCall{ID: c.ToolCallID, Name: name, Arguments: args})
				case provider.ChunkFinishStep:
					result.usage = c.Usage
					result.finish = c.FinishReason
				case provider.ChunkError:
					return fmt.Errorf("provider stream error: %s", c.ErrMessage)
				}
			}
		}
		return nil
	})

	return result, err
}

// classifyFatal labels why runStep gave up, for the persisted
// MessageError.Kind (§7's "assistant message records error: {kind,
// message}").
func classifyFatal(err error) string {
	if retry.IsPermanent(err) {
		return "permanent"
	}
	return "transient_exhausted"
}

func (r *Runner) finishCompleted(msg *model.Message, text string, out chan<- AppUpdate) {
	completed := time.Now()
	msg.Time.Completed = &completed
	if err := r.Store.PutMessage(msg); err != nil {
		out <- AppUpdate{Kind: UpdateError, ErrMessage: err.Error()}
		return
	}
	out <- AppUpdate{Kind: UpdateCompleted, Text: text}
}

func (r *Runner) finishCancelled(msg *model.Message, text string, out chan<- AppUpdate) {
	completed := time.Now()
	msg.Time.Completed = &completed
	msg.FinishReason = model.FinishOther
	_ = r.Store.PutMessage(msg)
	out <- AppUpdate{Kind: UpdateCompleted, Text: text}
}

func (r *Runner) finishWithError(msg *model.Message, kind string, err error, out chan<- AppUpdate) {
	completed := time.Now()
	msg.Time.Completed = &completed
	msg.Error = &model.MessageError{Kind: kind, Message: err.Error()}
	_ = r.Store.PutMessage(msg)
	out <- AppUpdate{Kind: UpdateError, ErrMessage: err.Error()}
}

// dispatchTools runs every tool call in result.toolCalls concurrently
// (joined before the next model step, per §5's concurrency model),
// persisting each Tool part's Pending->terminal transition and bridging
// the Dispatcher's bus events into AppUpdates.
func (r *Runner) dispatchTools(ctx context.Context, sess *model.Session, assistantMsg *model.Message, agent string, calls []pendingToolCall, out chan<- AppUpdate) (cancelled bool, err error) {
	parts := make([]*model.MessagePart, len(calls))
	for i, call := range calls {
		var input map[string]any
		_ = json.Unmarshal(call.Arguments, &input)
		part := model.NewPendingToolPart(assistantMsg.ID, call.Name, input)
		part.Tool.CallID = call.ID
		if err := r.createPart(&part); err != nil {
			return false, err
		}
		parts[i] = &part
		out <- AppUpdate{Kind: UpdateToolStarted, ToolCallID: call.ID, ToolName: call.Name}
	}

	type dispatched struct {
		output toolreg.Output
		err    error
	}
	results := make([]dispatched, len(calls))

	var wg sync.WaitGroup
	for i := range calls {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tc := toolreg.ToolContext{
				Context:   ctx,
				SessionID: sess.ID,
				MessageID: assistantMsg.ID,
				Agent:     agent,
				RootDir:   sess.Directory,
				Cwd:       sess.Directory,
				Snapshots: r.Snapshots,
				FileTimes: r.FileTimes,
				Sandbox:   r.Sandbox,
				Todos:     r.Todos,
				Emit: func(e any) {
					if ev, ok := e.(bus.Event); ok && r.Bus != nil {
						r.Bus.Publish(ev)
					}
				},
			}
			output, derr := r.Dispatcher.Dispatch(tc, toolreg.Call{ID: calls[i].ID, Name: calls[i].Name, Arguments: calls[i].Arguments}, parts[i])
			results[i] = dispatched{output: output, err: derr}
		}(i)
	}
	wg.Wait()

	for i, call := range calls {
		// Dispatch mutates parts[i] in place but only publishes the
		// change on the bus; persist the terminal state ourselves.
		if perr := r.Store.PutPart(parts[i]); perr != nil && err == nil {
			err = perr
		}
		success := results[i].err == nil
		output := results[i].output.Text
		if !success {
			output = results[i].err.Error()
		}
		out <- AppUpdate{Kind: UpdateToolCompleted, ToolCallID: call.ID, ToolName: call.Name, ToolSuccess: success, ToolOutput: output}
	}

	if ctx.Err() != nil {
		return true, nil
	}
	return false, err
}

// buildRequest reconstructs the full provider-agnostic conversation history
// for sess from persisted messages/parts: each stored Message becomes one
// provider.Message (for tool_use content) plus, when it carries completed
// or errored Tool parts, a following synthetic provider.Message carrying
// the corresponding tool_result content — matching Anthropic's (and every
// other major provider's) requirement that a tool_use turn be immediately
// followed by its tool_result turn.
func (r *Runner) buildRequest(sess *model.Session, modelID string, tools []provider.ToolDescriptor) (provider.Request, error) {
	ids, err := r.Store.ListMessages(sess.ID)
	if err != nil {
		return provider.Request{}, err
	}

	var messages []provider.Message
	for _, id := range ids {
		msg, err := r.Store.GetMessage(sess.ID, id)
		if err != nil {
			return provider.Request{}, err
		}
		parts, err := r.Store.LoadParts(id)
		if err != nil {
			return provider.Request{}, err
		}

		switch msg.Role {
		case model.RoleUser:
			var text strings.Builder
			for _, p := range parts {
				if p.Kind == model.PartText {
					text.WriteString(p.Text)
				}
			}
			if text.Len() > 0 {
				messages = append(messages, provider.Message{Role: model.RoleUser, Text: text.String()})
			}

		case model.RoleAssistant:
			var text strings.Builder
			var calls []provider.ToolCallRecord
			var results []provider.ToolResultRecord
			for _, p := range parts {
				switch p.Kind {
				case model.PartText:
					text.WriteString(p.Text)
				case model.PartTool:
					if p.Tool == nil {
						continue
					}
					argsJSON, _ := json.Marshal(p.Tool.Input)
					calls = append(calls, provider.ToolCallRecord{ID: p.Tool.CallID, Name: p.ToolName, Arguments: argsJSON})
					if p.Tool.State == model.ToolCompleted || p.Tool.State == model.ToolError {
						results = append(results, provider.ToolResultRecord{
							ToolCallID: p.Tool.CallID,
							Success:    p.Tool.State == model.ToolCompleted,
							Output:     toolResultText(p.Tool),
						})
					}
				}
			}
			if text.Len() > 0 || len(calls) > 0 {
				messages = append(messages, provider.Message{Role: model.RoleAssistant, Text: text.String(), Tools: calls})
			}
			if len(results) > 0 {
				messages = append(messages, provider.Message{Role: model.RoleUser, Results: results})
			}
		}
	}

	return provider.Request{
		Model:     modelID,
		System:    r.System,
		Messages:  messages,
		Tools:     tools,
		MaxTokens: r.maxTokens(),
	}, nil
}

func toolResultText(t *model.ToolCallState) string {
	if t.State == model.ToolError {
		return t.Error
	}
	return t.Output
}

func (r *Runner) createMessage(msg *model.Message) error {
	if err := r.Store.PutMessage(msg); err != nil {
		return err
	}
	if r.Bus != nil {
		r.Bus.Publish(bus.MessageCreated{SessionID: msg.SessionID, MessageID: msg.ID, Role: msg.Role})
	}
	return nil
}

func (r *Runner) createPart(part *model.MessagePart) error {
	if err := r.Store.PutPart(part); err != nil {
		return err
	}
	if r.Bus != nil {
		r.Bus.Publish(bus.PartCreated{MessageID: part.MessageID, PartID: part.ID, Kind: part.Kind})
	}
	return nil
}

// toolsForAgent restricts the advertised tool set for a subagent, per
// §4.1's "explore: read-only; general: no nested task" contract. Any agent
// name other than Explore/General (including the empty string and "main")
// is unrestricted.
func (r *Runner) toolsForAgent(agent string) []toolreg.Descriptor {
	all := r.Registry.Descriptors()
	switch agent {
	case AgentExplore:
		allow := map[string]bool{"read": true, "glob": true, "grep": true, "list": true}
		out := make([]toolreg.Descriptor, 0, len(all))
		for _, d := range all {
			if allow[d.ID] {
				out = append(out, d)
			}
		}
		return out
	case AgentGeneral:
		out := make([]toolreg.Descriptor, 0, len(all))
		for _, d := range all {
			if d.ID != "task" {
				out = append(out, d)
			}
		}
		return out
	default:
		return all
	}
}

func toProviderTools(descs []toolreg.Descriptor) []provider.ToolDescriptor {
	out := make([]provider.ToolDescriptor, 0, len(descs))
	for _, d := range descs {
		out = append(out, provider.ToolDescriptor{Name: d.ID, Description: d.Description, Schema: d.Schema})
	}
	return out
}
