// Package toolreg implements the Tool Registry & Dispatch component of
// §4.2: an immutable-after-startup mapping from tool id to capability
// bundle, and the dispatch state machine that validates, arbitrates, and
// runs a streamed tool call.
//
// Grounded on the teacher's internal/agent/tool_registry.go (Tool
// interface shape, thread-safe map-backed registry, AsLLMTools) and its
// jsonschema dependency for argument validation, generalized from the
// teacher's ad hoc policy-pattern filtering to the spec's Permission
// Manager-driven arbitration.
package toolreg

import (
	"context"
	"encoding/json"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/wonop-io/wonopcore/internal/filetime"
	"github.com/wonop-io/wonopcore/internal/permission"
	"github.com/wonop-io/wonopcore/internal/sandbox"
	"github.com/wonop-io/wonopcore/internal/store"
)

// Output is what a tool returns on success.
type Output struct {
	Text     string
	Metadata map[string]any
}

// ToolContext is the value every tool executor receives, per §4.2.
type ToolContext struct {
	Context   context.Context
	SessionID string
	MessageID string
	Agent     string
	RootDir   string
	Cwd       string

	Snapshots *store.SnapshotStore
	FileTimes *filetime.State
	Sandbox   sandbox.SandboxRuntime
	Todos     store.Store

	// Emit, if non-nil, lets a tool publish a live-state event (e.g.
	// todowrite's TodosUpdated) outside the normal PartUpdated flow.
	Emit func(event any)
}

// Tool is the capability bundle the registry stores and the dispatcher
// invokes: an id, a description, a JSON schema for its arguments, and the
// executor itself.
type Tool interface {
	ID() string
	Description() string
	Schema() json.RawMessage
	Execute(tc ToolContext, args json.RawMessage) (Output, error)
}

// NotBatchable names tools the "batch" tool refuses to nest, per §4.2.
var NotBatchable = map[string]bool{"batch": true, "patch": true, "task": true}

// compiledSchema wraps a Tool with its pre-compiled jsonschema.Schema, so
// Dispatch doesn't recompile on every call.
type compiledSchema struct {
	tool   Tool
	schema *jsonschema.Schema
}

func compile(t Tool) (*compiledSchema, error) {
	raw := t.Schema()
	if len(raw) == 0 {
		return &compiledSchema{tool: t}, nil
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(t.ID()+".json", bytesReader(raw)); err != nil {
		return nil, err
	}
	schema, err := compiler.Compile(t.ID() + ".json")
	if err != nil {
		return nil, err
	}
	return &compiledSchema{tool: t, schema: schema}, nil
}

func (c *compiledSchema) validate(args json.RawMessage) error {
	if c.schema == nil {
		return nil
	}
	var v any
	if err := json.Unmarshal(args, &v); err != nil {
		return err
	}
	return c.schema.Validate(v)
}
