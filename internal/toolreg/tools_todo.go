package toolreg

import (
	"encoding/json"

	"github.com/wonop-io/wonopcore/internal/bus"
	"github.com/wonop-io/wonopcore/internal/model"
	"github.com/wonop-io/wonopcore/internal/store"
)

func todoKey(sessionID string) store.Key {
	return store.Key{"todos", sessionID}
}

// TodoWriteTool implements "todowrite": replaces the shared todo file for
// the session, enforcing the at-most-one-in_progress invariant before
// persisting, then announces the change on the Bus, per §4.2.
type TodoWriteTool struct{}

func (TodoWriteTool) ID() string          { return "todowrite" }
func (TodoWriteTool) Description() string { return "Replace the session's phased todo list." }
func (TodoWriteTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"phases": {
				"type": "array",
				"items": {
					"type": "object",
					"properties": {
						"name": {"type": "string"},
						"todos": {
							"type": "array",
							"items": {
								"type": "object",
								"properties": {
									"id": {"type": "string"},
									"content": {"type": "string"},
									"status": {"type": "string", "enum": ["pending", "in_progress", "completed", "cancelled"]},
									"priority": {"type": "integer"}
								},
								"required": ["id", "content", "status"]
							}
						}
					},
					"required": ["name", "todos"]
				}
			}
		},
		"required": ["phases"]
	}`)
}

func (TodoWriteTool) Execute(tc ToolContext, args json.RawMessage) (Output, error) {
	var todos model.PhasedTodos
	if err := json.Unmarshal(args, &todos); err != nil {
		return Output{}, err
	}
	if err := todos.Validate(); err != nil {
		return Output{}, err
	}

	if tc.Todos != nil {
		if err := tc.Todos.Write(todoKey(tc.SessionID), todos); err != nil {
			return Output{}, err
		}
	}

	if tc.Emit != nil {
		tc.Emit(bus.TodosUpdated{SessionID: tc.SessionID})
	}

	total, done := 0, 0
	for _, ph := range todos.Phases {
		for _, t := range ph.Todos {
			total++
			if t.Status == model.TodoCompleted {
				done++
			}
		}
	}

	return Output{Text: "todos updated", Metadata: map[string]any{"phases": len(todos.Phases), "total": total, "completed": done}}, nil
}
