package model

import "fmt"

// TodoStatus is the lifecycle state of a single todo item.
type TodoStatus string

const (
	TodoPending    TodoStatus = "pending"
	TodoInProgress TodoStatus = "in_progress"
	TodoCompleted  TodoStatus = "completed"
	TodoCancelled  TodoStatus = "cancelled"
)

// Todo is one item within a phase.
type Todo struct {
	ID       string     `json:"id"`
	Content  string     `json:"content"`
	Status   TodoStatus `json:"status"`
	Priority int        `json:"priority"`
}

// Phase is a named, ordered group of todos.
type Phase struct {
	Name  string `json:"name"`
	Todos []Todo `json:"todos"`
}

// PhasedTodos is the shared todo-file structure: ordered phases, each
// containing todos. Invariant: at most one todo across all phases is
// InProgress.
type PhasedTodos struct {
	Phases []Phase `json:"phases"`
}

// InProgressCount returns how many todos across all phases are InProgress.
func (p *PhasedTodos) InProgressCount() int {
	n := 0
	for _, ph := range p.Phases {
		for _, t := range ph.Todos {
			if t.Status == TodoInProgress {
				n++
			}
		}
	}
	return n
}

// Validate enforces the at-most-one-in_progress invariant (§3, testable
// property #8).
func (p *PhasedTodos) Validate() error {
	if n := p.InProgressCount(); n > 1 {
		return fmt.Errorf("todo invariant violated: %d todos in_progress, want at most 1", n)
	}
	return nil
}

// SetStatus finds the todo with the given id across all phases and sets its
// status, rejecting the change if it would violate the in_progress
// invariant. Returns the phase name the todo lives in.
func (p *PhasedTodos) SetStatus(todoID string, status TodoStatus) (string, error) {
	if status == TodoInProgress && p.InProgressCount() > 0 {
		for _, ph := range p.Phases {
			for _, t := range ph.Todos {
				if t.ID == todoID && t.Status == TodoInProgress {
					return ph.Name, nil // already the one in_progress todo
				}
			}
		}
		return "", fmt.Errorf("cannot mark %s in_progress: another todo is already in_progress", todoID)
	}
	for i := range p.Phases {
		for j := range p.Phases[i].Todos {
			if p.Phases[i].Todos[j].ID == todoID {
				p.Phases[i].Todos[j].Status = status
				return p.Phases[i].Name, nil
			}
		}
	}
	return "", fmt.Errorf("todo %s not found", todoID)
}
