package bus

import "github.com/wonop-io/wonopcore/internal/model"

// Event type tags. Constant strings, never reflection — see Event's doc
// comment in bus.go.
const (
	TypeSessionCreated     = "session.created"
	TypeSessionUpdated     = "session.updated"
	TypeMessageCreated     = "message.created"
	TypeMessageRemoved     = "message.removed"
	TypePartCreated        = "part.created"
	TypePartUpdated        = "part.updated"
	TypePartRemoved        = "part.removed"
	TypeUsageUpdated       = "usage.updated"
	TypeTodosUpdated       = "todos.updated"
	TypePermissionRequested = "permission.requested"
	TypePermissionDecided  = "permission.decided"
	TypeToolStarted        = "tool.started"
	TypeToolCompleted      = "tool.completed"
	TypeInstanceDisposed   = "instance.disposed"
	TypeMemoryWarning      = "sandbox.memory_warning"
	TypeCpuWarning         = "sandbox.cpu_warning"
)

// SessionCreated announces a new session.
type SessionCreated struct {
	SessionID string `json:"session_id"`
	ProjectID string `json:"project_id"`
}

func (SessionCreated) EventType() string { return TypeSessionCreated }

// SessionUpdated announces a session record change.
type SessionUpdated struct {
	SessionID string `json:"session_id"`
}

func (SessionUpdated) EventType() string { return TypeSessionUpdated }

// MessageCreated announces a new message in a session.
type MessageCreated struct {
	SessionID string     `json:"session_id"`
	MessageID string     `json:"message_id"`
	Role      model.Role `json:"role"`
}

func (MessageCreated) EventType() string { return TypeMessageCreated }

// MessageRemoved announces a message deletion (only via revert.cleanup).
type MessageRemoved struct {
	SessionID string `json:"session_id"`
	MessageID string `json:"message_id"`
}

func (MessageRemoved) EventType() string { return TypeMessageRemoved }

// PartCreated announces a new part appended to a message.
type PartCreated struct {
	MessageID string        `json:"message_id"`
	PartID    string        `json:"part_id"`
	Kind      model.PartKind `json:"kind"`
}

func (PartCreated) EventType() string { return TypePartCreated }

// PartUpdated announces a part's state changed (e.g. a tool part's
// Pending->Running->Completed/Error transitions).
type PartUpdated struct {
	MessageID string       `json:"message_id"`
	Part      model.MessagePart `json:"part"`
}

func (PartUpdated) EventType() string { return TypePartUpdated }

// PartRemoved announces a part deletion (only via revert.cleanup).
type PartRemoved struct {
	MessageID string `json:"message_id"`
	PartID    string `json:"part_id"`
}

func (PartRemoved) EventType() string { return TypePartRemoved }

// UsageUpdated announces a change to an assistant message's running cost
// and token totals.
type UsageUpdated struct {
	MessageID string      `json:"message_id"`
	Cost      float64     `json:"cost"`
	Tokens    model.Usage `json:"tokens"`
}

func (UsageUpdated) EventType() string { return TypeUsageUpdated }

// TodosUpdated announces the shared todo file changed.
type TodosUpdated struct {
	SessionID string `json:"session_id"`
}

func (TodosUpdated) EventType() string { return TypeTodosUpdated }

// PermissionRequested announces a pending Ask decision, per §4.3's Ask
// protocol step 2.
type PermissionRequested struct {
	RequestID   string `json:"request_id"`
	SessionID   string `json:"session_id"`
	Tool        string `json:"tool"`
	Action      string `json:"action"`
	Description string `json:"description"`
	Path        string `json:"path,omitempty"`
}

func (PermissionRequested) EventType() string { return TypePermissionRequested }

// PermissionDecided announces the outcome of a permission decision.
type PermissionDecided struct {
	RequestID string `json:"request_id,omitempty"`
	SessionID string `json:"session_id"`
	Tool      string `json:"tool"`
	RuleID    string `json:"rule_id,omitempty"`
	Matcher   string `json:"matcher,omitempty"`
	Allowed   bool   `json:"allowed"`
	Reason    string `json:"reason"`
}

func (PermissionDecided) EventType() string { return TypePermissionDecided }

// ToolStarted announces a tool transitioned to Running.
type ToolStarted struct {
	SessionID  string `json:"session_id"`
	MessageID  string `json:"message_id"`
	ToolCallID string `json:"tool_call_id"`
	Tool       string `json:"tool"`
}

func (ToolStarted) EventType() string { return TypeToolStarted }

// ToolCompleted announces a tool reached a terminal state.
type ToolCompleted struct {
	SessionID  string `json:"session_id"`
	MessageID  string `json:"message_id"`
	ToolCallID string `json:"tool_call_id"`
	Tool       string `json:"tool"`
	Success    bool   `json:"success"`
	Output     string `json:"output,omitempty"`
}

func (ToolCompleted) EventType() string { return TypeToolCompleted }

// InstanceDisposed announces an Instance (directory container) shut down.
type InstanceDisposed struct {
	Directory string `json:"directory"`
}

func (InstanceDisposed) EventType() string { return TypeInstanceDisposed }

// MemoryWarning is emitted by the Sandbox Runtime's resource monitor when
// container memory usage crosses the configured threshold.
type MemoryWarning struct {
	SandboxID string  `json:"sandbox_id"`
	UsedBytes int64   `json:"used_bytes"`
	LimitBytes int64  `json:"limit_bytes"`
	Fraction  float64 `json:"fraction"`
}

func (MemoryWarning) EventType() string { return TypeMemoryWarning }

// CpuWarning is emitted by the Sandbox Runtime's resource monitor when
// container CPU usage crosses the configured threshold.
type CpuWarning struct {
	SandboxID string  `json:"sandbox_id"`
	Percent   float64 `json:"percent"`
}

func (CpuWarning) EventType() string { return TypeCpuWarning }
