package orchestrator

import (
	"time"

	"github.com/google/uuid"
)

// TaskStatus tracks execution state. Transitions are monotonic:
// pending → running → {completed, failed, cancelled}.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
)

// DefaultTaskTimeout bounds a single task execution.
const DefaultTaskTimeout = 5 * time.Minute

// Task is a unit of work assigned to a capability-matched executor.
type Task struct {
	ID           string            `json:"id"`
	Description  string            `json:"description"`
	AgentType    string            `json:"agent_type"`
	Inputs       map[string]string `json:"inputs,omitempty"`
	Dependencies []string          `json:"dependencies,omitempty"`
	ParentID     string            `json:"parent_id,omitempty"`
	Status       TaskStatus        `json:"status"`
	CreatedAt    time.Time         `json:"created_at"`
	StartedAt    *time.Time        `json:"started_at,omitempty"`
	CompletedAt  *time.Time        `json:"completed_at,omitempty"`
	MaxDuration  time.Duration     `json:"max_duration,omitempty"`
	Result       *TaskResult       `json:"result,omitempty"`

	done chan struct{} // closed on the terminal transition
}

// NewTask creates a pending task with a fresh id.
func NewTask(description, agentType string) *Task {
	if agentType == "" {
		agentType = "general"
	}
	return &Task{
		ID:          uuid.New().String(),
		Description: description,
		AgentType:   agentType,
		Status:      TaskPending,
		CreatedAt:   time.Now(),
		done:        make(chan struct{}),
	}
}

// Terminal reports whether the task reached a final status.
func (t *Task) Terminal() bool {
	switch t.Status {
	case TaskCompleted, TaskFailed, TaskCancelled:
		return true
	}
	return false
}

// TaskResult holds the output of a finished task. Metadata attributes the
// result back to the executor that produced it.
type TaskResult struct {
	Success  bool              `json:"success"`
	Output   string            `json:"output,omitempty"`
	Error    string            `json:"error,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Duration time.Duration     `json:"duration,omitempty"`
}

// ResultOK builds a successful result.
func ResultOK(output string, metadata map[string]string) *TaskResult {
	return &TaskResult{Success: true, Output: output, Metadata: metadata}
}

// ResultError builds a failed result.
func ResultError(errMsg string, metadata map[string]string) *TaskResult {
	return &TaskResult{Success: false, Error: errMsg, Metadata: metadata}
}

// TaskSnapshot is the plain-data view of a task handed across the caller
// boundary. It shares no mutable state with the scheduler.
type TaskSnapshot struct {
	ID           string        `json:"id"`
	Description  string        `json:"description"`
	AgentType    string        `json:"agent_type"`
	Dependencies []string      `json:"dependencies,omitempty"`
	ParentID     string        `json:"parent_id,omitempty"`
	Status       TaskStatus    `json:"status"`
	CreatedAt    time.Time     `json:"created_at"`
	StartedAt    *time.Time    `json:"started_at,omitempty"`
	CompletedAt  *time.Time    `json:"completed_at,omitempty"`
	Result       *TaskResult   `json:"result,omitempty"`
	Duration     time.Duration `json:"duration,omitempty"`
}

// snapshot copies the task into a detached view. Caller holds the lock.
func (t *Task) snapshot() *TaskSnapshot {
	s := &TaskSnapshot{
		ID:           t.ID,
		Description:  t.Description,
		AgentType:    t.AgentType,
		Dependencies: append([]string(nil), t.Dependencies...),
		ParentID:     t.ParentID,
		Status:       t.Status,
		CreatedAt:    t.CreatedAt,
	}
	if t.StartedAt != nil {
		st := *t.StartedAt
		s.StartedAt = &st
	}
	if t.CompletedAt != nil {
		ct := *t.CompletedAt
		s.CompletedAt = &ct
	}
	if t.Result != nil {
		r := *t.Result
		s.Result = &r
		s.Duration = r.Duration
	}
	return s
}
