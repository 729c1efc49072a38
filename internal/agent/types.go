package agent

import (
	"context"
	"errors"

	"github.com/owulveryck/taskmesh/internal/capability"
)

// Status is a point in the agent lifecycle state machine (spec.md §3
// "Agent status"). Valid transitions: Initializing->Validating->{Idle,Error};
// Idle<->Working; any state ->{Error, Degraded, Shutdown}.
type Status string

const (
	StatusInitializing Status = "initializing"
	StatusValidating   Status = "validating"
	StatusIdle         Status = "idle"
	StatusWorking      Status = "working"
	StatusError        Status = "error"
	StatusDegraded     Status = "degraded"
	StatusShutdown     Status = "shutdown"
)

// CanTransition reports whether moving from s to next is a legal lifecycle
// transition.
func (s Status) CanTransition(next Status) bool {
	switch next {
	case StatusError, StatusDegraded, StatusShutdown:
		return true
	}
	switch s {
	case StatusInitializing:
		return next == StatusValidating
	case StatusValidating:
		return next == StatusIdle
	case StatusIdle:
		return next == StatusWorking
	case StatusWorking:
		return next == StatusIdle
	default:
		return false
	}
}

// Task is the unit of work handed to ExecuteTask. Input carries the
// subtask's input map; TaskID and TaskType mirror the owning subtask so a
// Base agent implementation need not reach back into the orchestrator.
type Task struct {
	TaskID       string
	TaskType     string
	Input        map[string]interface{}
	Requirements map[string]interface{}
}

// Result is the task result shape required by spec.md §4.2: at minimum
// TaskID and Status, plus either Value (on completion) or Error (on
// failure). Implementations may stash agent-specific fields in Extra.
type Result struct {
	TaskID string
	Status string // "completed" or "failed"
	Value  map[string]interface{}
	Error  string
	Extra  map[string]interface{}
}

// AsMap flattens a Result into the map[string]interface{} shape the
// orchestrator and communication layer pass around.
func (r Result) AsMap() map[string]interface{} {
	m := map[string]interface{}{
		"task_id": r.TaskID,
		"status":  r.Status,
	}
	if r.Status == "completed" {
		if r.Value != nil {
			m["result"] = r.Value
		} else {
			m["result"] = map[string]interface{}{}
		}
	} else {
		m["error"] = r.Error
	}
	for k, v := range r.Extra {
		m[k] = v
	}
	return m
}

// HistoryEntry records one completed execute_task call.
type HistoryEntry struct {
	TaskID   string
	Status   string
	Duration float64 // seconds
}

// Heartbeat is the health snapshot returned by Agent.Heartbeat.
type Heartbeat struct {
	ID          string
	Status      Status
	SuccessRate float64
	AvgDuration float64 // seconds
	Attempts    int64
}

// BaseAgent is the contract every worker obeys (spec.md §4.2).
type BaseAgent interface {
	// Initialize performs bootstrap validation and transitions the agent
	// from Initializing to Idle (or Error on failure).
	Initialize(ctx context.Context) error
	// ExecuteTask runs one unit of work. Implementations must move to
	// Working before processing and back to Idle (or Error) afterward.
	ExecuteTask(ctx context.Context, task Task) Result
	// CanHandle reports whether the agent's declared capabilities and
	// current state satisfy task_type and the explicit requirements.
	CanHandle(taskType string, requirements map[string]interface{}) bool
	// Heartbeat returns a point-in-time health snapshot.
	Heartbeat() Heartbeat
	// ID returns the agent's unique identifier.
	ID() string
	// AgentType returns the agent's type tag.
	AgentType() string
	// Capabilities returns the agent's declared capability set.
	Capabilities() capability.Set
	// CurrentStatus returns the agent's current lifecycle status.
	CurrentStatus() Status
}

var (
	ErrInvalidTransition = errors.New("agent: invalid status transition")
	ErrNotIdle           = errors.New("agent: not idle")
	ErrAlreadyRunning    = errors.New("agent: already running a task")
)
