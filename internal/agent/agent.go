package agent

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/owulveryck/taskmesh/internal/capability"
)

// Handler is the business-logic function a concrete agent supplies to
// Execute. It runs with the agent already marked Working; Agent handles the
// surrounding status transitions, counters, and history.
type Handler func(ctx context.Context, task Task) (map[string]interface{}, error)

// Agent is the concrete, reusable BaseAgent implementation. Embedding
// applications provide a Handler for their domain logic and get lifecycle
// management, capability matching, and metric accounting for free — the
// same split the teacher's SubAgent draws between infrastructure and skill
// handlers, generalized from gRPC task subscription to a direct call.
type Agent struct {
	mu sync.Mutex

	id           string
	agentType    string
	capabilities capability.Set
	status       Status
	config       map[string]interface{}
	createdAt    time.Time
	lastActiveAt time.Time

	attempts    int64
	successes   int64
	failures    int64
	totalDurSec float64

	history []HistoryEntry
	handler Handler

	initFn func(ctx context.Context) error
}

// Option configures an Agent at construction time.
type Option func(*Agent)

// WithConfig attaches a configuration map to the agent.
func WithConfig(cfg map[string]interface{}) Option {
	return func(a *Agent) { a.config = cfg }
}

// WithInitFunc supplies a bootstrap validation function run by Initialize.
// If omitted, Initialize always succeeds.
func WithInitFunc(fn func(ctx context.Context) error) Option {
	return func(a *Agent) { a.initFn = fn }
}

// New constructs an Agent. If id is empty, a random token is assigned
// (spec.md §3 "if unspecified, assigned as a random token").
func New(id, agentType string, caps capability.Set, handler Handler, opts ...Option) *Agent {
	if id == "" {
		id = randomID()
	}
	now := time.Now()
	a := &Agent{
		id:           id,
		agentType:    agentType,
		capabilities: caps,
		status:       StatusInitializing,
		config:       map[string]interface{}{},
		createdAt:    now,
		lastActiveAt: now,
		handler:      handler,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// MustNew is like New but panics if handler is nil; useful in demo/test
// wiring where a missing handler is a programming error.
func MustNew(id, agentType string, caps capability.Set, handler Handler, opts ...Option) *Agent {
	if handler == nil {
		panic("agent: handler must not be nil")
	}
	return New(id, agentType, caps, handler, opts...)
}

func randomID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("agent-%d", time.Now().UnixNano())
	}
	return "agent-" + hex.EncodeToString(b)
}

// Initialize runs bootstrap validation and transitions
// Initializing->Validating->{Idle,Error}.
func (a *Agent) Initialize(ctx context.Context) error {
	a.mu.Lock()
	a.status = StatusValidating
	a.mu.Unlock()

	var err error
	if a.initFn != nil {
		err = a.initFn(ctx)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if err != nil {
		a.status = StatusError
		return err
	}
	a.status = StatusIdle
	return nil
}

// ExecuteTask runs the agent's handler, serializing execution (an agent
// never runs more than one task at a time on a single logical identity,
// spec.md §4.2) and enforcing the Working/Idle status bracket around it.
func (a *Agent) ExecuteTask(ctx context.Context, task Task) Result {
	a.mu.Lock()
	if a.status != StatusIdle {
		status := a.status
		a.mu.Unlock()
		err := ErrNotIdle
		if status == StatusWorking {
			err = ErrAlreadyRunning
		}
		return Result{
			TaskID: task.TaskID,
			Status: "failed",
			Error:  fmt.Errorf("%w: status=%s", err, status).Error(),
		}
	}
	a.status = StatusWorking
	a.mu.Unlock()

	start := time.Now()
	value, err := a.handler(ctx, task)
	elapsed := time.Since(start).Seconds()

	a.mu.Lock()
	defer a.mu.Unlock()

	a.attempts++
	a.totalDurSec += elapsed
	a.lastActiveAt = time.Now()

	var result Result
	if err != nil {
		a.failures++
		a.status = StatusIdle
		result = Result{TaskID: task.TaskID, Status: "failed", Error: err.Error()}
	} else {
		a.successes++
		a.status = StatusIdle
		result = Result{TaskID: task.TaskID, Status: "completed", Value: value}
	}

	a.history = append(a.history, HistoryEntry{
		TaskID:   task.TaskID,
		Status:   result.Status,
		Duration: elapsed,
	})

	return result
}

// CanHandle reports whether the agent can service a task of the given type
// and requirements (spec.md §4.2). Implied capabilities come from the
// data-driven capability.ImpliedByTaskType mapping; an empty implied set
// matches any agent. A non-empty implied set matches if the agent's
// declared capabilities intersect it non-emptily (spec.md §9) — the agent
// need not possess every implied capability. Requirements may specify
// "status": "idle" to exclude busy agents from a stricter selection.
func (a *Agent) CanHandle(taskType string, requirements map[string]interface{}) bool {
	implied := capability.ImpliedByTaskType(taskType)

	a.mu.Lock()
	caps := a.capabilities
	status := a.status
	a.mu.Unlock()

	if len(implied) > 0 && !caps.IntersectsNonEmpty(implied) {
		return false
	}

	if requirements != nil {
		if wantStatus, ok := requirements["status"].(string); ok && wantStatus != "" {
			if Status(wantStatus) != status {
				return false
			}
		}
		if reqCaps, ok := requirements["capabilities"].([]capability.Capability); ok {
			for _, c := range reqCaps {
				if !caps.Has(c) {
					return false
				}
			}
		}
	}

	return status == StatusIdle || status == StatusWorking
}

// Heartbeat returns a point-in-time health snapshot.
func (a *Agent) Heartbeat() Heartbeat {
	a.mu.Lock()
	defer a.mu.Unlock()

	successRate := 0.5
	avgDuration := 0.0
	if a.attempts > 0 {
		successRate = float64(a.successes) / float64(a.attempts)
		avgDuration = a.totalDurSec / float64(a.attempts)
	}

	return Heartbeat{
		ID:          a.id,
		Status:      a.status,
		SuccessRate: successRate,
		AvgDuration: avgDuration,
		Attempts:    a.attempts,
	}
}

func (a *Agent) ID() string                   { return a.id }
func (a *Agent) AgentType() string            { return a.agentType }
func (a *Agent) Capabilities() capability.Set { return a.capabilities }

func (a *Agent) CurrentStatus() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// SetStatus forces a status transition, validating it against the lifecycle
// state machine. Used for external signals such as degrading or shutting
// down an agent.
func (a *Agent) SetStatus(next Status) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.status.CanTransition(next) {
		return fmt.Errorf("%w: %s->%s", ErrInvalidTransition, a.status, next)
	}
	a.status = next
	return nil
}

// History returns a copy of the agent's completed-task history.
func (a *Agent) History() []HistoryEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]HistoryEntry, len(a.history))
	copy(out, a.history)
	return out
}

// CreatedAt returns the agent's creation timestamp.
func (a *Agent) CreatedAt() time.Time { return a.createdAt }

// LastActiveAt returns the timestamp of the agent's most recent task
// completion, or its creation time if it has never executed a task.
func (a *Agent) LastActiveAt() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastActiveAt
}

// Config returns the agent's configuration map.
func (a *Agent) Config() map[string]interface{} { return a.config }
