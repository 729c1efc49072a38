// Package orchestrator implements end-to-end task execution (spec.md
// §4.6): the simple/complex entry dispatch, the
// Decomposing/Executing/Aggregating state machine for complex tasks,
// generation-parallel subtask execution bounded by a concurrency cap, and
// result aggregation.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/owulveryck/taskmesh/internal/agent"
	"github.com/owulveryck/taskmesh/internal/decomposer"
	"github.com/owulveryck/taskmesh/internal/observability"
	"github.com/owulveryck/taskmesh/internal/registry"
)

// State is a point in the complex-orchestration state machine
// (spec.md §4.6.2).
type State string

const (
	StateIdle        State = "idle"
	StateDecomposing State = "decomposing"
	StateExecuting   State = "executing"
	StateAggregating State = "aggregating"
	StateFailed      State = "failed"
)

// HistoryEntry records one completed parent task (spec.md §3).
type HistoryEntry struct {
	TaskID       string
	SubtaskCount int
	Duration     float64
	FinalStatus  string
}

// Config bundles the tunables spec.md §6 enumerates.
type Config struct {
	MaxParallelTasks         int
	TaskTimeoutSeconds       int
	DelegationTimeoutSeconds float64
	MaxRetries               int
	RetryBackoffBaseSeconds  float64
	SelectionWeights         registry.Weights
}

// DefaultConfig returns the spec-mandated defaults (spec.md §6).
func DefaultConfig() Config {
	return Config{
		MaxParallelTasks:         10,
		TaskTimeoutSeconds:       300,
		DelegationTimeoutSeconds: 30.0,
		MaxRetries:               3,
		RetryBackoffBaseSeconds:  1.0,
		SelectionWeights:         registry.DefaultWeights(),
	}
}

// Orchestrator executes tasks end to end against a Registry and a
// Decomposer. A configurable semaphore bounds the number of subtasks it
// runs concurrently across every task it is currently executing (the
// per-Orchestrator-instance interpretation of max_parallel_tasks).
type Orchestrator struct {
	registry   *registry.Registry
	decomposer *decomposer.Decomposer
	config     Config
	sem        *semaphore.Weighted

	logger  *slog.Logger
	metrics *observability.MetricsManager
	tracer  *observability.TraceManager

	mu         sync.Mutex
	state      State
	history    []HistoryEntry
	builtinOps map[string]func(task map[string]interface{}) (map[string]interface{}, error)
}

// Option configures an Orchestrator at construction time.
type Option func(*Orchestrator)

func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

func WithMetrics(metrics *observability.MetricsManager) Option {
	return func(o *Orchestrator) { o.metrics = metrics }
}

func WithTracer(tracer *observability.TraceManager) Option {
	return func(o *Orchestrator) { o.tracer = tracer }
}

// New constructs an Orchestrator over reg and dec with cfg. If cfg is the
// zero value, DefaultConfig is used.
func New(reg *registry.Registry, dec *decomposer.Decomposer, cfg Config, opts ...Option) *Orchestrator {
	if cfg.MaxParallelTasks == 0 {
		cfg = DefaultConfig()
	}
	o := &Orchestrator{
		registry:   reg,
		decomposer: dec,
		config:     cfg,
		sem:        semaphore.NewWeighted(int64(cfg.MaxParallelTasks)),
		logger:     slog.Default(),
		state:      StateIdle,
	}
	o.builtinOps = map[string]func(task map[string]interface{}) (map[string]interface{}, error){
		"get_agent_status": o.builtinGetAgentStatus,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// State returns the orchestrator's current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// History returns a copy of the orchestrator's completed-task history.
func (o *Orchestrator) History() []HistoryEntry {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]HistoryEntry, len(o.history))
	copy(out, o.history)
	return out
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

// ExecuteTask is the Orchestrator's single entry point (spec.md §4.6.1):
// it dispatches built-in operations directly, takes the complex path for
// task types with a registered decomposition strategy, and the simple path
// otherwise.
func (o *Orchestrator) ExecuteTask(ctx context.Context, task map[string]interface{}) map[string]interface{} {
	taskType := taskTypeOf(task)

	if fn, ok := o.builtinOps[taskType]; ok {
		result, err := fn(task)
		if err != nil {
			return map[string]interface{}{"status": "failed", "error": err.Error()}
		}
		result["status"] = "completed"
		return result
	}

	timeout := time.Duration(o.config.TaskTimeoutSeconds) * time.Second
	taskCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var span trace.Span
	if o.tracer != nil {
		taskCtx, span = o.tracer.StartSpan(taskCtx, "orchestrator.execute_task")
		o.tracer.AddTaskAttributes(span, fmt.Sprintf("%v", task["task_id"]), taskType, taskParameters(task))
		o.tracer.AddComponentAttribute(span, "orchestrator")
		defer span.End()
	}

	start := time.Now()

	var result map[string]interface{}
	if o.decomposer.HasStrategy(taskType) {
		result = o.executeComplex(taskCtx, taskType, task)
	} else {
		result = o.executeSimple(taskCtx, taskType, task)
	}

	elapsed := time.Since(start).Seconds()
	status, _ := result["status"].(string)
	if o.tracer != nil && span != nil {
		errMsg, _ := result["error"].(string)
		o.tracer.AddTaskResult(span, status, result, errMsg)
		if status == "failed" {
			o.tracer.RecordError(span, fmt.Errorf("%s", errMsg))
		} else {
			o.tracer.SetSpanSuccess(span)
		}
	}
	subtaskCount := 1
	if n, ok := result["total_subtasks"].(int); ok {
		subtaskCount = n
	}

	o.mu.Lock()
	o.history = append(o.history, HistoryEntry{
		TaskID:       fmt.Sprintf("%v", task["task_id"]),
		SubtaskCount: subtaskCount,
		Duration:     elapsed,
		FinalStatus:  status,
	})
	o.mu.Unlock()

	return result
}

// taskTypeOf reads task_type, falling back to operation as a synonym when
// task_type is absent (the Open Question decision documented alongside
// this module: task_type wins when both are present).
func taskTypeOf(task map[string]interface{}) string {
	if tt, ok := task["task_type"].(string); ok && tt != "" {
		return tt
	}
	if op, ok := task["operation"].(string); ok {
		return op
	}
	return ""
}

func taskParameters(task map[string]interface{}) map[string]interface{} {
	if params, ok := task["parameters"].(map[string]interface{}); ok {
		return params
	}
	return map[string]interface{}{}
}

// executeSimple selects one agent, delegates once, and returns its result
// pass-through (spec.md §4.6.1 simple path, and scenario 3 in §8).
func (o *Orchestrator) executeSimple(ctx context.Context, taskType string, task map[string]interface{}) map[string]interface{} {
	params := taskParameters(task)
	requirements, _ := task["requirements"].(map[string]interface{})

	a, ok := o.registry.GetAgentForTask(taskType, requirements, o.config.SelectionWeights)
	if !ok {
		return map[string]interface{}{
			"status":         "failed",
			"error":          "no agent available",
			"total_subtasks": 1,
		}
	}

	agentTask := agent.Task{
		TaskID:       fmt.Sprintf("%v", task["task_id"]),
		TaskType:     taskType,
		Input:        params,
		Requirements: requirements,
	}

	policy := RetryPolicy{
		MaxRetries:     o.config.MaxRetries,
		BackoffBase:    time.Duration(o.config.RetryBackoffBaseSeconds * float64(time.Second)),
		SubtaskTimeout: time.Duration(o.config.TaskTimeoutSeconds) * time.Second,
	}
	result := executeWithRetry(ctx, a, agentTask, policy, o.metrics, o.logger)

	resultMap := result.AsMap()
	resultMap["subtask_count"] = 1
	resultMap["total_subtasks"] = 1
	return resultMap
}

// executeComplex runs the Decomposing/Executing/Aggregating sequence
// (spec.md §4.6.2).
func (o *Orchestrator) executeComplex(ctx context.Context, taskType string, task map[string]interface{}) map[string]interface{} {
	o.setState(StateDecomposing)
	params := taskParameters(task)

	plan, err := o.decomposer.Decompose(taskType, params)
	if err != nil {
		o.setState(StateFailed)
		o.setState(StateIdle)
		return map[string]interface{}{
			"status":         "failed",
			"error":          err.Error(),
			"total_subtasks": 0,
		}
	}

	subtasksByID := make(map[string]decomposer.Subtask, len(plan.Subtasks))
	for _, s := range plan.Subtasks {
		subtasksByID[s.ID] = s
	}

	o.setState(StateExecuting)

	results := make(map[string]map[string]interface{}, len(plan.Subtasks))
	var resultsMu sync.Mutex

	for _, generation := range plan.Generations {
		if ctx.Err() != nil {
			break
		}

		g, gCtx := errgroup.WithContext(ctx)
		for _, subtaskID := range generation {
			subtaskID := subtaskID
			g.Go(func() error {
				if err := o.sem.Acquire(gCtx, 1); err != nil {
					resultsMu.Lock()
					results[subtaskID] = map[string]interface{}{
						"status":  "failed",
						"task_id": subtaskID,
						"error":   "timeout",
					}
					resultsMu.Unlock()
					return nil
				}
				defer o.sem.Release(1)

				subtask := subtasksByID[subtaskID]

				resultsMu.Lock()
				snapshot := snapshotResults(results)
				resultsMu.Unlock()

				resolvedInput := resolvePlaceholders(subtask.Input, snapshot, o.logger)
				result := o.runSubtask(gCtx, subtask, resolvedInput)

				resultsMu.Lock()
				results[subtaskID] = result
				resultsMu.Unlock()
				return nil
			})
		}
		// Wait for all subtasks in this generation before starting the
		// next (spec.md §4.6.2 step 3b): errors are absorbed into
		// per-subtask results above, never propagated out of g.Wait.
		_ = g.Wait()
	}

	o.setState(StateAggregating)
	agg := aggregate(results)
	o.setState(StateIdle)

	return map[string]interface{}{
		"status":                 agg.Status,
		"total_subtasks":         agg.TotalSubtasks,
		"successful":             agg.Successful,
		"failed":                 agg.Failed,
		"success_rate":           agg.SuccessRate,
		"total_duration_seconds": agg.TotalDurationSeconds,
		"avg_duration_seconds":   agg.AvgDurationSeconds,
		"results":                agg.Results,
		"aggregated_result":      agg.AggregatedResult,
		"errors":                 agg.Errors,
	}
}

func snapshotResults(results map[string]map[string]interface{}) map[string]map[string]interface{} {
	out := make(map[string]map[string]interface{}, len(results))
	for k, v := range results {
		out[k] = v
	}
	return out
}

// runSubtask selects an agent for subtask and runs it with retry,
// returning a failed result immediately (no retry) if no capable agent is
// available (spec.md §4.6.4).
func (o *Orchestrator) runSubtask(ctx context.Context, subtask decomposer.Subtask, resolvedInput map[string]interface{}) map[string]interface{} {
	a, ok := o.registry.GetAgentForTask(subtask.TaskType, subtask.Requirements, o.config.SelectionWeights)
	if !ok {
		if o.metrics != nil {
			o.metrics.IncrementSubtasksProcessed(ctx, subtask.TaskType, "failed")
		}
		return map[string]interface{}{
			"status":     "failed",
			"error":      "no agent available",
			"subtask_id": subtask.ID,
			"task_id":    subtask.ID,
		}
	}

	agentTask := subtaskToAgentTask(subtask, resolvedInput)
	policy := RetryPolicy{
		MaxRetries:     o.config.MaxRetries,
		BackoffBase:    time.Duration(o.config.RetryBackoffBaseSeconds * float64(time.Second)),
		SubtaskTimeout: time.Duration(o.config.TaskTimeoutSeconds) * time.Second,
	}

	start := time.Now()
	result := executeWithRetry(ctx, a, agentTask, policy, o.metrics, o.logger)
	elapsed := time.Since(start).Seconds()

	resultMap := result.AsMap()
	resultMap["subtask_id"] = subtask.ID
	resultMap["execution_time_seconds"] = elapsed

	if o.metrics != nil {
		o.metrics.IncrementSubtasksProcessed(ctx, subtask.TaskType, result.Status)
		o.metrics.RecordSubtaskDuration(ctx, subtask.TaskType, time.Since(start))
	}

	return resultMap
}

func (o *Orchestrator) builtinGetAgentStatus(task map[string]interface{}) (map[string]interface{}, error) {
	params := taskParameters(task)
	agentID, _ := params["agent_id"].(string)
	if agentID == "" {
		return nil, fmt.Errorf("get_agent_status: agent_id is required")
	}
	a, ok := o.registry.Get(agentID)
	if !ok {
		return nil, fmt.Errorf("get_agent_status: unknown agent %q", agentID)
	}
	hb := a.Heartbeat()
	return map[string]interface{}{
		"result": map[string]interface{}{
			"agent_id":     hb.ID,
			"status":       string(hb.Status),
			"success_rate": hb.SuccessRate,
			"avg_duration": hb.AvgDuration,
			"attempts":     hb.Attempts,
		},
	}, nil
}
