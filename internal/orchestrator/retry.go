package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/owulveryck/taskmesh/internal/agent"
	"github.com/owulveryck/taskmesh/internal/decomposer"
	"github.com/owulveryck/taskmesh/internal/observability"
)

// RetryPolicy bounds per-subtask execution with retry (spec.md §4.6.4).
type RetryPolicy struct {
	MaxRetries     int
	BackoffBase    time.Duration
	SubtaskTimeout time.Duration
}

// executeWithRetry attempts a.ExecuteTask up to policy.MaxRetries+1 times,
// waiting base·2^(attempt-1) between attempts (exponential backoff via
// backoff.ExponentialBackOff, the same library the teacher pack reaches
// for elsewhere for delegation retries). It returns a failed result if
// retries are exhausted or ctx is cancelled.
func executeWithRetry(ctx context.Context, a agent.BaseAgent, task agent.Task, policy RetryPolicy, metrics *observability.MetricsManager, logger *slog.Logger) agent.Result {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = policy.BackoffBase
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0 // bounded by MaxRetries, not wall-clock
	bo.Reset()            // restart from the InitialInterval set above

	var lastResult agent.Result
	attempts := policy.MaxRetries + 1

	for attempt := 0; attempt < attempts; attempt++ {
		attemptCtx := ctx
		var cancel context.CancelFunc
		if policy.SubtaskTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, policy.SubtaskTimeout)
		}

		result := func() agent.Result {
			if cancel != nil {
				defer cancel()
			}
			return runOneAttempt(attemptCtx, a, task)
		}()

		lastResult = result
		if result.Status == "completed" {
			return result
		}

		if ctx.Err() != nil {
			return lastResult
		}

		if attempt < attempts-1 {
			if metrics != nil {
				metrics.IncrementSubtaskRetries(ctx, task.TaskType)
			}
			wait := bo.NextBackOff()
			logger.Warn("subtask attempt failed, retrying",
				"task_id", task.TaskID, "task_type", task.TaskType,
				"attempt", attempt+1, "wait", wait, "error", lastResult.Error)

			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return lastResult
			}
		}
	}

	if metrics != nil {
		metrics.IncrementSubtaskErrors(ctx, task.TaskType, lastResult.Error)
	}

	return agent.Result{
		TaskID: task.TaskID,
		Status: "failed",
		Error:  lastResult.Error,
	}
}

// runOneAttempt executes a single attempt, converting a context deadline
// into a failed result with status "failed", error "timeout" as spec.md
// §7 requires for subtasks (delegations use status "timeout" instead; see
// internal/comms.DelegateTask).
func runOneAttempt(ctx context.Context, a agent.BaseAgent, task agent.Task) agent.Result {
	done := make(chan agent.Result, 1)
	go func() {
		done <- a.ExecuteTask(ctx, task)
	}()

	select {
	case result := <-done:
		return result
	case <-ctx.Done():
		return agent.Result{TaskID: task.TaskID, Status: "failed", Error: "timeout"}
	}
}

// subtaskToAgentTask converts a decomposer.Subtask with resolved input
// into the agent.Task shape ExecuteTask expects.
func subtaskToAgentTask(s decomposer.Subtask, resolvedInput map[string]interface{}) agent.Task {
	return agent.Task{
		TaskID:       s.ID,
		TaskType:     s.TaskType,
		Input:        resolvedInput,
		Requirements: s.Requirements,
	}
}
