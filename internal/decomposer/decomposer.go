// Package decomposer implements the Task Decomposer (spec.md §4.5): turning
// (task_type, task_input) into (subtasks, dependency_graph), with cycle
// detection and heuristic repair, and Kahn's-algorithm generation grouping
// for the Orchestrator to execute.
package decomposer

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Plan is the decomposer's output: the subtask list, its repaired
// dependency graph, and the generation grouping ready for execution.
type Plan struct {
	Subtasks    []Subtask
	Graph       Graph
	Generations [][]string
}

// Decomposer holds the named strategy registry and an optional memo cache
// keyed by (task_type, hash(task_input)).
type Decomposer struct {
	strategies map[string]Strategy
	cache      *gocache.Cache
	logger     *slog.Logger
}

// Option configures a Decomposer at construction time.
type Option func(*Decomposer)

// WithMemo enables memoization of decomposition plans for ttl, evicting
// entries every cleanupInterval. Grounded on the teacher pack's use of
// patrickmn/go-cache for in-process TTL caching.
func WithMemo(ttl, cleanupInterval time.Duration) Option {
	return func(d *Decomposer) {
		d.cache = gocache.New(ttl, cleanupInterval)
	}
}

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Decomposer) { d.logger = logger }
}

// New constructs a Decomposer pre-loaded with the built-in named
// strategies (compression_analysis, code_review, data_pipeline,
// research_synthesis, multi_step).
func New(opts ...Option) *Decomposer {
	d := &Decomposer{
		strategies: make(map[string]Strategy, len(builtinStrategies)),
		logger:     slog.Default(),
	}
	for name, strategy := range builtinStrategies {
		d.strategies[name] = strategy
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// RegisterStrategy adds or overrides a named decomposition strategy.
func (d *Decomposer) RegisterStrategy(name string, strategy Strategy) {
	d.strategies[name] = strategy
}

// HasStrategy reports whether taskType has a registered decomposition
// strategy; the Orchestrator uses this to choose between the simple and
// complex execution paths (spec.md §4.6.1).
func (d *Decomposer) HasStrategy(taskType string) bool {
	_, ok := d.strategies[taskType]
	return ok
}

// Decompose turns (taskType, taskInput) into a Plan. If no strategy is
// registered for taskType, it emits a single pass-through subtask
// identical to the input (spec.md §4.5).
func (d *Decomposer) Decompose(taskType string, taskInput map[string]interface{}) (*Plan, error) {
	if plan, ok := d.lookupMemo(taskType, taskInput); ok {
		return plan, nil
	}

	strategy, ok := d.strategies[taskType]
	var subtasks []Subtask
	if ok {
		subtasks = strategy(taskInput)
	} else {
		subtasks = []Subtask{{
			ID:       taskType,
			TaskType: taskType,
			Input:    taskInput,
		}}
	}

	if len(subtasks) == 0 {
		return nil, fmt.Errorf("decomposer: strategy %q produced no subtasks", taskType)
	}

	graph := buildGraph(subtasks, func(subtaskID, unknownDep string) {
		d.logger.Warn("dropping unknown dependency reference",
			"subtask_id", subtaskID, "unknown_dependency", unknownDep)
	})

	repairAll(graph, func(target, source string) {
		d.logger.Warn("repaired dependency cycle by removing an edge",
			"target", target, "removed_source", source)
	})

	gens := generations(graph, func(residual []string) {
		d.logger.Error("residual unresolved dependencies after cycle repair",
			"subtask_ids", residual)
	})

	plan := &Plan{Subtasks: subtasks, Graph: graph, Generations: gens}
	d.storeMemo(taskType, taskInput, plan)
	return plan, nil
}

func (d *Decomposer) lookupMemo(taskType string, taskInput map[string]interface{}) (*Plan, bool) {
	if d.cache == nil {
		return nil, false
	}
	key, err := memoKey(taskType, taskInput)
	if err != nil {
		return nil, false
	}
	if cached, ok := d.cache.Get(key); ok {
		if plan, ok := cached.(*Plan); ok {
			return plan, true
		}
	}
	return nil, false
}

func (d *Decomposer) storeMemo(taskType string, taskInput map[string]interface{}, plan *Plan) {
	if d.cache == nil {
		return
	}
	key, err := memoKey(taskType, taskInput)
	if err != nil {
		return
	}
	d.cache.SetDefault(key, plan)
}

func memoKey(taskType string, taskInput map[string]interface{}) (string, error) {
	encoded, err := json.Marshal(taskInput)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(encoded)
	return taskType + ":" + hex.EncodeToString(sum[:]), nil
}
