// Package registry implements the Agent Registry (spec.md §4.3): thread-safe
// registration, multi-index lookup by identifier/type/capability, and
// weighted scoring for selection among candidates.
package registry

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/owulveryck/taskmesh/internal/agent"
	"github.com/owulveryck/taskmesh/internal/capability"
)

// health tracks registration bookkeeping for one agent, separate from the
// agent's own counters so the registry never needs write access to the
// agent itself.
type health struct {
	registeredAt time.Time
	lastSeenAt   time.Time
}

// Registry discovers agents capable of a task and chooses among them. A
// single mutex guards all three indices and the health map, keeping them
// mutually consistent at every operation boundary (spec.md §4.3 invariant).
type Registry struct {
	mu sync.Mutex

	byID         map[string]agent.BaseAgent
	byType       map[string]map[string]struct{}
	byCapability map[capability.Capability]map[string]struct{}
	health       map[string]*health

	logger      *slog.Logger
	onSelection func(taskType, outcome string)
}

// Weights scales the three components of the selection score. Default
// values match spec.md §6: 0.5/0.3/0.2.
type Weights struct {
	Success float64
	Speed   float64
	Load    float64
}

// DefaultWeights returns the spec-mandated default selection weights.
func DefaultWeights() Weights {
	return Weights{Success: 0.5, Speed: 0.3, Load: 0.2}
}

// New constructs an empty Registry. If logger is nil, slog.Default() is
// used.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		byID:         make(map[string]agent.BaseAgent),
		byType:       make(map[string]map[string]struct{}),
		byCapability: make(map[capability.Capability]map[string]struct{}),
		health:       make(map[string]*health),
		logger:       logger,
	}
}

// Register inserts a into the primary index, the type index, and every
// capability index it declares. Re-registering an existing identifier
// updates in place and emits a warning (spec.md §4.3).
func (r *Registry) Register(a agent.BaseAgent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := a.ID()
	if _, exists := r.byID[id]; exists {
		r.logger.Warn("re-registering agent with an existing identifier", "agent_id", id)
		r.removeFromIndicesLocked(id)
	}

	r.byID[id] = a

	if r.byType[a.AgentType()] == nil {
		r.byType[a.AgentType()] = make(map[string]struct{})
	}
	r.byType[a.AgentType()][id] = struct{}{}

	for c := range a.Capabilities() {
		if r.byCapability[c] == nil {
			r.byCapability[c] = make(map[string]struct{})
		}
		r.byCapability[c][id] = struct{}{}
	}

	now := time.Now()
	r.health[id] = &health{registeredAt: now, lastSeenAt: now}
}

// SetSelectionRecorder installs a callback invoked with the task type and
// outcome ("selected", "no_candidates", or "no_eligible_status") of every
// GetAgentForTask call, so a caller can wire selection metrics without the
// registry depending on the observability package.
func (r *Registry) SetSelectionRecorder(onSelection func(taskType, outcome string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onSelection = onSelection
}

// Unregister removes id from all indices and from health tracking. Silent
// if id is not registered.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeFromIndicesLocked(id)
	delete(r.health, id)
}

func (r *Registry) removeFromIndicesLocked(id string) {
	a, ok := r.byID[id]
	if !ok {
		return
	}
	delete(r.byID, id)
	if set, ok := r.byType[a.AgentType()]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(r.byType, a.AgentType())
		}
	}
	for c := range a.Capabilities() {
		if set, ok := r.byCapability[c]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(r.byCapability, c)
			}
		}
	}
}

// GetAgentForTask implements spec.md §4.3's selection algorithm:
//  1. Retain every registered agent whose CanHandle(taskType, requirements)
//     is true.
//  2. Prefer idle candidates; fall back to working candidates only if no
//     idle candidate exists; otherwise return (nil, false).
//  3. Among the surviving candidates, return the one with the greatest
//     selection score, breaking ties deterministically by agent identifier.
func (r *Registry) GetAgentForTask(taskType string, requirements map[string]interface{}, weights Weights) (agent.BaseAgent, bool) {
	r.mu.Lock()
	candidates := make([]agent.BaseAgent, 0, len(r.byID))
	for _, a := range r.byID {
		if a.CanHandle(taskType, requirements) {
			candidates = append(candidates, a)
		}
	}
	onSelection := r.onSelection
	r.mu.Unlock()

	if len(candidates) == 0 {
		r.recordSelection(onSelection, taskType, "no_candidates")
		return nil, false
	}

	idle := filterByStatus(candidates, agent.StatusIdle)
	pool := idle
	if len(pool) == 0 {
		pool = filterByStatus(candidates, agent.StatusWorking)
	}
	if len(pool) == 0 {
		r.recordSelection(onSelection, taskType, "no_eligible_status")
		return nil, false
	}

	best := selectBest(pool, weights)
	r.recordSelection(onSelection, taskType, "selected")
	return best, true
}

func (r *Registry) recordSelection(onSelection func(taskType, outcome string), taskType, outcome string) {
	if onSelection != nil {
		onSelection(taskType, outcome)
	}
}

func filterByStatus(candidates []agent.BaseAgent, status agent.Status) []agent.BaseAgent {
	out := make([]agent.BaseAgent, 0, len(candidates))
	for _, a := range candidates {
		if a.CurrentStatus() == status {
			out = append(out, a)
		}
	}
	return out
}

// Score computes the weighted selection score for a. Each component is
// normalized to [0,1] (spec.md §4.3):
//
//	success_rate = successes / attempts (0.5 if attempts = 0)
//	speed_score  = 1 / (1 + avg_task_duration_seconds)
//	load_score   = 1 / (1 + attempts / 100)
func Score(hb agent.Heartbeat, w Weights) float64 {
	speedScore := 1.0 / (1.0 + hb.AvgDuration)
	loadScore := 1.0 / (1.0 + float64(hb.Attempts)/100.0)
	return w.Success*hb.SuccessRate + w.Speed*speedScore + w.Load*loadScore
}

func selectBest(pool []agent.BaseAgent, weights Weights) agent.BaseAgent {
	type scored struct {
		a     agent.BaseAgent
		score float64
	}
	scoredPool := make([]scored, len(pool))
	for i, a := range pool {
		scoredPool[i] = scored{a: a, score: Score(a.Heartbeat(), weights)}
	}

	sort.Slice(scoredPool, func(i, j int) bool {
		if scoredPool[i].score != scoredPool[j].score {
			return scoredPool[i].score > scoredPool[j].score
		}
		return scoredPool[i].a.ID() < scoredPool[j].a.ID()
	})

	return scoredPool[0].a
}

// AgentsByType returns the identifiers of every agent registered under
// agentType.
func (r *Registry) AgentsByType(agentType string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	set := r.byType[agentType]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// AgentsByCapability returns the identifiers of every agent declaring c.
func (r *Registry) AgentsByCapability(c capability.Capability) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	set := r.byCapability[c]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Get returns the agent registered under id, if any.
func (r *Registry) Get(id string) (agent.BaseAgent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[id]
	return a, ok
}

// Touch updates id's last-seen health timestamp. Call this on every
// successful interaction with the agent (heartbeat, delegation response).
func (r *Registry) Touch(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.health[id]; ok {
		h.lastSeenAt = time.Now()
	}
}

// Size returns the number of currently registered agents.
func (r *Registry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}
