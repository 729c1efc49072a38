package registry

import (
	"context"
	"testing"

	"github.com/owulveryck/taskmesh/internal/agent"
	"github.com/owulveryck/taskmesh/internal/capability"
)

func newIdleAgent(t *testing.T, id string, caps capability.Set) *agent.Agent {
	t.Helper()
	a := agent.New(id, "worker", caps, func(ctx context.Context, task agent.Task) (map[string]interface{}, error) {
		return map[string]interface{}{}, nil
	})
	if err := a.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize %s: %v", id, err)
	}
	return a
}

func TestRegisterAndGet(t *testing.T) {
	r := New(nil)
	a := newIdleAgent(t, "a1", capability.NewSet(capability.Analysis))
	r.Register(a)

	got, ok := r.Get("a1")
	if !ok || got.ID() != "a1" {
		t.Fatalf("expected to find a1, got %v, %v", got, ok)
	}
	if r.Size() != 1 {
		t.Fatalf("expected size 1, got %d", r.Size())
	}
}

func TestUnregisterRemovesFromAllIndices(t *testing.T) {
	r := New(nil)
	a := newIdleAgent(t, "a1", capability.NewSet(capability.Analysis))
	r.Register(a)
	r.Unregister("a1")

	if _, ok := r.Get("a1"); ok {
		t.Fatal("expected a1 to be gone after unregister")
	}
	if ids := r.AgentsByType("worker"); len(ids) != 0 {
		t.Fatalf("expected type index to be empty, got %v", ids)
	}
	if ids := r.AgentsByCapability(capability.Analysis); len(ids) != 0 {
		t.Fatalf("expected capability index to be empty, got %v", ids)
	}
}

func TestReRegisterUpdatesInPlace(t *testing.T) {
	r := New(nil)
	a1 := newIdleAgent(t, "a1", capability.NewSet(capability.Analysis))
	r.Register(a1)

	a1b := newIdleAgent(t, "a1", capability.NewSet(capability.Execution))
	r.Register(a1b)

	if ids := r.AgentsByCapability(capability.Analysis); len(ids) != 0 {
		t.Fatalf("expected the old capability mapping gone, got %v", ids)
	}
	if ids := r.AgentsByCapability(capability.Execution); len(ids) != 1 {
		t.Fatalf("expected the new capability mapping present, got %v", ids)
	}
	if r.Size() != 1 {
		t.Fatalf("expected re-registration to not duplicate entries, got size %d", r.Size())
	}
}

func TestGetAgentForTaskNoCapableAgent(t *testing.T) {
	r := New(nil)
	r.Register(newIdleAgent(t, "a1", capability.NewSet(capability.DataProcessing)))

	_, ok := r.GetAgentForTask("text_analysis", nil, DefaultWeights())
	if ok {
		t.Fatal("expected no agent available for an unsatisfied capability requirement")
	}
}

func TestGetAgentForTaskPrefersIdleOverWorking(t *testing.T) {
	r := New(nil)
	idle := newIdleAgent(t, "idle-1", capability.NewSet(capability.Analysis, capability.TextAnalysis))
	working := newIdleAgent(t, "working-1", capability.NewSet(capability.Analysis, capability.TextAnalysis))
	if err := working.SetStatus(agent.StatusWorking); err != nil {
		t.Fatalf("force working: %v", err)
	}

	r.Register(idle)
	r.Register(working)

	chosen, ok := r.GetAgentForTask("text_analysis", nil, DefaultWeights())
	if !ok {
		t.Fatal("expected an agent to be chosen")
	}
	if chosen.ID() != "idle-1" {
		t.Fatalf("expected the idle candidate to be preferred, got %s", chosen.ID())
	}
}

func TestGetAgentForTaskFallsBackToWorking(t *testing.T) {
	r := New(nil)
	working := newIdleAgent(t, "working-1", capability.NewSet(capability.Analysis, capability.TextAnalysis))
	if err := working.SetStatus(agent.StatusWorking); err != nil {
		t.Fatalf("force working: %v", err)
	}
	r.Register(working)

	chosen, ok := r.GetAgentForTask("text_analysis", nil, DefaultWeights())
	if !ok || chosen.ID() != "working-1" {
		t.Fatalf("expected fallback to the working candidate, got %v, %v", chosen, ok)
	}
}

func TestGetAgentForTaskTiesBreakByID(t *testing.T) {
	r := New(nil)
	r.Register(newIdleAgent(t, "zebra", capability.NewSet(capability.Analysis, capability.TextAnalysis)))
	r.Register(newIdleAgent(t, "alpha", capability.NewSet(capability.Analysis, capability.TextAnalysis)))

	chosen, ok := r.GetAgentForTask("text_analysis", nil, DefaultWeights())
	if !ok {
		t.Fatal("expected an agent to be chosen")
	}
	if chosen.ID() != "alpha" {
		t.Fatalf("expected the lexicographically smaller ID to win a tie, got %s", chosen.ID())
	}
}

func TestScoreFormula(t *testing.T) {
	hb := agent.Heartbeat{SuccessRate: 1.0, AvgDuration: 0, Attempts: 0}
	w := DefaultWeights()
	got := Score(hb, w)
	want := 0.5*1.0 + 0.3*1.0 + 0.2*1.0
	if got != want {
		t.Fatalf("expected score %f, got %f", want, got)
	}
}

func TestScorePrefersFasterAgentAmongEqualSuccessRate(t *testing.T) {
	w := DefaultWeights()
	fast := Score(agent.Heartbeat{SuccessRate: 1.0, AvgDuration: 0.1, Attempts: 10}, w)
	slow := Score(agent.Heartbeat{SuccessRate: 1.0, AvgDuration: 5.0, Attempts: 10}, w)
	if fast <= slow {
		t.Fatalf("expected faster agent to score higher: fast=%f slow=%f", fast, slow)
	}
}
