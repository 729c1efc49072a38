package decomposer

import (
	"reflect"
	"testing"
)

func TestPassThroughForUnknownTaskType(t *testing.T) {
	d := New()
	plan, err := d.Decompose("some_unmapped_operation", map[string]interface{}{"x": 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(plan.Subtasks) != 1 {
		t.Fatalf("expected exactly one pass-through subtask, got %d", len(plan.Subtasks))
	}
	if plan.Subtasks[0].TaskType != "some_unmapped_operation" {
		t.Fatalf("unexpected pass-through task type: %s", plan.Subtasks[0].TaskType)
	}
	if len(plan.Generations) != 1 || len(plan.Generations[0]) != 1 {
		t.Fatalf("expected one generation of size one, got %v", plan.Generations)
	}
}

func TestDataPipelineLinearGenerations(t *testing.T) {
	d := New()
	plan, err := d.Decompose("data_pipeline", map[string]interface{}{"data_source": "db"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := [][]string{{"extract"}, {"transform"}, {"load"}, {"validate"}}
	if !reflect.DeepEqual(plan.Generations, expected) {
		t.Fatalf("expected linear generations %v, got %v", expected, plan.Generations)
	}
}

func TestCompressionAnalysisFanOut(t *testing.T) {
	d := New()
	plan, err := d.Decompose("compression_analysis", map[string]interface{}{"content": "hello"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := [][]string{
		{"analyze_content", "analyze_structure"},
		{"select_algorithm"},
		{"compress"},
	}
	if !reflect.DeepEqual(plan.Generations, expected) {
		t.Fatalf("expected generations %v, got %v", expected, plan.Generations)
	}
}

func TestCodeReviewFanOut(t *testing.T) {
	d := New()
	plan, err := d.Decompose("code_review", map[string]interface{}{"code": "package main"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := [][]string{
		{"analyze_code", "check_patterns"},
		{"generate_review"},
	}
	if !reflect.DeepEqual(plan.Generations, expected) {
		t.Fatalf("expected generations %v, got %v", expected, plan.Generations)
	}
}

func TestUnknownDependencyIsDropped(t *testing.T) {
	d := New()
	d.RegisterStrategy("broken", func(input map[string]interface{}) []Subtask {
		return []Subtask{
			{ID: "a", TaskType: "a"},
			{ID: "b", TaskType: "b", Dependencies: []string{"a", "ghost"}},
		}
	})

	plan, err := d.Decompose("broken", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := plan.Graph["b"]; !reflect.DeepEqual(got, []string{"a"}) {
		t.Fatalf("expected unknown dependency dropped, got %v", got)
	}
}

func TestCycleIsDetectedAndRepaired(t *testing.T) {
	d := New()
	d.RegisterStrategy("cyclic", func(input map[string]interface{}) []Subtask {
		return []Subtask{
			{ID: "a", TaskType: "a", Dependencies: []string{"b"}},
			{ID: "b", TaskType: "b", Dependencies: []string{"a"}},
		}
	})

	plan, err := d.Decompose("cyclic", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	totalNodes := 0
	for _, gen := range plan.Generations {
		totalNodes += len(gen)
	}
	if totalNodes != 2 {
		t.Fatalf("expected both nodes processed exactly once post-repair, got %d across %v", totalNodes, plan.Generations)
	}
}

func TestGenerationGroupingEveryDependencyInEarlierGeneration(t *testing.T) {
	d := New()
	plan, err := d.Decompose("compression_analysis", map[string]interface{}{"content": "x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	genOf := make(map[string]int)
	for i, gen := range plan.Generations {
		for _, id := range gen {
			genOf[id] = i
		}
	}
	for id, deps := range plan.Graph {
		for _, dep := range deps {
			if genOf[dep] >= genOf[id] {
				t.Fatalf("dependency %s (gen %d) must precede %s (gen %d)", dep, genOf[dep], id, genOf[id])
			}
		}
	}
}

func TestMultiStepStrategyBuildsSequentialChain(t *testing.T) {
	d := New()
	plan, err := d.Decompose("multi_step", map[string]interface{}{
		"steps": []interface{}{
			map[string]interface{}{"task_type": "fetch"},
			map[string]interface{}{"task_type": "process"},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := [][]string{{"step_0"}, {"step_1"}}
	if !reflect.DeepEqual(plan.Generations, expected) {
		t.Fatalf("expected %v, got %v", expected, plan.Generations)
	}
}

func TestHasStrategy(t *testing.T) {
	d := New()
	if !d.HasStrategy("data_pipeline") {
		t.Fatal("expected data_pipeline to be a registered strategy")
	}
	if d.HasStrategy("not_a_real_type") {
		t.Fatal("expected an unregistered type to report false")
	}
}
