package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/owulveryck/taskmesh/internal/capability"
)

func newTestAgent(handler Handler) *Agent {
	caps := capability.NewSet(capability.Analysis, capability.TextAnalysis)
	return New("", "test-agent", caps, handler)
}

func TestNewAssignsRandomIDWhenEmpty(t *testing.T) {
	a := newTestAgent(func(ctx context.Context, task Task) (map[string]interface{}, error) {
		return nil, nil
	})
	if a.ID() == "" {
		t.Fatal("expected a non-empty generated ID")
	}
}

func TestInitializeSuccess(t *testing.T) {
	a := newTestAgent(func(ctx context.Context, task Task) (map[string]interface{}, error) {
		return nil, nil
	})
	if err := a.Initialize(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if a.CurrentStatus() != StatusIdle {
		t.Fatalf("expected status idle, got %s", a.CurrentStatus())
	}
}

func TestInitializeFailure(t *testing.T) {
	caps := capability.NewSet(capability.Analysis)
	a := New("x", "test-agent", caps, func(ctx context.Context, task Task) (map[string]interface{}, error) {
		return nil, nil
	}, WithInitFunc(func(ctx context.Context) error {
		return errors.New("boom")
	}))
	if err := a.Initialize(context.Background()); err == nil {
		t.Fatal("expected an error")
	}
	if a.CurrentStatus() != StatusError {
		t.Fatalf("expected status error, got %s", a.CurrentStatus())
	}
}

func TestExecuteTaskSuccessRestoresIdle(t *testing.T) {
	a := newTestAgent(func(ctx context.Context, task Task) (map[string]interface{}, error) {
		return map[string]interface{}{"echo": task.Input["text"]}, nil
	})
	if err := a.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	result := a.ExecuteTask(context.Background(), Task{
		TaskID: "t1",
		Input:  map[string]interface{}{"text": "hi"},
	})

	if result.TaskID != "t1" {
		t.Fatalf("expected task_id copied from input, got %q", result.TaskID)
	}
	if result.Status != "completed" {
		t.Fatalf("expected completed, got %s", result.Status)
	}
	if a.CurrentStatus() != StatusIdle {
		t.Fatalf("expected status restored to idle, got %s", a.CurrentStatus())
	}

	hb := a.Heartbeat()
	if hb.Attempts != 1 || hb.SuccessRate != 1.0 {
		t.Fatalf("unexpected heartbeat after one success: %+v", hb)
	}
}

func TestExecuteTaskFailure(t *testing.T) {
	a := newTestAgent(func(ctx context.Context, task Task) (map[string]interface{}, error) {
		return nil, errors.New("handler failed")
	})
	if err := a.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	result := a.ExecuteTask(context.Background(), Task{TaskID: "t2"})
	if result.Status != "failed" {
		t.Fatalf("expected failed, got %s", result.Status)
	}
	if result.Error != "handler failed" {
		t.Fatalf("unexpected error message: %s", result.Error)
	}
	if a.CurrentStatus() != StatusIdle {
		t.Fatalf("expected status restored to idle after failure, got %s", a.CurrentStatus())
	}
}

func TestExecuteTaskRejectedWhenNotIdle(t *testing.T) {
	a := newTestAgent(func(ctx context.Context, task Task) (map[string]interface{}, error) {
		return nil, nil
	})
	// Never initialized: status remains Initializing, not Idle.
	result := a.ExecuteTask(context.Background(), Task{TaskID: "t3"})
	if result.Status != "failed" {
		t.Fatalf("expected failed for a non-idle agent, got %s", result.Status)
	}
}

func TestCanHandleMatchesImpliedCapabilities(t *testing.T) {
	a := newTestAgent(func(ctx context.Context, task Task) (map[string]interface{}, error) {
		return nil, nil
	})
	if err := a.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	if !a.CanHandle("text_analysis", nil) {
		t.Fatal("expected agent with text-analysis capability to handle text_analysis")
	}
	if a.CanHandle("data_pipeline", nil) {
		t.Fatal("expected agent without data-processing capability to reject data_pipeline")
	}
}

func TestCanHandleUnrecognizedTaskTypeMatchesAny(t *testing.T) {
	a := newTestAgent(func(ctx context.Context, task Task) (map[string]interface{}, error) {
		return nil, nil
	})
	if err := a.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if !a.CanHandle("some_unmapped_type", nil) {
		t.Fatal("expected an unmapped task type to imply no capability constraint")
	}
}

func TestCanHandleRespectsStatusRequirement(t *testing.T) {
	a := newTestAgent(func(ctx context.Context, task Task) (map[string]interface{}, error) {
		return nil, nil
	})
	if err := a.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if !a.CanHandle("text_analysis", map[string]interface{}{"status": "idle"}) {
		t.Fatal("expected idle agent to satisfy a status=idle requirement")
	}
	if a.CanHandle("text_analysis", map[string]interface{}{"status": "working"}) {
		t.Fatal("expected idle agent to fail a status=working requirement")
	}
}

func TestSetStatusValidatesTransitions(t *testing.T) {
	a := newTestAgent(func(ctx context.Context, task Task) (map[string]interface{}, error) {
		return nil, nil
	})
	if err := a.SetStatus(StatusShutdown); err != nil {
		t.Fatalf("expected any->shutdown to be legal, got %v", err)
	}
	if err := a.SetStatus(StatusIdle); err == nil {
		t.Fatal("expected shutdown->idle to be rejected")
	}
}

func TestHistoryRecordsCompletedTasks(t *testing.T) {
	a := newTestAgent(func(ctx context.Context, task Task) (map[string]interface{}, error) {
		return map[string]interface{}{}, nil
	})
	if err := a.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	a.ExecuteTask(context.Background(), Task{TaskID: "a"})
	a.ExecuteTask(context.Background(), Task{TaskID: "b"})

	hist := a.History()
	if len(hist) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(hist))
	}
	if hist[0].TaskID != "a" || hist[1].TaskID != "b" {
		t.Fatalf("unexpected history order: %+v", hist)
	}
}
