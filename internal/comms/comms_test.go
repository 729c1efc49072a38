package comms

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/owulveryck/taskmesh/internal/bus"
)

func TestDelegateTaskSuccess(t *testing.T) {
	b := bus.New(nil)
	caller := New("caller", b, nil)

	var registered bool
	callee := New("callee", b, nil)
	callee.RegisterHandler("echo", func(ctx context.Context, taskType string, parameters map[string]interface{}) (map[string]interface{}, error) {
		registered = true
		return map[string]interface{}{"echoed": parameters["text"]}, nil
	})

	result := caller.DelegateTask(context.Background(), "callee", "echo", map[string]interface{}{"text": "hi"}, 0, time.Second)

	if !registered {
		t.Fatal("expected handler to have been invoked")
	}
	if result["status"] != "completed" {
		t.Fatalf("expected completed, got %v", result)
	}
}

func TestDelegateTaskHandlerError(t *testing.T) {
	b := bus.New(nil)
	caller := New("caller", b, nil)
	callee := New("callee", b, nil)
	callee.RegisterHandler("fail", func(ctx context.Context, taskType string, parameters map[string]interface{}) (map[string]interface{}, error) {
		return nil, errors.New("boom")
	})

	result := caller.DelegateTask(context.Background(), "callee", "fail", nil, 0, time.Second)
	if result["status"] != "failed" {
		t.Fatalf("expected failed, got %v", result)
	}
}

func TestDelegateTaskNoHandlerRegistered(t *testing.T) {
	b := bus.New(nil)
	caller := New("caller", b, nil)
	_ = New("callee", b, nil)

	result := caller.DelegateTask(context.Background(), "callee", "unknown_type", nil, 0, time.Second)
	if result["status"] != "failed" {
		t.Fatalf("expected failed for an unregistered task type, got %v", result)
	}
}

func TestDelegateTaskTimeout(t *testing.T) {
	b := bus.New(nil)
	caller := New("caller", b, nil)
	callee := New("callee", b, nil)
	callee.RegisterHandler("slow", func(ctx context.Context, taskType string, parameters map[string]interface{}) (map[string]interface{}, error) {
		time.Sleep(100 * time.Millisecond)
		return map[string]interface{}{}, nil
	})

	result := caller.DelegateTask(context.Background(), "callee", "slow", nil, 0, 10*time.Millisecond)
	if result["status"] != "timeout" {
		t.Fatalf("expected timeout, got %v", result)
	}
	if result["error"] != "timeout" {
		t.Fatalf("expected error=timeout, got %v", result["error"])
	}
}

func TestRelationshipAccounting(t *testing.T) {
	b := bus.New(nil)
	caller := New("caller", b, nil)
	callee := New("callee", b, nil)
	callee.RegisterHandler("ok", func(ctx context.Context, taskType string, parameters map[string]interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{}, nil
	})
	callee.RegisterHandler("bad", func(ctx context.Context, taskType string, parameters map[string]interface{}) (map[string]interface{}, error) {
		return nil, errors.New("nope")
	})

	caller.DelegateTask(context.Background(), "callee", "ok", nil, 0, time.Second)
	caller.DelegateTask(context.Background(), "callee", "bad", nil, 0, time.Second)

	rel := caller.Relationship("callee")
	if rel.Total != 2 || rel.Successful != 1 {
		t.Fatalf("expected total=2 successful=1, got %+v", rel)
	}
	if rel.Trust() != 0.5 {
		t.Fatalf("expected trust=0.5, got %f", rel.Trust())
	}
}

func TestBroadcastAggregatesResults(t *testing.T) {
	b := bus.New(nil)
	caller := New("caller", b, nil)
	for _, id := range []string{"t1", "t2", "t3"} {
		target := New(id, b, nil)
		id := id
		target.RegisterHandler("ping", func(ctx context.Context, taskType string, parameters map[string]interface{}) (map[string]interface{}, error) {
			if id == "t3" {
				return nil, errors.New("down")
			}
			return map[string]interface{}{"pong": true}, nil
		})
	}

	results, succeeded, failed := caller.Broadcast(context.Background(), "ping", nil, []string{"t1", "t2", "t3"}, time.Second)

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if succeeded != 2 || failed != 1 {
		t.Fatalf("expected succeeded=2 failed=1, got succeeded=%d failed=%d", succeeded, failed)
	}
}
