// Package agent implements the Base Agent contract: the lifecycle state
// machine, capability declaration, and metric accounting that every worker
// participating in a Taskmesh orchestration must satisfy.
//
// Agent is the concrete, reusable implementation. Embedding applications
// supply a Handler carrying their domain logic; Agent handles the
// surrounding Initializing/Validating/Idle/Working bracket, running
// counters, and history.
//
//	caps := capability.NewSet(capability.Analysis, capability.TextAnalysis)
//	a := agent.New("summarizer-1", "text-agent", caps, func(ctx context.Context, t agent.Task) (map[string]interface{}, error) {
//	    return map[string]interface{}{"summary": summarize(t.Input["text"].(string))}, nil
//	})
//	if err := a.Initialize(ctx); err != nil {
//	    log.Fatal(err)
//	}
package agent
