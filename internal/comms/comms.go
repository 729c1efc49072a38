// Package comms implements the Communication Layer (spec.md §4.4):
// request/response delegation and broadcast over the Message Bus, plus
// per-peer relationship bookkeeping. It is the in-process analogue of the
// teacher's AgentHub client/broker request-response pairing, generalized
// off gRPC task subscriptions onto bus topics.
package comms

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/owulveryck/taskmesh/internal/bus"
)

// Topic conventions (spec.md §4.4).
func inboundTopic(agentID string) string { return fmt.Sprintf("tasks.%s", agentID) }
func resultTopic(agentID string) string  { return fmt.Sprintf("tasks.%s.result", agentID) }

// BroadcastTopic is the shared lifecycle/event channel.
const BroadcastTopic = "agents.event"

// TaskHandler answers an inbound delegated task addressed to this layer's
// owning agent.
type TaskHandler func(ctx context.Context, taskType string, parameters map[string]interface{}) (map[string]interface{}, error)

// Relationship is the per-peer bookkeeping record spec.md §4.4 requires.
type Relationship struct {
	Total      int64
	Successful int64
}

// Trust is successful/total, 0 if no interactions have completed.
func (r Relationship) Trust() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(r.Successful) / float64(r.Total)
}

type pendingRequest struct {
	done chan map[string]interface{}
	once sync.Once
}

func (p *pendingRequest) complete(payload map[string]interface{}) {
	p.once.Do(func() {
		p.done <- payload
		close(p.done)
	})
}

// Layer is one agent's view of the Communication Layer: it owns the
// inbound/result subscriptions for a single agent identity and tracks its
// in-flight requests and peer relationships.
type Layer struct {
	selfID string
	bus    *bus.Bus
	logger *slog.Logger

	mu            sync.Mutex
	pending       map[string]*pendingRequest
	relationships map[string]*Relationship

	handlerMu      sync.RWMutex
	handlers       map[string]TaskHandler
	defaultHandler TaskHandler

	onDelegation func(target string, d time.Duration, timedOut bool)
}

// New constructs a Layer for selfID and subscribes its inbound task and
// result topics on b. If logger is nil, slog.Default() is used.
func New(selfID string, b *bus.Bus, logger *slog.Logger) *Layer {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Layer{
		selfID:        selfID,
		bus:           b,
		logger:        logger,
		pending:       make(map[string]*pendingRequest),
		relationships: make(map[string]*Relationship),
		handlers:      make(map[string]TaskHandler),
	}
	b.Subscribe(resultTopic(selfID), l.handleResult)
	b.Subscribe(inboundTopic(selfID), l.handleInbound)
	return l
}

// SetDefaultHandler installs a fallback TaskHandler used for any inbound
// task type with no handler registered via RegisterHandler. It exists so a
// owning BaseAgent (which answers CanHandle for a data-driven set of task
// types, not a fixed list known up front) can be delegated to over the bus
// without enumerating every task type it might ever receive.
func (l *Layer) SetDefaultHandler(handler TaskHandler) {
	l.handlerMu.Lock()
	defer l.handlerMu.Unlock()
	l.defaultHandler = handler
}

// SetDelegationRecorder installs a callback invoked after every DelegateTask
// call completes, with the round-trip duration and whether it timed out, so
// a caller can wire delegation metrics without this package depending on the
// observability package.
func (l *Layer) SetDelegationRecorder(onDelegation func(target string, d time.Duration, timedOut bool)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onDelegation = onDelegation
}

// RegisterHandler registers a locally handled task type for inbound
// delegations.
func (l *Layer) RegisterHandler(taskType string, handler TaskHandler) {
	l.handlerMu.Lock()
	defer l.handlerMu.Unlock()
	l.handlers[taskType] = handler
}

// DelegateTask implements spec.md §4.4's delegate_task: it publishes an
// envelope on the target's inbound topic and awaits a correlated response
// on the caller's own result topic, subject to timeout.
func (l *Layer) DelegateTask(ctx context.Context, target, taskType string, parameters map[string]interface{}, priority int, timeout time.Duration) map[string]interface{} {
	start := time.Now()
	msgID := uuid.NewString()

	slot := &pendingRequest{done: make(chan map[string]interface{}, 1)}
	l.mu.Lock()
	l.pending[msgID] = slot
	l.mu.Unlock()

	envelope := bus.Message{
		"message_id": msgID,
		"task_type":  taskType,
		"parameters": parameters,
		"priority":   priority,
		"reply_to":   resultTopic(l.selfID),
		"task_id":    msgID,
	}

	if err := l.bus.Publish(ctx, inboundTopic(target), envelope, false); err != nil {
		l.logger.ErrorContext(ctx, "failed to publish delegation envelope", "target", target, "error", err)
	}

	var result map[string]interface{}
	select {
	case result = <-slot.done:
	case <-time.After(timeout):
		l.mu.Lock()
		delete(l.pending, msgID)
		l.mu.Unlock()
		result = map[string]interface{}{
			"status":  "timeout",
			"task_id": msgID,
			"error":   "timeout",
		}
	case <-ctx.Done():
		l.mu.Lock()
		delete(l.pending, msgID)
		l.mu.Unlock()
		result = map[string]interface{}{
			"status":  "timeout",
			"task_id": msgID,
			"error":   "timeout",
		}
	}

	l.recordRelationship(target, result)

	status, _ := result["status"].(string)
	l.mu.Lock()
	onDelegation := l.onDelegation
	l.mu.Unlock()
	if onDelegation != nil {
		onDelegation(target, time.Since(start), status == "timeout")
	}

	return result
}

// BroadcastResult is one target's outcome from a Broadcast call.
type BroadcastResult struct {
	Target string
	Result map[string]interface{}
}

// Broadcast issues delegate_task concurrently to every target and returns
// a per-target result map plus the succeeded and failed counts; no
// separate total is returned (it equals succeeded+failed).
func (l *Layer) Broadcast(ctx context.Context, taskType string, parameters map[string]interface{}, targets []string, timeout time.Duration) (results map[string]map[string]interface{}, succeeded, failed int) {
	results = make(map[string]map[string]interface{}, len(targets))
	resultsCh := make(chan BroadcastResult, len(targets))

	var wg sync.WaitGroup
	wg.Add(len(targets))
	for _, target := range targets {
		target := target
		go func() {
			defer wg.Done()
			r := l.DelegateTask(ctx, target, taskType, parameters, 0, timeout)
			resultsCh <- BroadcastResult{Target: target, Result: r}
		}()
	}
	wg.Wait()
	close(resultsCh)

	for br := range resultsCh {
		results[br.Target] = br.Result
		if status, _ := br.Result["status"].(string); status == "completed" {
			succeeded++
		} else {
			failed++
		}
	}
	return results, succeeded, failed
}

// handleResult is the response handler subscribed on the caller's result
// topic: it looks up the pending entry by message id and resolves it.
// Unknown message ids are logged and discarded.
func (l *Layer) handleResult(ctx context.Context, msg bus.Message) error {
	msgID, _ := msg["message_id"].(string)
	if msgID == "" {
		msgID, _ = msg["task_id"].(string)
	}

	l.mu.Lock()
	slot, ok := l.pending[msgID]
	if ok {
		delete(l.pending, msgID)
	}
	l.mu.Unlock()

	if !ok {
		l.logger.WarnContext(ctx, "received result for unknown message id", "message_id", msgID)
		return nil
	}

	slot.complete(map[string]interface{}(msg))
	return nil
}

// handleInbound is the inbound task handler subscribed on tasks.{self}: it
// dispatches by task_type to a locally registered handler and publishes
// the response on the envelope's reply topic.
func (l *Layer) handleInbound(ctx context.Context, msg bus.Message) error {
	taskType, _ := msg["task_type"].(string)
	msgID, _ := msg["message_id"].(string)
	replyTo, _ := msg["reply_to"].(string)
	parameters, _ := msg["parameters"].(map[string]interface{})

	l.handlerMu.RLock()
	handler, ok := l.handlers[taskType]
	if !ok {
		handler = l.defaultHandler
		ok = handler != nil
	}
	l.handlerMu.RUnlock()

	var response bus.Message
	if !ok {
		response = bus.Message{
			"message_id": msgID,
			"task_id":    msgID,
			"status":     "failed",
			"error":      fmt.Sprintf("no handler registered for task type %q", taskType),
		}
	} else {
		value, err := handler(ctx, taskType, parameters)
		if err != nil {
			response = bus.Message{
				"message_id": msgID,
				"task_id":    msgID,
				"status":     "failed",
				"error":      err.Error(),
			}
		} else {
			response = bus.Message{
				"message_id": msgID,
				"task_id":    msgID,
				"status":     "completed",
				"result":     value,
			}
		}
	}

	if replyTo == "" {
		return nil
	}
	return l.bus.Publish(ctx, replyTo, response, false)
}

func (l *Layer) recordRelationship(peer string, result map[string]interface{}) {
	status, _ := result["status"].(string)

	l.mu.Lock()
	defer l.mu.Unlock()
	rel, ok := l.relationships[peer]
	if !ok {
		rel = &Relationship{}
		l.relationships[peer] = rel
	}
	rel.Total++
	if status == "completed" {
		rel.Successful++
	}
}

// Relationship returns a copy of the bookkeeping record for peer, or the
// zero value if no delegation has completed with it yet.
func (l *Layer) Relationship(peer string) Relationship {
	l.mu.Lock()
	defer l.mu.Unlock()
	if rel, ok := l.relationships[peer]; ok {
		return *rel
	}
	return Relationship{}
}
