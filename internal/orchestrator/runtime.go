package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/owulveryck/taskmesh/internal/agent"
	"github.com/owulveryck/taskmesh/internal/bus"
	"github.com/owulveryck/taskmesh/internal/comms"
	"github.com/owulveryck/taskmesh/internal/config"
	"github.com/owulveryck/taskmesh/internal/decomposer"
	"github.com/owulveryck/taskmesh/internal/observability"
	"github.com/owulveryck/taskmesh/internal/registry"
)

// Runtime wires an Orchestrator together with the Registry, Decomposer,
// and observability stack (tracing, metrics, health checks) a standalone
// process needs, in the same spirit as the teacher's AgentHubServer: one
// constructor that bootstraps every ambient concern, and Start/Shutdown
// bracketing its lifecycle. Unlike the teacher's server, Runtime opens no
// network listener other than the health/metrics HTTP server that Start
// runs — the core itself is in-process only (spec.md §6).
type Runtime struct {
	Orchestrator *Orchestrator
	Registry     *registry.Registry
	Decomposer   *decomposer.Decomposer
	Bus          *bus.Bus

	obs          *observability.Observability
	metrics      *observability.MetricsManager
	tracer       *observability.TraceManager
	healthServer *observability.HealthServer
	ticker       *observability.MetricsTicker

	commsMu sync.Mutex
	comms   map[string]*comms.Layer
}

// NewRuntime bootstraps observability from appConfig and constructs a
// Runtime wrapping a fresh Registry, Decomposer, and Orchestrator.
func NewRuntime(serviceName string, appConfig *config.AppConfig) (*Runtime, error) {
	obsConfig := observability.ConfigFrom(serviceName, appConfig)
	obs, err := observability.NewObservability(obsConfig)
	if err != nil {
		return nil, fmt.Errorf("taskmesh: failed to initialize observability: %w", err)
	}

	metrics, err := observability.NewMetricsManager(obs.Meter)
	if err != nil {
		return nil, fmt.Errorf("taskmesh: failed to initialize metrics: %w", err)
	}

	tracer := observability.NewTraceManager(serviceName)
	healthServer := observability.NewHealthServer(appConfig.HealthPort, serviceName, appConfig.ServiceVersion)
	healthServer.AddChecker("self", observability.NewBasicHealthChecker("self", func(ctx context.Context) error {
		return nil
	}))

	b := bus.New(func(ctx context.Context, topic string, handlerErr error) {
		obs.Logger.ErrorContext(ctx, "bus handler error", "topic", topic, "error", handlerErr)
		metrics.IncrementBusHandlerErrors(ctx, topic)
	})
	b.SetPublishRecorder(func(ctx context.Context, topic string, d time.Duration) {
		metrics.RecordBusPublishDuration(ctx, topic, d)
	})

	reg := registry.New(obs.Logger)
	reg.SetSelectionRecorder(func(taskType, outcome string) {
		metrics.IncrementRegistrySelections(context.Background(), taskType, outcome)
	})
	dec := decomposer.New(decomposer.WithLogger(obs.Logger))

	successWeight, speedWeight, loadWeight := appConfig.SelectionWeights()
	orchCfg := Config{
		MaxParallelTasks:         appConfig.MaxParallelTasks,
		TaskTimeoutSeconds:       appConfig.TaskTimeoutSeconds,
		DelegationTimeoutSeconds: appConfig.DelegationTimeoutSecs,
		MaxRetries:               appConfig.MaxRetries,
		RetryBackoffBaseSeconds:  appConfig.RetryBackoffBaseSecs,
		SelectionWeights:         registry.Weights{Success: successWeight, Speed: speedWeight, Load: loadWeight},
	}

	orch := New(reg, dec, orchCfg,
		WithLogger(obs.Logger),
		WithMetrics(metrics),
		WithTracer(tracer),
	)

	return &Runtime{
		Orchestrator: orch,
		Registry:     reg,
		Decomposer:   dec,
		Bus:          b,
		obs:          obs,
		metrics:      metrics,
		tracer:       tracer,
		healthServer: healthServer,
		comms:        make(map[string]*comms.Layer),
	}, nil
}

// Start begins the health/metrics HTTP server and the periodic system
// metrics ticker. It blocks until the health server stops.
func (r *Runtime) Start(ctx context.Context) error {
	r.ticker = observability.NewMetricsTicker(ctx, r.metrics, 30*time.Second)
	r.ticker.Start()

	r.obs.Logger.InfoContext(ctx, "taskmesh runtime started")
	return r.healthServer.Start(ctx)
}

// Shutdown stops the metrics ticker, health server, and observability
// exporters in that order.
func (r *Runtime) Shutdown(ctx context.Context) error {
	if r.ticker != nil {
		r.ticker.Stop()
	}
	if err := r.healthServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("taskmesh: health server shutdown: %w", err)
	}
	return r.obs.Shutdown(ctx)
}

// RegisterAgent registers a into the Runtime's Registry and initializes it,
// a convenience wrapper around the two-step Registry.Register /
// agent.Initialize sequence every caller needs. It also gives a its own
// Communication Layer over the Runtime's Message Bus, with a default
// handler that forwards any inbound delegated task straight to
// a.ExecuteTask, so DelegateTask/Broadcast can reach registered agents the
// same way the orchestrator does, without each caller wiring that up.
func (r *Runtime) RegisterAgent(ctx context.Context, a agent.BaseAgent) error {
	if err := initializeIfPossible(ctx, a); err != nil {
		return err
	}
	r.Registry.Register(a)

	layer := comms.New(a.ID(), r.Bus, r.obs.Logger)
	layer.SetDefaultHandler(func(ctx context.Context, taskType string, parameters map[string]interface{}) (map[string]interface{}, error) {
		result := a.ExecuteTask(ctx, agent.Task{TaskID: a.ID() + "-" + taskType, TaskType: taskType, Input: parameters})
		if result.Status != "completed" {
			return nil, fmt.Errorf("%s", result.Error)
		}
		return result.Value, nil
	})
	layer.SetDelegationRecorder(func(target string, d time.Duration, timedOut bool) {
		r.metrics.RecordDelegationDuration(context.Background(), target, d)
		if timedOut {
			r.metrics.IncrementDelegationTimeouts(context.Background(), target)
		}
	})

	r.commsMu.Lock()
	r.comms[a.ID()] = layer
	r.commsMu.Unlock()

	return nil
}

// Comms returns the Communication Layer RegisterAgent created for agentID,
// if that agent is registered.
func (r *Runtime) Comms(agentID string) (*comms.Layer, bool) {
	r.commsMu.Lock()
	defer r.commsMu.Unlock()
	l, ok := r.comms[agentID]
	return l, ok
}

func initializeIfPossible(ctx context.Context, a agent.BaseAgent) error {
	type initializer interface {
		Initialize(ctx context.Context) error
	}
	if init, ok := a.(initializer); ok {
		return init.Initialize(ctx)
	}
	return nil
}
