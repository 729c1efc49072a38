// Package observability provides structured logging, distributed tracing,
// metrics, and health checking for processes that embed the Taskmesh
// orchestration core.
//
// # Overview
//
// The package implements:
//   - OpenTelemetry tracing via TraceManager, with helpers for annotating
//     spans around task/subtask processing and message bus publish/consume.
//   - Metrics via MetricsManager, an OTel meter backed by a Prometheus
//     exporter, covering subtask execution, the message bus, the registry,
//     and the communication layer.
//   - Structured logging via log/slog, bridged to the tracer/meter so log
//     records carry trace/span correlation (ObservabilityHandler).
//   - An HTTP HealthServer exposing /health, /ready, and /metrics.
//
// # Quick Start
//
//	obsConfig := observability.DefaultConfig("taskmesh")
//	obs, err := observability.NewObservability(obsConfig)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer obs.Shutdown(context.Background())
//
//	metrics, err := observability.NewMetricsManager(obs.Meter)
//	traces := observability.NewTraceManager(obsConfig.ServiceName)
//
// # Tracing
//
// TraceManager wraps an OTel tracer with helpers shaped around the
// orchestration domain: StartSpan for general spans, StartPublishSpan /
// StartConsumeSpan for message bus traffic, and AddTaskAttributes /
// AddTaskResult for recording a task or subtask's parameters and outcome on
// the active span using the same map[string]interface{} shape the
// orchestrator already works in.
//
// # Metrics
//
// MetricsManager registers one instrument per concern (subtasks processed,
// subtask duration, subtask errors and retries, bus publish duration and
// handler errors, registry selections, delegation duration and timeouts)
// and exposes a small, typed API over each — callers never touch the OTel
// metric API directly.
//
// # Logging
//
// ObservabilityHandler implements slog.Handler. It buffers log records on a
// bounded channel and drains them on a background goroutine, attaching the
// active span's trace/span IDs and the service name to every record so logs
// and traces can be correlated after the fact. NewObservability wires this
// handler into a *slog.Logger automatically; at DEBUG level it also
// duplicates records to stdout via CombinedHandler for local development.
//
// # Health checks
//
// HealthServer serves /health and /ready (aggregating registered
// HealthChecker implementations) and /metrics (Prometheus exposition). A
// BasicHealthChecker wraps any func(context.Context) error.
package observability
