package observability

import (
	"context"
	"runtime"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsManager wires orchestration-domain counters and histograms onto an
// OpenTelemetry meter. Instances are created once per Runtime (see
// internal/orchestrator) and shared by every component that needs to record
// an observation.
type MetricsManager struct {
	meter metric.Meter

	// Subtask execution metrics
	subtasksProcessedTotal metric.Int64Counter
	subtaskDuration        metric.Float64Histogram
	subtaskErrorsTotal     metric.Int64Counter
	subtaskRetriesTotal    metric.Int64Counter

	// System metrics
	processResidentMemoryBytes metric.Int64UpDownCounter
	goGoroutines               metric.Int64UpDownCounter
	goMemstatsAllocBytes       metric.Int64UpDownCounter

	// Message bus metrics
	busPublishDuration    metric.Float64Histogram
	busHandlerErrorsTotal metric.Int64Counter

	// Agent registry / communication metrics
	registrySelectionsTotal metric.Int64Counter
	delegationDuration      metric.Float64Histogram
	delegationTimeoutsTotal metric.Int64Counter
}

// NewMetricsManager registers every Taskmesh metric on meter. It fails only
// if the meter implementation rejects an instrument registration.
func NewMetricsManager(meter metric.Meter) (*MetricsManager, error) {
	mm := &MetricsManager{meter: meter}

	var err error

	if mm.subtasksProcessedTotal, err = meter.Int64Counter(
		"taskmesh_subtasks_processed_total",
		metric.WithDescription("Total number of subtasks processed, by final status"),
		metric.WithUnit("1"),
	); err != nil {
		return nil, err
	}

	if mm.subtaskDuration, err = meter.Float64Histogram(
		"taskmesh_subtask_duration_seconds",
		metric.WithDescription("Subtask execution duration in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	if mm.subtaskErrorsTotal, err = meter.Int64Counter(
		"taskmesh_subtask_errors_total",
		metric.WithDescription("Total number of subtask execution errors, by error kind"),
		metric.WithUnit("1"),
	); err != nil {
		return nil, err
	}

	if mm.subtaskRetriesTotal, err = meter.Int64Counter(
		"taskmesh_subtask_retries_total",
		metric.WithDescription("Total number of subtask retry attempts"),
		metric.WithUnit("1"),
	); err != nil {
		return nil, err
	}

	if mm.processResidentMemoryBytes, err = meter.Int64UpDownCounter(
		"process_resident_memory_bytes",
		metric.WithDescription("Resident memory size in bytes"),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}

	if mm.goGoroutines, err = meter.Int64UpDownCounter(
		"go_goroutines",
		metric.WithDescription("Number of goroutines that currently exist"),
		metric.WithUnit("1"),
	); err != nil {
		return nil, err
	}

	if mm.goMemstatsAllocBytes, err = meter.Int64UpDownCounter(
		"go_memstats_alloc_bytes",
		metric.WithDescription("Number of bytes allocated and still in use"),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}

	if mm.busPublishDuration, err = meter.Float64Histogram(
		"taskmesh_bus_publish_duration_seconds",
		metric.WithDescription("Message bus blocking publish duration in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	if mm.busHandlerErrorsTotal, err = meter.Int64Counter(
		"taskmesh_bus_handler_errors_total",
		metric.WithDescription("Total number of subscriber handler errors isolated by the bus"),
		metric.WithUnit("1"),
	); err != nil {
		return nil, err
	}

	if mm.registrySelectionsTotal, err = meter.Int64Counter(
		"taskmesh_registry_selections_total",
		metric.WithDescription("Total number of agent selections, by outcome"),
		metric.WithUnit("1"),
	); err != nil {
		return nil, err
	}

	if mm.delegationDuration, err = meter.Float64Histogram(
		"taskmesh_delegation_duration_seconds",
		metric.WithDescription("Communication layer delegate_task round-trip duration in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	if mm.delegationTimeoutsTotal, err = meter.Int64Counter(
		"taskmesh_delegation_timeouts_total",
		metric.WithDescription("Total number of delegations that timed out"),
		metric.WithUnit("1"),
	); err != nil {
		return nil, err
	}

	return mm, nil
}

// Subtask metrics

func (mm *MetricsManager) IncrementSubtasksProcessed(ctx context.Context, taskType, status string) {
	mm.subtasksProcessedTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("task_type", taskType),
		attribute.String("status", status),
	))
}

func (mm *MetricsManager) RecordSubtaskDuration(ctx context.Context, taskType string, duration time.Duration) {
	mm.subtaskDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("task_type", taskType),
	))
}

func (mm *MetricsManager) IncrementSubtaskErrors(ctx context.Context, taskType, errorKind string) {
	mm.subtaskErrorsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("task_type", taskType),
		attribute.String("error", errorKind),
	))
}

func (mm *MetricsManager) IncrementSubtaskRetries(ctx context.Context, taskType string) {
	mm.subtaskRetriesTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("task_type", taskType),
	))
}

// System metrics

func (mm *MetricsManager) UpdateSystemMetrics(ctx context.Context) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	mm.goGoroutines.Add(ctx, int64(runtime.NumGoroutine()))
	mm.goMemstatsAllocBytes.Add(ctx, int64(m.Alloc))
	mm.processResidentMemoryBytes.Add(ctx, int64(m.Sys))
}

// Message bus metrics

func (mm *MetricsManager) RecordBusPublishDuration(ctx context.Context, topic string, duration time.Duration) {
	mm.busPublishDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("topic", topic),
	))
}

func (mm *MetricsManager) IncrementBusHandlerErrors(ctx context.Context, topic string) {
	mm.busHandlerErrorsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("topic", topic),
	))
}

// Registry / communication metrics

func (mm *MetricsManager) IncrementRegistrySelections(ctx context.Context, taskType, outcome string) {
	mm.registrySelectionsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("task_type", taskType),
		attribute.String("outcome", outcome),
	))
}

func (mm *MetricsManager) RecordDelegationDuration(ctx context.Context, targetAgentID string, duration time.Duration) {
	mm.delegationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("target_agent_id", targetAgentID),
	))
}

func (mm *MetricsManager) IncrementDelegationTimeouts(ctx context.Context, targetAgentID string) {
	mm.delegationTimeoutsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("target_agent_id", targetAgentID),
	))
}
