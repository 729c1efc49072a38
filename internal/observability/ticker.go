package observability

import (
	"context"
	"time"
)

// MetricsTicker periodically refreshes process-level gauges (goroutine
// count, memory stats) on MetricsManager so dashboards reflect current
// state between request-driven observations.
type MetricsTicker struct {
	ctx            context.Context
	metricsManager *MetricsManager
	ticker         *time.Ticker
	done           chan struct{}
}

// NewMetricsTicker constructs a ticker that fires every interval until ctx
// is cancelled or Stop is called.
func NewMetricsTicker(ctx context.Context, metricsManager *MetricsManager, interval time.Duration) *MetricsTicker {
	return &MetricsTicker{
		ctx:            ctx,
		metricsManager: metricsManager,
		ticker:         time.NewTicker(interval),
		done:           make(chan struct{}),
	}
}

// Start begins collection on a background goroutine.
func (m *MetricsTicker) Start() {
	go func() {
		defer m.ticker.Stop()
		for {
			select {
			case <-m.ticker.C:
				m.metricsManager.UpdateSystemMetrics(m.ctx)
			case <-m.ctx.Done():
				return
			case <-m.done:
				return
			}
		}
	}()
}

// Stop ends collection.
func (m *MetricsTicker) Stop() {
	close(m.done)
}
