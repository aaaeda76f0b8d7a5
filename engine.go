package goRecovery

import (
	"log/slog"

	internalaudit "github.com/MrEthical07/goRecovery/internal/audit"
	"github.com/MrEthical07/goRecovery/internal/flows"
	"github.com/MrEthical07/goRecovery/internal/limiters"
	"github.com/MrEthical07/goRecovery/masking"
)

// Engine defines a public type used by goRecovery APIs.
//
// Engine instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Engine struct {
	config    Config
	directory Directory
	status    AccountStatusProvider
	tenants   TenantResolver
	policy    NotificationPolicy
	store     RecoveryStore
	limiter   *limiters.RecoveryLimiter
	masker    *masking.Masker
	audit     *internalaudit.Dispatcher
	metrics   *Metrics
	logger    *slog.Logger
	flowDeps  flows.Deps
}

// Close drains pending audit events and stops the dispatcher. The engine
// stays usable; later events are dropped.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were dropped because the
// dispatcher buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	if e == nil {
		return defaultConfig()
	}
	return cloneConfig(e.config)
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}
