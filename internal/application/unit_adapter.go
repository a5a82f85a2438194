package application

import (
	"context"
	"time"

	"github.com/ahrav/go-ragqa/internal/domain"
	"github.com/ahrav/go-ragqa/internal/ports"
)

// UnitAdapter wraps a ports.Unit so it can run as a step of a Pipeline or
// Layer. When a MetricsCollector is set it records the unit's latency and
// outcome.
type UnitAdapter struct {
	unit    ports.Unit
	id      string
	metrics ports.MetricsCollector
}

var _ ports.Executable = (*UnitAdapter)(nil)

// NewUnitAdapter wraps unit under id. metrics may be nil.
func NewUnitAdapter(unit ports.Unit, id string, metrics ports.MetricsCollector) *UnitAdapter {
	return &UnitAdapter{
		unit:    unit,
		id:      id,
		metrics: metrics,
	}
}

// Execute delegates to the wrapped unit.
func (ua *UnitAdapter) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	start := time.Now()
	next, err := ua.unit.Execute(ctx, state)

	if ua.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		ua.metrics.RecordLatency("Execute", time.Since(start), map[string]string{"unit": ua.id})
		ua.metrics.RecordCounter("unit_executions_total", 1, map[string]string{"unit": ua.id, "status": status})
	}
	return next, err
}

// ID returns the adapter's identifier.
func (ua *UnitAdapter) ID() string { return ua.id }

// Unit returns the wrapped unit.
func (ua *UnitAdapter) Unit() ports.Unit { return ua.unit }
