// Package telemetry holds the OpenTelemetry instruments for the production
// engine. The meter comes from the global provider; when no SDK is installed
// the counters are no-ops, so the engine can always carry them.
package telemetry

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// EngineMetrics counts gate validation attempts by outcome.
type EngineMetrics struct {
	Advances     metric.Int64Counter
	GateFailures metric.Int64Counter
	Bypasses     metric.Int64Counter
}

// NewEngineMetrics registers the engine counters on the global meter.
func NewEngineMetrics() (*EngineMetrics, error) {
	meter := otel.Meter("roofline-crm/backend/internal/workflow")

	advances, err := meter.Int64Counter("production.advance.attempts",
		metric.WithDescription("Stage advance attempts, labelled by gate outcome"))
	if err != nil {
		return nil, err
	}
	failures, err := meter.Int64Counter("production.gate.failures",
		metric.WithDescription("Advance attempts rejected by gate validation"))
	if err != nil {
		return nil, err
	}
	bypasses, err := meter.Int64Counter("production.gate.bypasses",
		metric.WithDescription("Gate bypasses committed with supervisor justification"))
	if err != nil {
		return nil, err
	}

	return &EngineMetrics{Advances: advances, GateFailures: failures, Bypasses: bypasses}, nil
}
