// Package otel provides OpenTelemetry integration for LinguaFlow session
// lifecycle events and HTTP traffic.
package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/lingua-labs/linguaflow/session"
)

// SessionObserver translates session manager lifecycle notifications into
// OpenTelemetry metrics. It records counters for operations and failures
// and a histogram for revalidation pass duration.
type SessionObserver struct {
	operations        metric.Int64Counter
	operationFailures metric.Int64Counter
	revalidations     metric.Int64Counter
	revalidationTime  metric.Float64Histogram
}

// NewSessionObserver creates a SessionObserver that uses the given meter to
// create instruments for recording session lifecycle metrics.
func NewSessionObserver(meter metric.Meter) (*SessionObserver, error) {
	ops, err := meter.Int64Counter("linguaflow.session.operations",
		metric.WithDescription("Number of completed session operations"),
	)
	if err != nil {
		return nil, err
	}

	failures, err := meter.Int64Counter("linguaflow.session.operation_failures",
		metric.WithDescription("Number of failed session operations"),
	)
	if err != nil {
		return nil, err
	}

	revalidations, err := meter.Int64Counter("linguaflow.session.revalidations",
		metric.WithDescription("Number of revalidation passes by outcome"),
	)
	if err != nil {
		return nil, err
	}

	revalidationTime, err := meter.Float64Histogram("linguaflow.session.revalidation.duration",
		metric.WithDescription("Duration of revalidation passes in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &SessionObserver{
		operations:        ops,
		operationFailures: failures,
		revalidations:     revalidations,
		revalidationTime:  revalidationTime,
	}, nil
}

// OperationCompleted records one finished operation, counting failures
// separately. It implements session.Observer.
func (o *SessionObserver) OperationCompleted(op string, err error) {
	ctx := context.Background()
	attrs := metric.WithAttributes(attribute.String("operation", op))
	o.operations.Add(ctx, 1, attrs)
	if err != nil {
		o.operationFailures.Add(ctx, 1, attrs)
	}
}

// RevalidationCompleted records one revalidation pass with its outcome.
// It implements session.Observer.
func (o *SessionObserver) RevalidationCompleted(outcome session.RevalidationOutcome, elapsed time.Duration) {
	ctx := context.Background()
	attrs := metric.WithAttributes(attribute.String("outcome", string(outcome)))
	o.revalidations.Add(ctx, 1, attrs)
	o.revalidationTime.Record(ctx, elapsed.Seconds(), attrs)
}

var _ session.Observer = (*SessionObserver)(nil)
