package telemetry

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// ErrMeterNil is returned when a metrics set is built without a meter.
var ErrMeterNil = errors.New("telemetry: meter cannot be nil")

// RelationshipMetrics counts partner relationship mutations and the health
// of mirrored pairs.
type RelationshipMetrics struct {
	created       *Counter
	deleted       *Counter
	warnings      *Counter
	repairs       *Counter
	anomalies     *Gauge
	sweepDuration *Histogram
}

// NewRelationshipMetrics registers the relationship instruments on meter.
func NewRelationshipMetrics(meter metric.Meter) (*RelationshipMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}

	m := &RelationshipMetrics{}
	var err error

	if m.created, err = NewCounter(meter,
		"partner_relationships_created_total",
		"Relationship records written by create, mirrors included",
		"{records}",
	); err != nil {
		return nil, err
	}
	if m.deleted, err = NewCounter(meter,
		"partner_relationships_deleted_total",
		"Relationship records removed, mirrors included",
		"{records}",
	); err != nil {
		return nil, err
	}
	if m.warnings, err = NewCounter(meter,
		"partner_consistency_warnings_total",
		"Mutations whose mirror write did not complete",
		"{warnings}",
	); err != nil {
		return nil, err
	}
	if m.repairs, err = NewCounter(meter,
		"partner_reconcile_repairs_total",
		"Reconciliation actions taken on inconsistent pairs",
		"{repairs}",
	); err != nil {
		return nil, err
	}
	if m.anomalies, err = NewGauge(meter,
		"partner_reconcile_anomalies",
		"Inconsistent pairs found by the last sweep",
		"{pairs}",
	); err != nil {
		return nil, err
	}
	if m.sweepDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "partner_reconcile_sweep_duration_seconds",
		Description: "Duration of a reconciliation sweep",
		Unit:        "s",
		Boundaries:  SweepDurationBuckets,
	}); err != nil {
		return nil, err
	}

	return m, nil
}

// RecordCreated counts records written by a create (1 or 2).
func (m *RelationshipMetrics) RecordCreated(ctx context.Context, relationship string, records int) {
	m.created.Add(ctx, int64(records), AttrRelationship.String(relationship))
}

// RecordDeleted counts records removed by a delete (1 or 2).
func (m *RelationshipMetrics) RecordDeleted(ctx context.Context, records int) {
	m.deleted.Add(ctx, int64(records))
}

// RecordWarning counts a consistency warning.
func (m *RelationshipMetrics) RecordWarning(ctx context.Context, operation, code string) {
	m.warnings.Inc(ctx, AttrOperation.String(operation), AttrWarningCode.String(code))
}

// RecordRepair counts a reconciliation action and its outcome.
func (m *RelationshipMetrics) RecordRepair(ctx context.Context, action, outcome string) {
	m.repairs.Inc(ctx, AttrOperation.String(action), AttrOutcome.String(outcome))
}

// RecordSweep records a sweep's duration and the anomalies it found per kind.
func (m *RelationshipMetrics) RecordSweep(ctx context.Context, d time.Duration, unpaired, mismatched int) {
	m.sweepDuration.RecordDuration(ctx, d)
	m.anomalies.Record(ctx, int64(unpaired), AttrAnomaly.String("unpaired"))
	m.anomalies.Record(ctx, int64(mismatched), AttrAnomaly.String("status_mismatch"))
}
