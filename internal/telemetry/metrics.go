package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/trustbridge/ngoverify"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Review workflow metrics
	DocumentDecisionsTotal    metric.Int64Counter
	ApplicationDecisionsTotal metric.Int64Counter
	AggregateApprovalsTotal   metric.Int64Counter
	ResubmissionsTotal        metric.Int64Counter
	ApplicationsCreatedTotal  metric.Int64Counter

	// Store metrics
	VersionConflictsTotal metric.Int64Counter

	// Login metrics
	GateOutcomesTotal metric.Int64Counter

	// Notification metrics
	NotificationsSentTotal    metric.Int64Counter
	NotificationsFailedTotal  metric.Int64Counter
	NotificationsDroppedTotal metric.Int64Counter
	NotificationDuration      metric.Float64Histogram
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	m.DocumentDecisionsTotal, _ = meter.Int64Counter(
		"ngoverify.documents.decisions.total",
		metric.WithDescription("Total number of document approve/reject decisions"),
		metric.WithUnit("{decision}"),
	)

	m.ApplicationDecisionsTotal, _ = meter.Int64Counter(
		"ngoverify.applications.decisions.total",
		metric.WithDescription("Total number of top-level application decisions"),
		metric.WithUnit("{decision}"),
	)

	m.AggregateApprovalsTotal, _ = meter.Int64Counter(
		"ngoverify.applications.aggregate_approvals.total",
		metric.WithDescription("Applications approved because every document was approved"),
		metric.WithUnit("{application}"),
	)

	m.ResubmissionsTotal, _ = meter.Int64Counter(
		"ngoverify.documents.resubmissions.total",
		metric.WithDescription("Total number of rejected documents resubmitted"),
		metric.WithUnit("{document}"),
	)

	m.ApplicationsCreatedTotal, _ = meter.Int64Counter(
		"ngoverify.applications.created.total",
		metric.WithDescription("Total number of applications registered"),
		metric.WithUnit("{application}"),
	)

	m.VersionConflictsTotal, _ = meter.Int64Counter(
		"ngoverify.store.version_conflicts.total",
		metric.WithDescription("Conditional writes rejected because the application changed"),
		metric.WithUnit("{conflict}"),
	)

	m.GateOutcomesTotal, _ = meter.Int64Counter(
		"ngoverify.gate.outcomes.total",
		metric.WithDescription("Auth gate classifications by outcome code"),
		metric.WithUnit("{login}"),
	)

	m.NotificationsSentTotal, _ = meter.Int64Counter(
		"ngoverify.notifications.sent.total",
		metric.WithDescription("Total number of notifications delivered"),
		metric.WithUnit("{notification}"),
	)

	m.NotificationsFailedTotal, _ = meter.Int64Counter(
		"ngoverify.notifications.failed.total",
		metric.WithDescription("Notifications abandoned after exhausting retries"),
		metric.WithUnit("{notification}"),
	)

	m.NotificationsDroppedTotal, _ = meter.Int64Counter(
		"ngoverify.notifications.dropped.total",
		metric.WithDescription("Notifications dropped because the queue was full"),
		metric.WithUnit("{notification}"),
	)

	m.NotificationDuration, _ = meter.Float64Histogram(
		"ngoverify.notifications.duration",
		metric.WithDescription("Duration of notification delivery including retries"),
		metric.WithUnit("ms"),
	)

	return m
}
