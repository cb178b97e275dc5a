// Copyright (C) 2025, VL Data Systems. All rights reserved.
// See the file LICENSE for licensing terms.

package metric

import (
	metrics "github.com/luxfi/metric"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all metrics for the reporting engine using luxfi/metric
type Metrics struct {
	metricsInstance metrics.Metrics

	// Report query metrics
	QueriesStarted metrics.Counter
	QueriesFailed  metrics.Counter
	RowsReturned   metrics.Histogram

	// Backing store metrics
	StoreErrors metrics.Counter

	// Saved view metrics
	ViewsResolved metrics.Counter
	ViewsSaved    metrics.Counter

	// Consistency metrics
	ReconciliationFailures metrics.Counter

	// Performance metrics
	QueryDuration metrics.Histogram
	MergeDuration metrics.Histogram
}

// NewMetrics creates a new metrics instance using luxfi/metric
func NewMetrics() (*Metrics, error) {
	factory := metrics.NewPrometheusFactory()
	metricsInstance := factory.New("reporting")

	m := &Metrics{
		metricsInstance: metricsInstance,
	}

	m.QueriesStarted = metricsInstance.NewCounter("queries_started_total", "Total report queries started")
	m.QueriesFailed = metricsInstance.NewCounter("queries_failed_total", "Total report queries that failed")
	m.RowsReturned = metricsInstance.NewHistogram(
		"rows_returned",
		"Report rows returned per query",
		prometheus.ExponentialBuckets(1, 4, 8),
	)

	m.StoreErrors = metricsInstance.NewCounter("store_errors_total", "Total backing store failures")

	m.ViewsResolved = metricsInstance.NewCounter("views_resolved_total", "Total saved views resolved")
	m.ViewsSaved = metricsInstance.NewCounter("views_saved_total", "Total saved views persisted")

	m.ReconciliationFailures = metricsInstance.NewCounter(
		"reconciliation_failures_total",
		"Total internal consistency check failures",
	)

	m.QueryDuration = metricsInstance.NewHistogram(
		"query_duration_seconds",
		"Time to execute one drill-down level query",
		prometheus.DefBuckets,
	)
	m.MergeDuration = metricsInstance.NewHistogram(
		"merge_duration_seconds",
		"Time to reconcile ad-spend and CRM aggregates",
		prometheus.DefBuckets,
	)

	return m, nil
}

// GetGatherer returns the prometheus gatherer for metrics export
func (m *Metrics) GetGatherer() prometheus.Gatherer {
	if registry := m.metricsInstance.Registry(); registry != nil {
		return registry
	}
	return prometheus.DefaultGatherer
}

// GetRegisterer returns the prometheus registerer
func (m *Metrics) GetRegisterer() prometheus.Registerer {
	if registry := m.metricsInstance.Registry(); registry != nil {
		return registry
	}
	return prometheus.DefaultRegisterer
}
