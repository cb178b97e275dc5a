// Copyright (C) 2025, VL Data Systems. All rights reserved.
// See the file LICENSE for licensing terms.

package dimension

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownFamily    = errors.New("unknown report family")
	ErrUnknownDimension = errors.New("unknown dimension")
	ErrUnknownMetric    = errors.New("unknown metric")
)

// Family identifies a report family. Each family has its own registry of
// dimensions and metrics over one physical source.
type Family string

const (
	FamilyAdvertising Family = "advertising"
	FamilyCRM         Family = "crm"
	FamilyBehavior    Family = "behavior"
	FamilySession     Family = "session"
)

// Dimension maps a logical grouping key to its physical column expression.
type Dimension struct {
	ID       string
	Column   string
	Group    string
	Temporal bool
}

// MetricKind distinguishes raw sums from ratios recomputed after grouping.
type MetricKind int

const (
	// Raw metrics are summed directly from source rows.
	Raw MetricKind = iota
	// Derived metrics are recomputed from aggregated raw components,
	// never summed across grouped rows.
	Derived
)

// Metric describes one reportable measure. Raw metrics carry the aggregate
// expression; derived metrics reference the raw metric IDs of their
// numerator and denominator, with an optional scale factor.
type Metric struct {
	ID          string
	Kind        MetricKind
	Expr        string
	Numerator   string
	Denominator string
	Scale       float64
}

// Registry holds the dimensions and metrics of one report family.
// Registries are built at process start and never mutated afterwards.
type Registry struct {
	family            Family
	table             string
	dateColumn        string
	defaultSortMetric string
	dimensions        map[string]Dimension
	metrics           map[string]Metric
	metricOrder       []string
}

// Family returns the report family this registry serves.
func (r *Registry) Family() Family { return r.family }

// Table returns the physical source (with alias) queries run against.
func (r *Registry) Table() string { return r.table }

// DateColumn returns the column date-range filters apply to.
func (r *Registry) DateColumn() string { return r.dateColumn }

// DefaultSortMetric returns the metric used when the caller specifies no sort.
func (r *Registry) DefaultSortMetric() string { return r.defaultSortMetric }

// ResolveColumn returns the physical column expression for a dimension ID.
// Unknown IDs are a hard validation failure, never silently ignored.
func (r *Registry) ResolveColumn(id string) (string, error) {
	d, ok := r.dimensions[id]
	if !ok {
		return "", fmt.Errorf("%w: %q in family %q", ErrUnknownDimension, id, r.family)
	}
	return d.Column, nil
}

// Dimension returns the full dimension definition for an ID.
func (r *Registry) Dimension(id string) (Dimension, error) {
	d, ok := r.dimensions[id]
	if !ok {
		return Dimension{}, fmt.Errorf("%w: %q in family %q", ErrUnknownDimension, id, r.family)
	}
	return d, nil
}

// Metric returns the metric definition for an ID.
func (r *Registry) Metric(id string) (Metric, error) {
	m, ok := r.metrics[id]
	if !ok {
		return Metric{}, fmt.Errorf("%w: %q in family %q", ErrUnknownMetric, id, r.family)
	}
	return m, nil
}

// Metrics returns every metric of the family in declaration order,
// raw metrics before the derived metrics that reference them.
func (r *Registry) Metrics() []Metric {
	out := make([]Metric, 0, len(r.metricOrder))
	for _, id := range r.metricOrder {
		out = append(out, r.metrics[id])
	}
	return out
}

// HasMetric reports whether a metric ID exists in this family.
func (r *Registry) HasMetric(id string) bool {
	_, ok := r.metrics[id]
	return ok
}

func newRegistry(family Family, table, dateColumn, defaultSort string, dims []Dimension, metrics []Metric) *Registry {
	r := &Registry{
		family:            family,
		table:             table,
		dateColumn:        dateColumn,
		defaultSortMetric: defaultSort,
		dimensions:        make(map[string]Dimension, len(dims)),
		metrics:           make(map[string]Metric, len(metrics)),
		metricOrder:       make([]string, 0, len(metrics)),
	}
	for _, d := range dims {
		r.dimensions[d.ID] = d
	}
	for _, m := range metrics {
		if m.Kind == Derived {
			if _, ok := r.metrics[m.Numerator]; !ok {
				panic(fmt.Sprintf("dimension: derived metric %q references unknown numerator %q", m.ID, m.Numerator))
			}
			if _, ok := r.metrics[m.Denominator]; !ok {
				panic(fmt.Sprintf("dimension: derived metric %q references unknown denominator %q", m.ID, m.Denominator))
			}
		}
		r.metrics[m.ID] = m
		r.metricOrder = append(r.metricOrder, m.ID)
	}
	return r
}

// ForFamily returns the registry for a report family.
func ForFamily(f Family) (*Registry, error) {
	r, ok := registries[f]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFamily, f)
	}
	return r, nil
}

// CRMRegistry returns the CRM registry. The advertising report merges its
// spend rows against CRM aggregates grouped by the same logical dimensions,
// so both sides of that join resolve dimension IDs through registries that
// share the tracking-oriented IDs.
func CRMRegistry() *Registry { return registries[FamilyCRM] }
