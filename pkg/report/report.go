// Copyright (C) 2025, VL Data Systems. All rights reserved.
// See the file LICENSE for licensing terms.

// Package report is the hierarchical dimensional reporting engine. It turns
// a drill-down request into parameterized aggregation statements, executes
// them against the backing store, reconciles ad-spend and CRM aggregates
// into one row per dimension value and returns the child rows of the
// expanded node.
package report

import (
	"errors"
)

var (
	// ErrBackingStore wraps any failure from the underlying query
	// execution. Surfaced as a server failure, never retried here.
	ErrBackingStore = errors.New("backing store failure")

	// ErrReconciliationMismatch marks an internal consistency check
	// failure. Programming-error class: fatal to the request, logged
	// loudly, never silently swallowed.
	ErrReconciliationMismatch = errors.New("reconciliation mismatch")
)

// AggRow is one aggregated row from a single source: the grouped dimension
// value plus its metric sums.
type AggRow struct {
	Attribute string
	Metrics   map[string]float64
}
