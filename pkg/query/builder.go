// Copyright (C) 2025, VL Data Systems. All rights reserved.
// See the file LICENSE for licensing terms.

// Package query turns a drill-down request into one parameterized
// aggregation statement. Identifiers come from the dimension registry's
// closed allow-list; every caller value crosses as a bound parameter in
// placeholder order. The statement text never contains caller data.
package query

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/adima959/vl-reporting/pkg/dimension"
)

var (
	ErrDepthOutOfRange  = errors.New("depth out of range")
	ErrInvalidDateRange = errors.New("invalid date range")
)

// Result size is bounded regardless of caller input.
const (
	MinLimit     = 1
	MaxLimit     = 10000
	DefaultLimit = 1000
)

// DateRange is an inclusive pair of calendar dates in UTC.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Validate checks the range is usable: both ends set, end not before start.
func (d DateRange) Validate() error {
	if d.Start.IsZero() || d.End.IsZero() {
		return fmt.Errorf("%w: start and end are required", ErrInvalidDateRange)
	}
	if d.End.Before(d.Start) {
		return fmt.Errorf("%w: end %s before start %s",
			ErrInvalidDateRange, d.End.Format("2006-01-02"), d.Start.Format("2006-01-02"))
	}
	return nil
}

// Options describes one drill-down level query.
type Options struct {
	Registry      *dimension.Registry
	Range         DateRange
	Dimensions    []string
	Depth         int
	ParentFilters map[string]string
	SortBy        string
	SortDirection string
	Limit         int

	// Eligibility is an optional constant WHERE fragment (no caller data,
	// no placeholders) spliced in as-is. The CRM paths pass the canonical
	// fragments from pkg/eligibility here.
	Eligibility string
}

// Statement is a SQL statement plus its bound parameters, in placeholder order.
type Statement struct {
	SQL  string
	Args []interface{}
}

// Placeholders counts the bound-parameter markers in the statement text.
func (s Statement) Placeholders() int {
	return strings.Count(s.SQL, "?")
}

// Build produces the aggregation statement for one drill-down depth: group
// by the physical column of Dimensions[Depth], filter by date range and
// parent equality conditions, sum raw metrics and recompute derived metrics
// from the summed components in the same statement.
func Build(opts Options) (Statement, error) {
	if err := opts.Range.Validate(); err != nil {
		return Statement{}, err
	}
	if opts.Depth < 0 || opts.Depth >= len(opts.Dimensions) {
		return Statement{}, fmt.Errorf("%w: depth %d with %d dimensions",
			ErrDepthOutOfRange, opts.Depth, len(opts.Dimensions))
	}

	reg := opts.Registry
	for _, id := range opts.Dimensions {
		if _, err := reg.ResolveColumn(id); err != nil {
			return Statement{}, err
		}
	}

	current, err := reg.Dimension(opts.Dimensions[opts.Depth])
	if err != nil {
		return Statement{}, err
	}

	var (
		sb   strings.Builder
		args []interface{}
	)

	sb.WriteString("SELECT ")
	sb.WriteString(current.Column)
	sb.WriteString(" AS attribute")
	for _, m := range reg.Metrics() {
		sb.WriteString(", ")
		sb.WriteString(metricSelect(reg, m))
		sb.WriteString(" AS ")
		sb.WriteString(m.ID)
	}

	sb.WriteString(" FROM ")
	sb.WriteString(reg.Table())

	sb.WriteString(" WHERE ")
	sb.WriteString(reg.DateColumn())
	sb.WriteString(" BETWEEN ? AND ?")
	args = append(args, opts.Range.Start.Format("2006-01-02"), opts.Range.End.Format("2006-01-02"))

	filterIDs, err := orderedFilterIDs(reg, opts)
	if err != nil {
		return Statement{}, err
	}
	for _, id := range filterIDs {
		col, _ := reg.ResolveColumn(id)
		sb.WriteString(" AND ")
		sb.WriteString(col)
		sb.WriteString(" = ?")
		args = append(args, opts.ParentFilters[id])
	}

	if opts.Eligibility != "" {
		sb.WriteString(" AND (")
		sb.WriteString(opts.Eligibility)
		sb.WriteString(")")
	}

	sb.WriteString(" GROUP BY attribute")

	sb.WriteString(" ORDER BY ")
	sortCol, sortDir, err := resolveSort(reg, current, opts)
	if err != nil {
		return Statement{}, err
	}
	sb.WriteString(sortCol)
	sb.WriteString(" ")
	sb.WriteString(sortDir)

	sb.WriteString(" LIMIT ?")
	args = append(args, clampLimit(opts.Limit))

	return Statement{SQL: sb.String(), Args: args}, nil
}

// metricSelect renders one metric expression. Derived metrics are computed
// from the aggregated raw components in-statement, with zero denominators
// resolving to the zero sentinel instead of a division error.
func metricSelect(reg *dimension.Registry, m dimension.Metric) string {
	if m.Kind == dimension.Raw {
		return m.Expr
	}
	num, _ := reg.Metric(m.Numerator)
	den, _ := reg.Metric(m.Denominator)
	expr := num.Expr
	if m.Scale != 0 && m.Scale != 1 {
		expr = expr + " * " + strconv.FormatFloat(m.Scale, 'f', -1, 64)
	}
	return fmt.Sprintf("CASE WHEN %s = 0 THEN 0 ELSE %s / %s END", den.Expr, expr, den.Expr)
}

// orderedFilterIDs validates every parent-filter key against the registry
// and fixes a deterministic order: ancestors in drill-down path order first,
// then any remaining filters sorted by ID. Parameter order must match
// placeholder order exactly.
func orderedFilterIDs(reg *dimension.Registry, opts Options) ([]string, error) {
	if len(opts.ParentFilters) == 0 {
		return nil, nil
	}
	for id := range opts.ParentFilters {
		if _, err := reg.ResolveColumn(id); err != nil {
			return nil, err
		}
	}

	seen := make(map[string]bool, len(opts.ParentFilters))
	ordered := make([]string, 0, len(opts.ParentFilters))
	for _, id := range opts.Dimensions[:opts.Depth] {
		if _, ok := opts.ParentFilters[id]; ok && !seen[id] {
			ordered = append(ordered, id)
			seen[id] = true
		}
	}
	rest := make([]string, 0, len(opts.ParentFilters))
	for id := range opts.ParentFilters {
		if !seen[id] {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	return append(ordered, rest...), nil
}

// resolveSort picks the ORDER BY column and direction. A temporal current
// dimension forces newest-first regardless of the requested sort; that is a
// deliberate UX override. Otherwise the caller's sort is honored, falling
// back to the family's default metric descending.
func resolveSort(reg *dimension.Registry, current dimension.Dimension, opts Options) (string, string, error) {
	if current.Temporal {
		return "attribute", "DESC", nil
	}

	sortBy := opts.SortBy
	if sortBy == "" {
		sortBy = reg.DefaultSortMetric()
	}
	if sortBy != "attribute" && !reg.HasMetric(sortBy) {
		return "", "", fmt.Errorf("%w: sort metric %q", dimension.ErrUnknownMetric, sortBy)
	}

	dir := "DESC"
	if strings.EqualFold(opts.SortDirection, "asc") {
		dir = "ASC"
	}
	return sortBy, dir, nil
}

func clampLimit(limit int) int {
	if limit == 0 {
		return DefaultLimit
	}
	if limit < MinLimit {
		return MinLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}
