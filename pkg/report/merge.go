// Copyright (C) 2025, VL Data Systems. All rights reserved.
// See the file LICENSE for licensing terms.

package report

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/adima959/vl-reporting/pkg/dimension"
	"github.com/adima959/vl-reporting/pkg/query"
)

// crossMetric is a ratio that only exists after the two sources are joined.
type crossMetric struct {
	id          string
	numerator   string
	denominator string
}

// Cross-source ratios, computed from the merged raw sums. Recomputing after
// the join (instead of carrying per-side ratios) is what keeps the
// numerator/denominator pairing exact — the "never average an average" rule.
var crossMetrics = []crossMetric{
	{id: "cpa", numerator: "cost", denominator: "subscriptions"},
	{id: "roas", numerator: "revenue", denominator: "cost"},
	{id: "approvalRate", numerator: "approved", denominator: "subscriptions"},
}

// Merge joins ad-spend rows with CRM rows sharing the same dimension value.
// A value present on only one side still yields a row, with the other
// side's metrics zero-filled: rows are never dropped for partial data.
// Spend-side order is preserved; CRM-only rows follow in their own order.
func Merge(spendReg, crmReg *dimension.Registry, spend, crm []AggRow) []AggRow {
	crmByAttr := make(map[string]AggRow, len(crm))
	for _, r := range crm {
		crmByAttr[r.Attribute] = r
	}

	out := make([]AggRow, 0, len(spend)+len(crm))
	matched := make(map[string]bool, len(spend))

	for _, s := range spend {
		merged := AggRow{Attribute: s.Attribute, Metrics: make(map[string]float64)}
		for k, v := range s.Metrics {
			merged.Metrics[k] = v
		}
		if c, ok := crmByAttr[s.Attribute]; ok {
			for k, v := range c.Metrics {
				merged.Metrics[k] = v
			}
			matched[s.Attribute] = true
		}
		zeroFill(merged.Metrics, crmReg)
		applyCross(merged.Metrics)
		out = append(out, merged)
	}

	for _, c := range crm {
		if matched[c.Attribute] {
			continue
		}
		merged := AggRow{Attribute: c.Attribute, Metrics: make(map[string]float64)}
		for k, v := range c.Metrics {
			merged.Metrics[k] = v
		}
		zeroFill(merged.Metrics, spendReg)
		applyCross(merged.Metrics)
		out = append(out, merged)
	}

	return out
}

// isCrossMetric reports whether id is one of the ratios that only exist on
// merged rows.
func isCrossMetric(id string) bool {
	for _, c := range crossMetrics {
		if c.id == id {
			return true
		}
	}
	return false
}

func zeroFill(m map[string]float64, reg *dimension.Registry) {
	for _, metric := range reg.Metrics() {
		if _, ok := m[metric.ID]; !ok {
			m[metric.ID] = 0
		}
	}
}

// applyCross computes the cross-source ratios with decimal arithmetic.
// Zero denominators resolve to the zero sentinel, uniformly.
func applyCross(m map[string]float64) {
	for _, c := range crossMetrics {
		m[c.id] = ratio(m[c.numerator], m[c.denominator])
	}
}

// sortRows orders merged rows by the same rules the per-source statements
// use: a temporal drill-down level is always newest first; otherwise the
// requested sort metric, falling back to the family default, descending
// unless asked otherwise. ISO dates compare correctly as strings.
func sortRows(rows []AggRow, current dimension.Dimension, sortBy, sortDir, defaultSort string) {
	if current.Temporal {
		sort.SliceStable(rows, func(i, j int) bool {
			return rows[i].Attribute > rows[j].Attribute
		})
		return
	}

	if sortBy == "" {
		sortBy = defaultSort
	}
	asc := strings.EqualFold(sortDir, "asc")

	sort.SliceStable(rows, func(i, j int) bool {
		if sortBy == "attribute" {
			if asc {
				return rows[i].Attribute < rows[j].Attribute
			}
			return rows[i].Attribute > rows[j].Attribute
		}
		a, b := rows[i].Metrics[sortBy], rows[j].Metrics[sortBy]
		if asc {
			return a < b
		}
		return a > b
	})
}

// trimRows bounds the merged result the same way the per-source statements
// are bounded.
func trimRows(rows []AggRow, limit int) []AggRow {
	switch {
	case limit == 0:
		limit = query.DefaultLimit
	case limit < query.MinLimit:
		limit = query.MinLimit
	case limit > query.MaxLimit:
		limit = query.MaxLimit
	}
	if len(rows) <= limit {
		return rows
	}
	return rows[:limit]
}

func ratio(num, den float64) float64 {
	d := decimal.NewFromFloat(den)
	if d.IsZero() {
		return 0
	}
	f, _ := decimal.NewFromFloat(num).Div(d).Round(4).Float64()
	return f
}
