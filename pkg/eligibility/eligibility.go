// Copyright (C) 2025, VL Data Systems. All rights reserved.
// See the file LICENSE for licensing terms.

// Package eligibility holds the canonical definition of which CRM records
// count toward a metric. Every aggregation path that counts orders goes
// through this package: the pure predicates for row-level code, and the SQL
// fragments — generated from the same rule table — for aggregate queries.
// There is deliberately no second copy of these rules anywhere in the tree.
package eligibility

import "strings"

// UpsellTagPrefix marks an invoice as the child of another subscription.
// Upsell-linked orders are never counted against the parent.
const UpsellTagPrefix = "parent-sub-id="

// Row is the flattened subscription/invoice join row the predicates operate
// on. A zero value field reads as "absent" and absent required data makes a
// row ineligible; eligibility is conservative, never fatal.
type Row struct {
	SubscriptionDeleted bool   `db:"sub_deleted"`
	InvoiceDeleted      bool   `db:"invoice_deleted"`
	InvoiceID           int64  `db:"invoice_id"`
	InvoiceTag          string `db:"invoice_tag"`
	TrackingID          string `db:"tracking_id"`
	Source              string `db:"traffic_source"`
}

type rule struct {
	name  string
	sql   string
	check func(Row) bool
}

// Ordered: the first failing rule excludes the row. The sql column assumes
// the crm_orders alias "o" used by the CRM registry.
var baselineRules = []rule{
	{
		name:  "subscription not deleted",
		sql:   "o.sub_deleted = 0",
		check: func(r Row) bool { return !r.SubscriptionDeleted },
	},
	{
		name:  "invoice not deleted",
		sql:   "o.invoice_deleted = 0",
		check: func(r Row) bool { return !r.InvoiceDeleted },
	},
	{
		name:  "invoice exists",
		sql:   "o.invoice_id IS NOT NULL AND o.invoice_id > 0",
		check: func(r Row) bool { return r.InvoiceID > 0 },
	},
	{
		name:  "not an upsell child",
		sql:   "(o.invoice_tag IS NULL OR o.invoice_tag NOT LIKE 'parent-sub-id=%')",
		check: func(r Row) bool { return !strings.HasPrefix(r.InvoiceTag, UpsellTagPrefix) },
	},
}

// Attribution additionally requires the fields needed to join an order back
// to ad spend. By construction its true set is a subset of Baseline's.
var attributionRules = []rule{
	{
		name:  "has tracking id",
		sql:   "o.tracking_id IS NOT NULL AND o.tracking_id <> ''",
		check: func(r Row) bool { return r.TrackingID != "" },
	},
	{
		name:  "has traffic source",
		sql:   "o.traffic_source IS NOT NULL AND o.traffic_source <> ''",
		check: func(r Row) bool { return r.Source != "" },
	},
}

// Baseline reports whether a row counts as a real, non-duplicate order.
func Baseline(r Row) bool {
	for _, ru := range baselineRules {
		if !ru.check(r) {
			return false
		}
	}
	return true
}

// Attribution reports whether a row counts toward marketing attribution:
// baseline plus the fields required to match against ad spend.
func Attribution(r Row) bool {
	if !Baseline(r) {
		return false
	}
	for _, ru := range attributionRules {
		if !ru.check(r) {
			return false
		}
	}
	return true
}

// BaselineSQL returns the canonical WHERE fragment for baseline eligibility.
// The fragment contains only fixed column references and constants, never
// caller data, so it is safe to splice into a statement.
func BaselineSQL() string {
	return joinSQL(baselineRules)
}

// AttributionSQL returns the WHERE fragment for attribution eligibility.
func AttributionSQL() string {
	return BaselineSQL() + " AND " + joinSQL(attributionRules)
}

func joinSQL(rules []rule) string {
	parts := make([]string, len(rules))
	for i, ru := range rules {
		parts[i] = ru.sql
	}
	return strings.Join(parts, " AND ")
}
