// Copyright (C) 2025, VL Data Systems. All rights reserved.
// See the file LICENSE for licensing terms.

package dimension

// Physical sources:
//
//	ad_stats s    one row per ad per day, imported from the ad networks
//	crm_orders o  flattened subscription/invoice join maintained by the CRM sync
//	page_events e on-page behavior events
//	sessions w    visitor sessions
//
// Dimension IDs shared between the advertising and CRM registries (network,
// campaign, adset, ad, date, country) let the reconciliation layer group both
// sources by the same logical key.
var registries = map[Family]*Registry{
	FamilyAdvertising: newRegistry(
		FamilyAdvertising,
		"ad_stats s",
		"s.stat_date",
		"cost",
		[]Dimension{
			{ID: "network", Column: "s.network", Group: "traffic"},
			{ID: "campaign", Column: "s.campaign_name", Group: "traffic"},
			{ID: "adset", Column: "s.adset_name", Group: "traffic"},
			{ID: "ad", Column: "s.ad_name", Group: "traffic"},
			{ID: "date", Column: "s.stat_date", Group: "time", Temporal: true},
			{ID: "country", Column: "s.country_code", Group: "geo"},
		},
		[]Metric{
			{ID: "cost", Kind: Raw, Expr: "SUM(s.cost)"},
			{ID: "clicks", Kind: Raw, Expr: "SUM(s.clicks)"},
			{ID: "impressions", Kind: Raw, Expr: "SUM(s.impressions)"},
			{ID: "ctr", Kind: Derived, Numerator: "clicks", Denominator: "impressions"},
			{ID: "cpc", Kind: Derived, Numerator: "cost", Denominator: "clicks"},
			{ID: "cpm", Kind: Derived, Numerator: "cost", Denominator: "impressions", Scale: 1000},
		},
	),
	FamilyCRM: newRegistry(
		FamilyCRM,
		"crm_orders o",
		"o.order_date",
		"subscriptions",
		[]Dimension{
			{ID: "country", Column: "o.country_code", Group: "geo"},
			{ID: "product", Column: "o.product_name", Group: "catalog"},
			{ID: "date", Column: "o.order_date", Group: "time", Temporal: true},
			{ID: "source", Column: "o.traffic_source", Group: "traffic"},
			{ID: "network", Column: "o.utm_network", Group: "traffic"},
			{ID: "campaign", Column: "o.utm_campaign", Group: "traffic"},
			{ID: "adset", Column: "o.utm_adset", Group: "traffic"},
			{ID: "ad", Column: "o.utm_ad", Group: "traffic"},
		},
		[]Metric{
			{ID: "subscriptions", Kind: Raw, Expr: "COUNT(*)"},
			{ID: "approved", Kind: Raw, Expr: "SUM(o.approved)"},
			{ID: "revenue", Kind: Raw, Expr: "SUM(o.revenue)"},
			{ID: "approvalRate", Kind: Derived, Numerator: "approved", Denominator: "subscriptions"},
		},
	),
	FamilyBehavior: newRegistry(
		FamilyBehavior,
		"page_events e",
		"e.event_date",
		"pageviews",
		[]Dimension{
			{ID: "page", Column: "e.page_path", Group: "content"},
			{ID: "device", Column: "e.device_type", Group: "tech"},
			{ID: "country", Column: "e.country_code", Group: "geo"},
			{ID: "date", Column: "e.event_date", Group: "time", Temporal: true},
		},
		[]Metric{
			{ID: "pageviews", Kind: Raw, Expr: "COUNT(*)"},
			{ID: "interactions", Kind: Raw, Expr: "SUM(e.interactions)"},
			{ID: "interactionRate", Kind: Derived, Numerator: "interactions", Denominator: "pageviews"},
		},
	),
	FamilySession: newRegistry(
		FamilySession,
		"sessions w",
		"w.session_date",
		"sessions",
		[]Dimension{
			{ID: "source", Column: "w.traffic_source", Group: "traffic"},
			{ID: "device", Column: "w.device_type", Group: "tech"},
			{ID: "country", Column: "w.country_code", Group: "geo"},
			{ID: "date", Column: "w.session_date", Group: "time", Temporal: true},
		},
		[]Metric{
			{ID: "sessions", Kind: Raw, Expr: "COUNT(*)"},
			{ID: "bounces", Kind: Raw, Expr: "SUM(w.bounced)"},
			{ID: "durationSec", Kind: Raw, Expr: "SUM(w.duration_sec)"},
			{ID: "bounceRate", Kind: Derived, Numerator: "bounces", Denominator: "sessions"},
			{ID: "avgDuration", Kind: Derived, Numerator: "durationSec", Denominator: "sessions"},
		},
	),
}
