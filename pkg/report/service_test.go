// Copyright (C) 2025, VL Data Systems. All rights reserved.
// See the file LICENSE for licensing terms.

package report

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/adima959/vl-reporting/pkg/dimension"
	"github.com/adima959/vl-reporting/pkg/log"
	"github.com/adima959/vl-reporting/pkg/query"
	"github.com/adima959/vl-reporting/pkg/tree"
)

// fakeStore answers ad-spend and CRM statements with canned rows and
// records every statement it executes.
type fakeStore struct {
	spendRows []AggRow
	crmRows   []AggRow
	spendErr  error
	crmErr    error
	executed  []query.Statement
}

func (f *fakeStore) Aggregate(_ context.Context, stmt query.Statement) ([]AggRow, error) {
	f.executed = append(f.executed, stmt)
	if strings.Contains(stmt.SQL, "crm_orders") {
		return f.crmRows, f.crmErr
	}
	return f.spendRows, f.spendErr
}

func testRange() query.DateRange {
	return query.DateRange{
		Start: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC),
	}
}

func advertisingRequest() Request {
	return Request{
		Family:     dimension.FamilyAdvertising,
		Dimensions: []string{"network", "campaign", "adset"},
		Depth:      0,
		Range:      testRange(),
		Actor:      "analyst@example.com",
	}
}

func TestQueryMergesBothSources(t *testing.T) {
	require := require.New(t)

	st := &fakeStore{
		spendRows: []AggRow{
			{Attribute: "facebook", Metrics: map[string]float64{"cost": 100, "clicks": 10, "impressions": 1000}},
		},
		crmRows: []AggRow{
			{Attribute: "facebook", Metrics: map[string]float64{"subscriptions": 4, "approved": 2, "revenue": 300}},
		},
	}
	svc := NewService(st, log.NoOp(), nil)

	rows, err := svc.Query(context.Background(), advertisingRequest())
	require.NoError(err)
	require.Len(rows, 1)

	row := rows[0]
	require.Equal("facebook", row.Key)
	require.Equal(0, row.Depth)
	require.True(row.HasChildren)
	require.Equal(100.0, row.Metrics["cost"])
	require.Equal(4.0, row.Metrics["subscriptions"])
	require.Equal(25.0, row.Metrics["cpa"])

	// Two independent source statements, one per side.
	require.Len(st.executed, 2)

	// The CRM side always embeds the attribution eligibility rules.
	var crmSQL string
	for _, stmt := range st.executed {
		if strings.Contains(stmt.SQL, "crm_orders") {
			crmSQL = stmt.SQL
		}
	}
	require.Contains(crmSQL, "o.tracking_id")
	require.Contains(crmSQL, "o.sub_deleted = 0")
}

// Ad spend with no CRM match still produces a row with CRM metrics at zero.
func TestQueryKeepsUnmatchedSpendRows(t *testing.T) {
	require := require.New(t)

	st := &fakeStore{
		spendRows: []AggRow{
			{Attribute: "X", Metrics: map[string]float64{"cost": 100, "clicks": 10, "impressions": 500}},
		},
	}
	svc := NewService(st, log.NoOp(), nil)

	rows, err := svc.Query(context.Background(), advertisingRequest())
	require.NoError(err)
	require.Len(rows, 1)
	require.Equal(100.0, rows[0].Metrics["cost"])
	require.Equal(10.0, rows[0].Metrics["clicks"])
	require.Equal(0.0, rows[0].Metrics["subscriptions"])
	require.Equal(0.0, rows[0].Metrics["approvalRate"])
}

// A failure on either source fails the whole request; partial results are
// never merged.
func TestQueryFailsAsOneUnit(t *testing.T) {
	require := require.New(t)

	boom := errors.New("connection reset")
	st := &fakeStore{
		spendRows: []AggRow{{Attribute: "facebook", Metrics: map[string]float64{"cost": 1}}},
		crmErr:    boom,
	}
	svc := NewService(st, log.NoOp(), nil)

	rows, err := svc.Query(context.Background(), advertisingRequest())
	require.ErrorIs(err, boom)
	require.Nil(rows)
}

func TestQueryIdempotent(t *testing.T) {
	require := require.New(t)

	st := &fakeStore{
		spendRows: []AggRow{
			{Attribute: "facebook", Metrics: map[string]float64{"cost": 100, "clicks": 10, "impressions": 1000}},
			{Attribute: "google", Metrics: map[string]float64{"cost": 80, "clicks": 20, "impressions": 900}},
		},
		crmRows: []AggRow{
			{Attribute: "google", Metrics: map[string]float64{"subscriptions": 5, "approved": 4, "revenue": 250}},
		},
	}
	svc := NewService(st, log.NoOp(), nil)

	req := advertisingRequest()
	first, err := svc.Query(context.Background(), req)
	require.NoError(err)
	second, err := svc.Query(context.Background(), req)
	require.NoError(err)

	require.Equal(len(first), len(second))
	for i := range first {
		require.Equal(first[i].Key, second[i].Key)
		require.Equal(first[i].Metrics, second[i].Metrics)
	}
}

func TestQueryExpandsUnderParentKey(t *testing.T) {
	require := require.New(t)

	st := &fakeStore{
		spendRows: []AggRow{
			{Attribute: "spring", Metrics: map[string]float64{"cost": 40, "clicks": 4, "impressions": 100}},
		},
	}
	svc := NewService(st, log.NoOp(), nil)

	req := advertisingRequest()
	req.Depth = 1
	req.ParentKey = "facebook"

	rows, err := svc.Query(context.Background(), req)
	require.NoError(err)
	require.Len(rows, 1)

	row := rows[0]
	require.Equal("facebook::spring", row.Key)
	require.Equal(1, row.Depth)
	require.True(row.HasChildren)

	depth, _ := tree.DecodeKey(row.Key)
	require.Equal(row.Depth, depth)

	// The ancestor value is pinned via a bound parameter on both sides.
	for _, stmt := range st.executed {
		require.Contains(stmt.Args, "facebook")
		require.NotContains(stmt.SQL, "facebook")
	}
}

// limitStore truncates each side to the statement's own LIMIT argument,
// the way the backing database would.
type limitStore struct {
	spendRows []AggRow
	crmRows   []AggRow
}

func (s *limitStore) Aggregate(_ context.Context, stmt query.Statement) ([]AggRow, error) {
	rows := s.spendRows
	if strings.Contains(stmt.SQL, "crm_orders") {
		rows = s.crmRows
	}
	limit := stmt.Args[len(stmt.Args)-1].(int)
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

// The caller's limit bounds the merged result, not the source statements.
// A leads on spend, B leads on subscriptions: if each side were cut to its
// own top-1 before the join, A's CRM metrics would read as zero even though
// the CRM matched it.
func TestQueryLimitAppliedAfterMerge(t *testing.T) {
	require := require.New(t)

	st := &limitStore{
		spendRows: []AggRow{
			{Attribute: "A", Metrics: map[string]float64{"cost": 100, "clicks": 10, "impressions": 1000}},
			{Attribute: "B", Metrics: map[string]float64{"cost": 50, "clicks": 5, "impressions": 500}},
		},
		crmRows: []AggRow{
			{Attribute: "B", Metrics: map[string]float64{"subscriptions": 2, "approved": 2, "revenue": 90}},
			{Attribute: "A", Metrics: map[string]float64{"subscriptions": 1, "approved": 1, "revenue": 40}},
		},
	}
	svc := NewService(st, log.NoOp(), nil)

	req := advertisingRequest()
	req.Limit = 1

	rows, err := svc.Query(context.Background(), req)
	require.NoError(err)
	require.Len(rows, 1)
	require.Equal("A", rows[0].Attribute)
	require.Equal(1.0, rows[0].Metrics["subscriptions"])
	require.Equal(100.0, rows[0].Metrics["cpa"])
}

// An unknown sort metric is rejected up front for the two-source family
// exactly as the statement builder rejects it for single-source families.
func TestQueryRejectsUnknownSortMetric(t *testing.T) {
	require := require.New(t)

	st := &fakeStore{}
	svc := NewService(st, log.NoOp(), nil)

	req := advertisingRequest()
	req.SortBy = "bogus"
	_, err := svc.Query(context.Background(), req)
	require.ErrorIs(err, dimension.ErrUnknownMetric)
	require.Empty(st.executed, "no query execution on validation failure")
}

// Cross-source ratios only exist on merged rows but are valid sort keys.
func TestQuerySortsByCrossMetric(t *testing.T) {
	require := require.New(t)

	st := &fakeStore{
		spendRows: []AggRow{
			{Attribute: "A", Metrics: map[string]float64{"cost": 100, "clicks": 10, "impressions": 1000}},
			{Attribute: "B", Metrics: map[string]float64{"cost": 50, "clicks": 5, "impressions": 500}},
		},
		crmRows: []AggRow{
			{Attribute: "A", Metrics: map[string]float64{"subscriptions": 1, "approved": 1, "revenue": 40}},
			{Attribute: "B", Metrics: map[string]float64{"subscriptions": 2, "approved": 2, "revenue": 90}},
		},
	}
	svc := NewService(st, log.NoOp(), nil)

	req := advertisingRequest()
	req.SortBy = "cpa"
	req.SortDir = "asc"

	rows, err := svc.Query(context.Background(), req)
	require.NoError(err)
	require.Len(rows, 2)
	require.Equal("B", rows[0].Attribute) // cpa 25 before cpa 100
	require.Equal("A", rows[1].Attribute)
}

func TestQueryRejectsInconsistentParentKey(t *testing.T) {
	require := require.New(t)

	svc := NewService(&fakeStore{}, log.NoOp(), nil)

	req := advertisingRequest()
	req.Depth = 2
	req.ParentKey = "facebook" // decodes to depth 0, request wants depth 2

	_, err := svc.Query(context.Background(), req)
	require.ErrorIs(err, ErrReconciliationMismatch)
}

func TestQueryValidationShortCircuits(t *testing.T) {
	require := require.New(t)

	st := &fakeStore{}
	svc := NewService(st, log.NoOp(), nil)

	req := advertisingRequest()
	req.Depth = len(req.Dimensions)
	_, err := svc.Query(context.Background(), req)
	require.ErrorIs(err, query.ErrDepthOutOfRange)
	require.Empty(st.executed, "no query execution on validation failure")

	req = advertisingRequest()
	req.Dimensions = []string{"network", "moon_phase"}
	_, err = svc.Query(context.Background(), req)
	require.ErrorIs(err, dimension.ErrUnknownDimension)
	require.Empty(st.executed)

	req = advertisingRequest()
	req.Family = "finance"
	_, err = svc.Query(context.Background(), req)
	require.ErrorIs(err, dimension.ErrUnknownFamily)
}

func TestCRMFamilyEmbedsBaselineRules(t *testing.T) {
	require := require.New(t)

	st := &fakeStore{
		crmRows: []AggRow{
			{Attribute: "US", Metrics: map[string]float64{"subscriptions": 12, "approved": 9, "revenue": 700}},
		},
	}
	svc := NewService(st, log.NoOp(), nil)

	rows, err := svc.Query(context.Background(), Request{
		Family:     dimension.FamilyCRM,
		Dimensions: []string{"country", "product"},
		Depth:      0,
		Range:      testRange(),
	})
	require.NoError(err)
	require.Len(rows, 1)
	require.Equal(12.0, rows[0].Metrics["subscriptions"])

	require.Len(st.executed, 1)
	sql := st.executed[0].SQL
	require.Contains(sql, "o.sub_deleted = 0")
	require.Contains(sql, "o.invoice_deleted = 0")
	// Geography counts use baseline rules, not the stricter attribution set.
	require.NotContains(sql, "o.tracking_id")
}

func TestBehaviorFamilySingleSource(t *testing.T) {
	require := require.New(t)

	st := &fakeStore{
		spendRows: []AggRow{
			{Attribute: "/pricing", Metrics: map[string]float64{"pageviews": 900, "interactions": 90}},
		},
	}
	svc := NewService(st, log.NoOp(), nil)

	rows, err := svc.Query(context.Background(), Request{
		Family:     dimension.FamilyBehavior,
		Dimensions: []string{"page", "device"},
		Depth:      0,
		Range:      testRange(),
	})
	require.NoError(err)
	require.Len(rows, 1)
	require.Len(st.executed, 1)
	require.Contains(st.executed[0].SQL, "page_events e")
}
