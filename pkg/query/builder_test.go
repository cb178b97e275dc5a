// Copyright (C) 2025, VL Data Systems. All rights reserved.
// See the file LICENSE for licensing terms.

package query

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/adima959/vl-reporting/pkg/dimension"
)

func adsRegistry(t *testing.T) *dimension.Registry {
	t.Helper()
	reg, err := dimension.ForFamily(dimension.FamilyAdvertising)
	require.NoError(t, err)
	return reg
}

func validRange() DateRange {
	return DateRange{
		Start: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC),
	}
}

func TestBuildBasicStatement(t *testing.T) {
	require := require.New(t)

	stmt, err := Build(Options{
		Registry:   adsRegistry(t),
		Range:      validRange(),
		Dimensions: []string{"network", "campaign"},
		Depth:      0,
	})
	require.NoError(err)

	require.Contains(stmt.SQL, "s.network AS attribute")
	require.Contains(stmt.SQL, "FROM ad_stats s")
	require.Contains(stmt.SQL, "s.stat_date BETWEEN ? AND ?")
	require.Contains(stmt.SQL, "GROUP BY attribute")
	require.Contains(stmt.SQL, "ORDER BY cost DESC")
	require.Contains(stmt.SQL, "LIMIT ?")

	// Derived metrics are recomputed from summed raw components in the
	// same statement, with the zero sentinel on a zero denominator.
	require.Contains(stmt.SQL, "CASE WHEN SUM(s.clicks) = 0 THEN 0 ELSE SUM(s.cost) / SUM(s.clicks) END AS cpc")
	require.Contains(stmt.SQL, "CASE WHEN SUM(s.impressions) = 0 THEN 0 ELSE SUM(s.cost) * 1000 / SUM(s.impressions) END AS cpm")
}

// The primary injection-safety invariant, asserted structurally.
func TestPlaceholdersMatchParameters(t *testing.T) {
	require := require.New(t)

	cases := []Options{
		{
			Registry:   adsRegistry(t),
			Range:      validRange(),
			Dimensions: []string{"network", "campaign", "adset"},
			Depth:      0,
		},
		{
			Registry:      adsRegistry(t),
			Range:         validRange(),
			Dimensions:    []string{"network", "campaign", "adset"},
			Depth:         2,
			ParentFilters: map[string]string{"network": "facebook", "campaign": "spring'); DROP TABLE ad_stats;--"},
			SortBy:        "clicks",
			SortDirection: "asc",
			Limit:         50,
		},
		{
			Registry:      adsRegistry(t),
			Range:         validRange(),
			Dimensions:    []string{"country", "date"},
			Depth:         1,
			ParentFilters: map[string]string{"country": "JP"},
		},
	}

	for i, opts := range cases {
		stmt, err := Build(opts)
		require.NoError(err, "case %d", i)
		require.Equal(stmt.Placeholders(), len(stmt.Args), "case %d", i)

		// No parameter value may appear as a literal in the statement.
		for _, arg := range stmt.Args {
			s := fmt.Sprint(arg)
			if _, isInt := arg.(int); isInt {
				continue // the clamped limit is a number, not caller text
			}
			require.NotContains(stmt.SQL, s, "case %d", i)
		}
	}
}

func TestParameterOrderMatchesPlaceholderOrder(t *testing.T) {
	require := require.New(t)

	stmt, err := Build(Options{
		Registry:      adsRegistry(t),
		Range:         validRange(),
		Dimensions:    []string{"network", "campaign", "adset"},
		Depth:         2,
		ParentFilters: map[string]string{"campaign": "spring", "network": "facebook"},
		Limit:         25,
	})
	require.NoError(err)

	// date start, date end, then ancestors in drill-down path order, then limit
	require.Equal([]interface{}{"2026-02-01", "2026-02-10", "facebook", "spring", 25}, stmt.Args)

	netIdx := strings.Index(stmt.SQL, "s.network = ?")
	campIdx := strings.Index(stmt.SQL, "s.campaign_name = ?")
	require.Greater(netIdx, 0)
	require.Greater(campIdx, netIdx)
}

func TestDepthOutOfRange(t *testing.T) {
	require := require.New(t)

	dims := []string{"network", "campaign"}
	_, err := Build(Options{
		Registry:   adsRegistry(t),
		Range:      validRange(),
		Dimensions: dims,
		Depth:      len(dims),
	})
	require.ErrorIs(err, ErrDepthOutOfRange)

	_, err = Build(Options{
		Registry:   adsRegistry(t),
		Range:      validRange(),
		Dimensions: dims,
		Depth:      -1,
	})
	require.ErrorIs(err, ErrDepthOutOfRange)
}

func TestUnknownDimensionRejected(t *testing.T) {
	require := require.New(t)

	_, err := Build(Options{
		Registry:   adsRegistry(t),
		Range:      validRange(),
		Dimensions: []string{"network", "moon_phase"},
		Depth:      0,
	})
	require.ErrorIs(err, dimension.ErrUnknownDimension)

	_, err = Build(Options{
		Registry:      adsRegistry(t),
		Range:         validRange(),
		Dimensions:    []string{"network"},
		Depth:         0,
		ParentFilters: map[string]string{"moon_phase": "full"},
	})
	require.ErrorIs(err, dimension.ErrUnknownDimension)
}

func TestInvalidDateRange(t *testing.T) {
	require := require.New(t)

	r := validRange()
	r.Start, r.End = r.End, r.Start
	_, err := Build(Options{
		Registry:   adsRegistry(t),
		Range:      r,
		Dimensions: []string{"network"},
		Depth:      0,
	})
	require.ErrorIs(err, ErrInvalidDateRange)

	_, err = Build(Options{
		Registry:   adsRegistry(t),
		Dimensions: []string{"network"},
		Depth:      0,
	})
	require.ErrorIs(err, ErrInvalidDateRange)
}

func TestLimitClamped(t *testing.T) {
	require := require.New(t)

	for _, tc := range []struct {
		in, want int
	}{
		{0, DefaultLimit},
		{-5, MinLimit},
		{7, 7},
		{999999, MaxLimit},
	} {
		stmt, err := Build(Options{
			Registry:   adsRegistry(t),
			Range:      validRange(),
			Dimensions: []string{"network"},
			Depth:      0,
			Limit:      tc.in,
		})
		require.NoError(err)
		require.Equal(tc.want, stmt.Args[len(stmt.Args)-1], "limit %d", tc.in)
	}
}

func TestTemporalDimensionForcesNewestFirst(t *testing.T) {
	require := require.New(t)

	stmt, err := Build(Options{
		Registry:      adsRegistry(t),
		Range:         validRange(),
		Dimensions:    []string{"campaign", "date"},
		Depth:         1,
		ParentFilters: map[string]string{"campaign": "spring"},
		SortBy:        "cost",
		SortDirection: "asc",
	})
	require.NoError(err)
	require.Contains(stmt.SQL, "ORDER BY attribute DESC")
	require.NotContains(stmt.SQL, "ORDER BY cost")
}

func TestCallerSortHonored(t *testing.T) {
	require := require.New(t)

	stmt, err := Build(Options{
		Registry:      adsRegistry(t),
		Range:         validRange(),
		Dimensions:    []string{"campaign"},
		Depth:         0,
		SortBy:        "clicks",
		SortDirection: "asc",
	})
	require.NoError(err)
	require.Contains(stmt.SQL, "ORDER BY clicks ASC")

	_, err = Build(Options{
		Registry:   adsRegistry(t),
		Range:      validRange(),
		Dimensions: []string{"campaign"},
		Depth:      0,
		SortBy:     "bogus",
	})
	require.ErrorIs(err, dimension.ErrUnknownMetric)
}

func TestEligibilityFragmentSpliced(t *testing.T) {
	require := require.New(t)

	crm, err := dimension.ForFamily(dimension.FamilyCRM)
	require.NoError(err)

	stmt, err := Build(Options{
		Registry:    crm,
		Range:       validRange(),
		Dimensions:  []string{"country"},
		Depth:       0,
		Eligibility: "o.sub_deleted = 0 AND o.invoice_id > 0",
	})
	require.NoError(err)
	require.Contains(stmt.SQL, "AND (o.sub_deleted = 0 AND o.invoice_id > 0)")
	require.Equal(stmt.Placeholders(), len(stmt.Args))
}
