// Copyright (C) 2025, VL Data Systems. All rights reserved.
// See the file LICENSE for licensing terms.

// Package views resolves relative date presets and saved report views into
// concrete query parameters. Presets resolve at use time, never at save
// time: a saved "last 7 days" re-resolved a week later yields a different
// absolute range.
package views

import (
	"errors"
	"fmt"
	"time"

	"github.com/adima959/vl-reporting/pkg/query"
)

var ErrUnknownPreset = errors.New("unknown date preset")

// Preset is one of a closed enum of relative date ranges.
type Preset string

const (
	PresetToday      Preset = "today"
	PresetYesterday  Preset = "yesterday"
	PresetLast7Days  Preset = "last7days"
	PresetLast14Days Preset = "last14days"
	PresetLast30Days Preset = "last30days"
	PresetThisWeek   Preset = "thisWeek"
	PresetLastWeek   Preset = "lastWeek"
	PresetThisMonth  Preset = "thisMonth"
	PresetLastMonth  Preset = "lastMonth"
)

// presetOrder fixes the precedence DetectPreset uses when two presets
// resolve to the same range on a given day.
var presetOrder = []Preset{
	PresetToday,
	PresetYesterday,
	PresetLast7Days,
	PresetLast14Days,
	PresetLast30Days,
	PresetThisWeek,
	PresetLastWeek,
	PresetThisMonth,
	PresetLastMonth,
}

// ResolvePreset converts a preset into an inclusive date range relative to
// now. "Today" is midnight of now in UTC, the engine's canonical timezone.
// Weeks start on Monday; lastMonth's end is computed as day 0 of the current
// month so it lands on the prior month's last day regardless of length.
func ResolvePreset(p Preset, now time.Time) (query.DateRange, error) {
	today := midnight(now)

	switch p {
	case PresetToday:
		return query.DateRange{Start: today, End: today}, nil
	case PresetYesterday:
		d := today.AddDate(0, 0, -1)
		return query.DateRange{Start: d, End: d}, nil
	case PresetLast7Days:
		return query.DateRange{Start: today.AddDate(0, 0, -6), End: today}, nil
	case PresetLast14Days:
		return query.DateRange{Start: today.AddDate(0, 0, -13), End: today}, nil
	case PresetLast30Days:
		return query.DateRange{Start: today.AddDate(0, 0, -29), End: today}, nil
	case PresetThisWeek:
		return query.DateRange{Start: mondayOf(today), End: today}, nil
	case PresetLastWeek:
		monday := mondayOf(today)
		return query.DateRange{Start: monday.AddDate(0, 0, -7), End: monday.AddDate(0, 0, -1)}, nil
	case PresetThisMonth:
		start := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
		return query.DateRange{Start: start, End: today}, nil
	case PresetLastMonth:
		start := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0)
		end := time.Date(today.Year(), today.Month(), 0, 0, 0, 0, 0, time.UTC)
		return query.DateRange{Start: start, End: end}, nil
	}
	return query.DateRange{}, fmt.Errorf("%w: %q", ErrUnknownPreset, p)
}

// DetectPreset is the structural inverse of ResolvePreset: it returns the
// preset that resolves to exactly {start, end} relative to now, or "" when
// the range matches none. The save UI uses it to round-trip relative views.
func DetectPreset(start, end, now time.Time) Preset {
	start, end = midnight(start), midnight(end)
	for _, p := range presetOrder {
		r, err := ResolvePreset(p, now)
		if err != nil {
			continue
		}
		if r.Start.Equal(start) && r.End.Equal(end) {
			return p
		}
	}
	return ""
}

func midnight(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// mondayOf returns the Monday of the week containing day. Plain calendar
// arithmetic, no ISO week numbering: the Monday before a January 1st falls
// in the prior year and that is fine.
func mondayOf(day time.Time) time.Time {
	offset := (int(day.Weekday()) + 6) % 7 // Monday=0 .. Sunday=6
	return day.AddDate(0, 0, -offset)
}
