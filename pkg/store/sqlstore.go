// Copyright (C) 2025, VL Data Systems. All rights reserved.
// See the file LICENSE for licensing terms.

// Package store executes the engine's parameterized statements against a
// SQL backing store through sqlx.
package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/adima959/vl-reporting/pkg/log"
	"github.com/adima959/vl-reporting/pkg/query"
	"github.com/adima959/vl-reporting/pkg/report"
)

// SQLStore runs aggregation statements on a sqlx connection pool.
type SQLStore struct {
	db  *sqlx.DB
	log log.Logger
}

// New creates a SQLStore over an open connection pool.
func New(db *sqlx.DB, logger log.Logger) *SQLStore {
	return &SQLStore{db: db, log: logger}
}

// Aggregate executes one statement and scans the grouped rows. Any driver
// failure is wrapped as a backing-store error; nothing is retried here.
func (s *SQLStore) Aggregate(ctx context.Context, stmt query.Statement) ([]report.AggRow, error) {
	rows, err := s.db.QueryxContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", report.ErrBackingStore, err)
	}
	defer rows.Close()

	var out []report.AggRow
	for rows.Next() {
		raw := map[string]interface{}{}
		if err := rows.MapScan(raw); err != nil {
			return nil, fmt.Errorf("%w: %v", report.ErrBackingStore, err)
		}
		agg := report.AggRow{Metrics: make(map[string]float64, len(raw))}
		for col, val := range raw {
			if col == "attribute" {
				agg.Attribute = asString(val)
				continue
			}
			f, err := asFloat(val)
			if err != nil {
				return nil, fmt.Errorf("%w: column %q: %v", report.ErrBackingStore, col, err)
			}
			agg.Metrics[col] = f
		}
		out = append(out, agg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", report.ErrBackingStore, err)
	}
	return out, nil
}

// asString normalizes a scanned dimension value. Dates collapse to ISO
// calendar days so they match the key encoding.
func asString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case time.Time:
		return t.Format("2006-01-02")
	default:
		return fmt.Sprint(t)
	}
}

// asFloat normalizes a scanned metric value. NULL aggregates read as zero;
// anything else that cannot be read as a number is a backing-store fault,
// never a silent zero.
func asFloat(v interface{}) (float64, error) {
	switch t := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case int:
		return float64(t), nil
	case []byte:
		return strconv.ParseFloat(string(t), 64)
	case string:
		return strconv.ParseFloat(t, 64)
	default:
		return 0, fmt.Errorf("unsupported metric value %T", v)
	}
}
