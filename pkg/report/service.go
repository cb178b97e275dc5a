// Copyright (C) 2025, VL Data Systems. All rights reserved.
// See the file LICENSE for licensing terms.

package report

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/adima959/vl-reporting/pkg/dimension"
	"github.com/adima959/vl-reporting/pkg/eligibility"
	"github.com/adima959/vl-reporting/pkg/log"
	"github.com/adima959/vl-reporting/pkg/metric"
	"github.com/adima959/vl-reporting/pkg/query"
	"github.com/adima959/vl-reporting/pkg/tree"
	"github.com/adima959/vl-reporting/pkg/views"
)

// Store executes one parameterized aggregation statement. Implementations
// must honor context cancellation; the engine never retries.
type Store interface {
	Aggregate(ctx context.Context, stmt query.Statement) ([]AggRow, error)
}

// Request describes one expand-one-level-of-the-tree interaction.
type Request struct {
	Family     dimension.Family
	Dimensions []string
	Depth      int
	Range      query.DateRange

	// ParentKey identifies the expanded row; its decoded values become the
	// equality filters pinning the ancestor dimensions. Extra filters (for
	// example from a saved view) may be supplied alongside.
	ParentKey string
	Filters   map[string]string

	SortBy  string
	SortDir string
	Limit   int

	// Actor is the authenticated caller identity, recorded for audit only.
	Actor string
}

// Service is the reporting engine entry point. It is stateless per request;
// the only shared state is the read-only dimension registry.
type Service struct {
	store   Store
	log     log.Logger
	metrics *metric.Metrics
}

// NewService creates a reporting service over a backing store.
func NewService(store Store, logger log.Logger, m *metric.Metrics) *Service {
	return &Service{store: store, log: logger, metrics: m}
}

// Query runs one drill-down level and returns the child rows of the
// expanded node, reconciled across sources where the family requires it.
func (s *Service) Query(ctx context.Context, req Request) ([]*tree.Row, error) {
	reqID := uuid.NewString()
	start := time.Now()
	if s.metrics != nil {
		s.metrics.QueriesStarted.Inc()
	}

	rows, err := s.query(ctx, req)
	if err != nil {
		if s.metrics != nil {
			s.metrics.QueriesFailed.Inc()
		}
		s.log.Error("report query failed",
			log.String("request", reqID),
			log.String("family", string(req.Family)),
			log.String("actor", req.Actor),
			log.Err(err))
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.QueryDuration.Observe(time.Since(start).Seconds())
		s.metrics.RowsReturned.Observe(float64(len(rows)))
	}
	s.log.Info("report query served",
		log.String("request", reqID),
		log.String("family", string(req.Family)),
		log.String("actor", req.Actor),
		log.Int("rows", len(rows)))
	return rows, nil
}

func (s *Service) query(ctx context.Context, req Request) ([]*tree.Row, error) {
	reg, err := dimension.ForFamily(req.Family)
	if err != nil {
		return nil, err
	}

	filters, err := s.combineFilters(req)
	if err != nil {
		return nil, err
	}

	opts := query.Options{
		Registry:      reg,
		Range:         req.Range,
		Dimensions:    req.Dimensions,
		Depth:         req.Depth,
		ParentFilters: filters,
		SortBy:        req.SortBy,
		SortDirection: req.SortDir,
		Limit:         req.Limit,
	}

	var merged []AggRow
	switch req.Family {
	case dimension.FamilyAdvertising:
		merged, err = s.queryAdvertising(ctx, opts)
	case dimension.FamilyCRM:
		opts.Eligibility = eligibility.BaselineSQL()
		merged, err = s.querySingle(ctx, opts)
	default:
		merged, err = s.querySingle(ctx, opts)
	}
	if err != nil {
		return nil, err
	}

	return s.assemble(req, merged)
}

// queryAdvertising merges ad spend with attribution-eligible CRM orders
// grouped by the same logical dimensions. The two source queries are
// independent and run concurrently; reconciliation waits for both and a
// failure of either fails the whole request — partial results are never
// merged.
func (s *Service) queryAdvertising(ctx context.Context, opts query.Options) ([]AggRow, error) {
	crmReg := dimension.CRMRegistry()

	// The requested sort applies to the merged result; it must name a metric
	// either side or the cross-source ratios can produce.
	requestedSort, requestedDir := opts.SortBy, opts.SortDirection
	if requestedSort != "" && requestedSort != "attribute" &&
		!opts.Registry.HasMetric(requestedSort) && !crmReg.HasMetric(requestedSort) &&
		!isCrossMetric(requestedSort) {
		return nil, fmt.Errorf("%w: sort metric %q", dimension.ErrUnknownMetric, requestedSort)
	}

	// Each side fetches with the maximum bound; the caller's limit applies
	// only to the merged result. Truncating a source to its own top-N before
	// the join would zero the other side's metrics for rows it actually
	// matched.
	spendOpts := opts
	spendOpts.Limit = query.MaxLimit
	if requestedSort != "" && requestedSort != "attribute" && !opts.Registry.HasMetric(requestedSort) {
		spendOpts.SortBy = ""
	}
	spendStmt, err := query.Build(spendOpts)
	if err != nil {
		return nil, err
	}

	crmOpts := opts
	crmOpts.Registry = crmReg
	crmOpts.Limit = query.MaxLimit
	crmOpts.Eligibility = eligibility.AttributionSQL()
	if requestedSort == "" || requestedSort == "attribute" || !crmReg.HasMetric(requestedSort) {
		crmOpts.SortBy = ""
	}
	crmStmt, err := query.Build(crmOpts)
	if err != nil {
		return nil, err
	}

	type result struct {
		rows []AggRow
		err  error
	}
	spendCh := make(chan result, 1)
	crmCh := make(chan result, 1)

	go func() {
		rows, err := s.store.Aggregate(ctx, spendStmt)
		spendCh <- result{rows, err}
	}()
	go func() {
		rows, err := s.store.Aggregate(ctx, crmStmt)
		crmCh <- result{rows, err}
	}()

	spend := <-spendCh
	crm := <-crmCh
	if spend.err != nil {
		if s.metrics != nil {
			s.metrics.StoreErrors.Inc()
		}
		return nil, spend.err
	}
	if crm.err != nil {
		if s.metrics != nil {
			s.metrics.StoreErrors.Inc()
		}
		return nil, crm.err
	}

	start := time.Now()
	merged := Merge(opts.Registry, crmReg, spend.rows, crm.rows)
	current, _ := opts.Registry.Dimension(opts.Dimensions[opts.Depth])
	sortRows(merged, current, requestedSort, requestedDir, opts.Registry.DefaultSortMetric())
	merged = trimRows(merged, opts.Limit)
	if s.metrics != nil {
		s.metrics.MergeDuration.Observe(time.Since(start).Seconds())
	}
	return merged, nil
}

func (s *Service) querySingle(ctx context.Context, opts query.Options) ([]AggRow, error) {
	stmt, err := query.Build(opts)
	if err != nil {
		return nil, err
	}
	rows, err := s.store.Aggregate(ctx, stmt)
	if err != nil {
		if s.metrics != nil {
			s.metrics.StoreErrors.Inc()
		}
		return nil, err
	}
	return rows, nil
}

// combineFilters decodes the parent key into ancestor equality filters and
// overlays any explicit filters. A parent key that does not agree with the
// requested depth is a key-construction bug, not caller-correctable input.
func (s *Service) combineFilters(req Request) (map[string]string, error) {
	filters := make(map[string]string, len(req.Filters))
	for k, v := range req.Filters {
		filters[k] = v
	}

	if req.ParentKey == "" {
		return filters, nil
	}

	depth, _ := tree.DecodeKey(req.ParentKey)
	if depth+1 != req.Depth {
		if s.metrics != nil {
			s.metrics.ReconciliationFailures.Inc()
		}
		return nil, fmt.Errorf("%w: parent key %q decodes to depth %d, request depth %d",
			ErrReconciliationMismatch, req.ParentKey, depth, req.Depth)
	}
	parent, err := tree.BuildParentFilters(req.ParentKey, req.Dimensions)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReconciliationMismatch, err)
	}
	for k, v := range parent {
		filters[k] = v
	}
	return filters, nil
}

// assemble turns merged aggregate rows into tree rows keyed under the
// expanded parent, and verifies the depth/key invariant on every row.
func (s *Service) assemble(req Request, rows []AggRow) ([]*tree.Row, error) {
	out := make([]*tree.Row, 0, len(rows))
	for _, r := range rows {
		key, err := tree.ChildKey(req.ParentKey, r.Attribute)
		if err != nil {
			if s.metrics != nil {
				s.metrics.ReconciliationFailures.Inc()
			}
			return nil, fmt.Errorf("%w: %v", ErrReconciliationMismatch, err)
		}
		row := &tree.Row{
			Key:         key,
			Attribute:   r.Attribute,
			Depth:       req.Depth,
			HasChildren: req.Depth+1 < len(req.Dimensions),
			Metrics:     r.Metrics,
		}
		if err := tree.Validate(row); err != nil {
			if s.metrics != nil {
				s.metrics.ReconciliationFailures.Inc()
			}
			return nil, fmt.Errorf("%w: %v", ErrReconciliationMismatch, err)
		}
		out = append(out, row)
	}
	return out, nil
}

// ResolveView collapses a saved view into concrete query parameters,
// resolving relative presets against now.
func (s *Service) ResolveView(v views.SavedView, now time.Time) (views.ResolvedParams, error) {
	params, err := views.Resolve(v, now)
	if err != nil {
		return views.ResolvedParams{}, err
	}
	if s.metrics != nil {
		s.metrics.ViewsResolved.Inc()
	}
	return params, nil
}
