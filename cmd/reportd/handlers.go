// Copyright (C) 2025, VL Data Systems. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/adima959/vl-reporting/pkg/dimension"
	"github.com/adima959/vl-reporting/pkg/log"
	"github.com/adima959/vl-reporting/pkg/metric"
	"github.com/adima959/vl-reporting/pkg/query"
	"github.com/adima959/vl-reporting/pkg/report"
	"github.com/adima959/vl-reporting/pkg/views"
)

type handlers struct {
	svc     *report.Service
	views   *views.Store
	log     log.Logger
	metrics *metric.Metrics
}

type queryRequest struct {
	Family     string            `json:"family" binding:"required"`
	Dimensions []string          `json:"dimensions" binding:"required"`
	Depth      int               `json:"depth"`
	DateStart  string            `json:"dateStart"`
	DateEnd    string            `json:"dateEnd"`
	DatePreset string            `json:"datePreset"`
	ParentKey  string            `json:"parentKey"`
	Filters    map[string]string `json:"filters"`
	SortBy     string            `json:"sortBy"`
	SortDir    string            `json:"sortDirection"`
	Limit      int               `json:"limit"`
}

func (h *handlers) queryReport(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rng, err := h.dateRange(req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rows, err := h.svc.Query(c.Request.Context(), report.Request{
		Family:     dimension.Family(req.Family),
		Dimensions: req.Dimensions,
		Depth:      req.Depth,
		Range:      rng,
		ParentKey:  req.ParentKey,
		Filters:    req.Filters,
		SortBy:     req.SortBy,
		SortDir:    req.SortDir,
		Limit:      req.Limit,
		Actor:      c.GetHeader("X-User"),
	})
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"rows": rows, "total": len(rows)})
}

func (h *handlers) dateRange(req queryRequest) (query.DateRange, error) {
	if req.DatePreset != "" {
		return views.ResolvePreset(views.Preset(req.DatePreset), time.Now())
	}
	v := views.SavedView{
		DateMode:  views.DateModeAbsolute,
		DateStart: req.DateStart,
		DateEnd:   req.DateEnd,
	}
	params, err := views.Resolve(v, time.Now())
	if err != nil {
		return query.DateRange{}, err
	}
	return params.Range, nil
}

func (h *handlers) listViews(c *gin.Context) {
	all, err := h.views.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"views": all, "total": len(all)})
}

func (h *handlers) saveView(c *gin.Context) {
	var v views.SavedView
	if err := c.ShouldBindJSON(&v); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if v.CreatedBy == "" {
		v.CreatedBy = c.GetHeader("X-User")
	}
	if err := h.views.Save(&v); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	if h.metrics != nil {
		h.metrics.ViewsSaved.Inc()
	}
	c.JSON(http.StatusCreated, v)
}

func (h *handlers) getView(c *gin.Context) {
	v, err := h.views.Get(c.Param("id"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, v)
}

func (h *handlers) deleteView(c *gin.Context) {
	if err := h.views.Delete(c.Param("id")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) resolveView(c *gin.Context) {
	v, err := h.views.Get(c.Param("id"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	params, err := h.svc.ResolveView(*v, time.Now())
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"dateStart":     params.Range.Start.Format("2006-01-02"),
		"dateEnd":       params.Range.End.Format("2006-01-02"),
		"dimensions":    params.Dimensions,
		"filters":       params.Filters,
		"sortBy":        params.SortBy,
		"sortDirection": params.SortDir,
	})
}

// statusFor maps the engine's error taxonomy onto transport statuses:
// validation failures are client-correctable, everything else is a server
// failure.
func statusFor(err error) int {
	switch {
	case errors.Is(err, dimension.ErrUnknownDimension),
		errors.Is(err, dimension.ErrUnknownMetric),
		errors.Is(err, dimension.ErrUnknownFamily),
		errors.Is(err, query.ErrDepthOutOfRange),
		errors.Is(err, query.ErrInvalidDateRange),
		errors.Is(err, views.ErrUnknownPreset),
		errors.Is(err, views.ErrInvalidView):
		return http.StatusBadRequest
	case errors.Is(err, views.ErrViewNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
