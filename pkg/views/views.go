// Copyright (C) 2025, VL Data Systems. All rights reserved.
// See the file LICENSE for licensing terms.

package views

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/adima959/vl-reporting/pkg/log"
	"github.com/adima959/vl-reporting/pkg/query"
	"github.com/adima959/vl-reporting/pkg/storage"
)

var (
	ErrViewNotFound = errors.New("saved view not found")
	ErrInvalidView  = errors.New("invalid saved view")
)

// Date modes of a saved view.
const (
	DateModeRelative = "relative"
	DateModeAbsolute = "absolute"
)

const dateLayout = "2006-01-02"

// SavedView is a persisted bundle of date range, dimensions, filters and
// sort. Relative views store only the preset; the concrete range is
// computed when the view is resolved.
type SavedView struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Family     string            `json:"family"`
	DateMode   string            `json:"dateMode"`
	DatePreset Preset            `json:"datePreset,omitempty"`
	DateStart  string            `json:"dateStart,omitempty"`
	DateEnd    string            `json:"dateEnd,omitempty"`
	Dimensions []string          `json:"dimensions"`
	Filters    map[string]string `json:"filters,omitempty"`
	SortBy     string            `json:"sortBy,omitempty"`
	SortDir    string            `json:"sortDirection,omitempty"`

	// Audit fields; the caller identity is recorded, never used to filter.
	CreatedBy string    `json:"createdBy,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ResolvedParams is a saved view with its date input collapsed into a
// concrete range.
type ResolvedParams struct {
	Range      query.DateRange
	Dimensions []string
	Filters    map[string]string
	SortBy     string
	SortDir    string
}

// Resolve collapses the view's date input into a concrete range relative to
// now. Absolute views bypass preset resolution entirely.
func Resolve(v SavedView, now time.Time) (ResolvedParams, error) {
	var r query.DateRange
	switch v.DateMode {
	case DateModeRelative:
		var err error
		r, err = ResolvePreset(v.DatePreset, now)
		if err != nil {
			return ResolvedParams{}, err
		}
	case DateModeAbsolute:
		start, err := time.ParseInLocation(dateLayout, v.DateStart, time.UTC)
		if err != nil {
			return ResolvedParams{}, fmt.Errorf("%w: start date %q", query.ErrInvalidDateRange, v.DateStart)
		}
		end, err := time.ParseInLocation(dateLayout, v.DateEnd, time.UTC)
		if err != nil {
			return ResolvedParams{}, fmt.Errorf("%w: end date %q", query.ErrInvalidDateRange, v.DateEnd)
		}
		r = query.DateRange{Start: start, End: end}
		if err := r.Validate(); err != nil {
			return ResolvedParams{}, err
		}
	default:
		return ResolvedParams{}, fmt.Errorf("%w: date mode %q", ErrInvalidView, v.DateMode)
	}

	return ResolvedParams{
		Range:      r,
		Dimensions: v.Dimensions,
		Filters:    v.Filters,
		SortBy:     v.SortBy,
		SortDir:    v.SortDir,
	}, nil
}

var viewPrefix = []byte("view/")

// Store persists saved views as JSON in the key-value layer.
type Store struct {
	db  *storage.Storage
	log log.Logger
}

// NewStore creates a saved-view store over the given storage.
func NewStore(db *storage.Storage, logger log.Logger) *Store {
	return &Store{db: db, log: logger}
}

// Save persists a view, assigning an ID and timestamps on first save.
func (s *Store) Save(v *SavedView) error {
	if v.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidView)
	}
	if v.DateMode == DateModeRelative && v.DatePreset == "" {
		return fmt.Errorf("%w: relative views need a preset", ErrInvalidView)
	}
	now := time.Now().UTC()
	if v.ID == "" {
		v.ID = uuid.NewString()
		v.CreatedAt = now
	}
	v.UpdatedAt = now

	buf, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := s.db.Put(viewKey(v.ID), buf); err != nil {
		return err
	}
	s.log.Info("saved view stored", log.String("id", v.ID), log.String("by", v.CreatedBy))
	return nil
}

// Get loads one view by ID.
func (s *Store) Get(id string) (*SavedView, error) {
	buf, err := s.db.Get(viewKey(id))
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrViewNotFound, id)
		}
		return nil, err
	}
	var v SavedView
	if err := json.Unmarshal(buf, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// List returns all stored views.
func (s *Store) List() ([]*SavedView, error) {
	it := s.db.NewIteratorWithPrefix(viewPrefix)
	defer it.Release()

	var out []*SavedView
	for it.Next() {
		var v SavedView
		if err := json.Unmarshal(it.Value(), &v); err != nil {
			s.log.Warn("skipping undecodable saved view", log.Err(err))
			continue
		}
		out = append(out, &v)
	}
	return out, it.Error()
}

// Delete removes a view by ID.
func (s *Store) Delete(id string) error {
	return s.db.Delete(viewKey(id))
}

func viewKey(id string) []byte {
	return append(append([]byte{}, viewPrefix...), id...)
}
