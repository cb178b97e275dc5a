// Copyright (C) 2025, VL Data Systems. All rights reserved.
// See the file LICENSE for licensing terms.

// Package tree implements the drill-down report tree: composite row keys,
// key decoding, parent-filter reconstruction and lazy child attachment.
// Tree state lives entirely with the caller; nothing here fetches data.
package tree

import (
	"errors"
	"fmt"
	"strings"
)

// Separator joins ancestor dimension values into a row key. It is reserved:
// dimension values must never contain it.
const Separator = "::"

var (
	ErrKeyDepthMismatch = errors.New("row depth does not match its key")
	ErrSeparatorInValue = errors.New("dimension value contains the key separator")
	ErrParentNotFound   = errors.New("parent row not found")
	ErrTooDeep          = errors.New("key deeper than the dimension path")
)

// Row is one drill-down tree node. Depth is redundant with Key and the two
// must stay consistent; Validate enforces that.
type Row struct {
	Key         string             `json:"key"`
	Attribute   string             `json:"attribute"`
	Depth       int                `json:"depth"`
	HasChildren bool               `json:"hasChildren"`
	Metrics     map[string]float64 `json:"metrics"`
	Children    []*Row             `json:"children,omitempty"`
}

// ChildKey builds the key of a child row under parentKey. An empty parentKey
// means a root-level row.
func ChildKey(parentKey, value string) (string, error) {
	if strings.Contains(value, Separator) {
		return "", fmt.Errorf("%w: %q", ErrSeparatorInValue, value)
	}
	if parentKey == "" {
		return value, nil
	}
	return parentKey + Separator + value, nil
}

// DecodeKey splits a key into its ancestor values. Depth is the separator
// count: a root row has depth 0.
func DecodeKey(key string) (depth int, values []string) {
	if key == "" {
		return 0, nil
	}
	values = strings.Split(key, Separator)
	return len(values) - 1, values
}

// BuildParentFilters reconstructs the equality filters needed to fetch the
// children of the row identified by parentKey, zipping its decoded values
// against the dimension-ID path by position. An empty parentKey yields no
// filters (root-level query).
func BuildParentFilters(parentKey string, dimensions []string) (map[string]string, error) {
	if parentKey == "" {
		return nil, nil
	}
	_, values := DecodeKey(parentKey)
	if len(values) > len(dimensions) {
		return nil, fmt.Errorf("%w: key %q with %d dimensions", ErrTooDeep, parentKey, len(dimensions))
	}
	filters := make(map[string]string, len(values))
	for i, v := range values {
		filters[dimensions[i]] = v
	}
	return filters, nil
}

// Validate checks the row's stored depth against its key. A mismatch is a
// key-construction bug and must fail loudly, never be silently trusted.
func Validate(r *Row) error {
	depth, _ := DecodeKey(r.Key)
	if depth != r.Depth {
		return fmt.Errorf("%w: key %q decodes to depth %d, row says %d",
			ErrKeyDepthMismatch, r.Key, depth, r.Depth)
	}
	return nil
}

// Attach places rows under the node identified by parentKey and returns the
// updated forest. An empty parentKey replaces the root level. The parent must
// already be loaded; attaching never triggers a fetch.
func Attach(roots []*Row, parentKey string, children []*Row) ([]*Row, error) {
	if parentKey == "" {
		return children, nil
	}
	parent := FindByKey(roots, parentKey)
	if parent == nil {
		return nil, fmt.Errorf("%w: %q", ErrParentNotFound, parentKey)
	}
	parent.Children = children
	return roots, nil
}

// FindByKey walks the already-loaded nodes depth-first and returns the row
// with the given key, or nil. It never fetches.
func FindByKey(nodes []*Row, key string) *Row {
	for _, n := range nodes {
		if n.Key == key {
			return n
		}
		if found := FindByKey(n.Children, key); found != nil {
			return found
		}
	}
	return nil
}
