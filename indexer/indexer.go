// Copyright 2025 The Tychonet Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

// Package indexer implements the query layer over the remote block indexer
// (the DApp server): a collection query interface with projection, filter,
// sort, and limit parameters.
package indexer

import (
	"context"
	"fmt"
)

// SortDirection orders query results by a field path.
type SortDirection string

const (
	SortAsc  SortDirection = "ASC"
	SortDesc SortDirection = "DESC"
)

// OrderBy is one sort clause of a collection query.
type OrderBy struct {
	Path      string        `json:"path"`
	Direction SortDirection `json:"direction"`
}

// ParamsOfQueryCollection describes one collection query. Result is the
// projection mini-language (nested fields in braces); Filter maps field names
// to operator objects ({"eq": v}, {"ge": v}, {"lt": v}, {"in": [...]}).
type ParamsOfQueryCollection struct {
	Collection string         `json:"collection"`
	Result     string         `json:"result"`
	Filter     map[string]any `json:"filter,omitempty"`
	Order      []OrderBy      `json:"order,omitempty"`
	Limit      int            `json:"limit,omitempty"`
}

// Client queries the indexer. Implementations must be safe for concurrent
// use; the engine issues no mutations.
type Client interface {
	QueryCollection(ctx context.Context, params ParamsOfQueryCollection) ([]Row, error)
}

// Row is one JSON object returned by a collection query. Accessors convert
// dynamically-typed fields and fail on malformed rows.
type Row map[string]any

// Uint32 reads an integer field.
func (r Row) Uint32(field string) (uint32, error) {
	v, ok := r[field]
	if !ok {
		return 0, fmt.Errorf("`%s` field is missing", field)
	}
	switch n := v.(type) {
	case float64:
		if n < 0 || n != float64(uint32(n)) {
			return 0, fmt.Errorf("`%s` of block must be an integer value", field)
		}
		return uint32(n), nil
	case int:
		if n < 0 {
			return 0, fmt.Errorf("`%s` of block must be an integer value", field)
		}
		return uint32(n), nil
	case uint32:
		return n, nil
	default:
		return 0, fmt.Errorf("`%s` of block must be an integer value", field)
	}
}

// Int64 reads a signed integer field (workchain identifiers may be negative).
func (r Row) Int64(field string) (int64, error) {
	v, ok := r[field]
	if !ok {
		return 0, fmt.Errorf("`%s` field is missing", field)
	}
	switch n := v.(type) {
	case float64:
		if n != float64(int64(n)) {
			return 0, fmt.Errorf("`%s` field must be an integer", field)
		}
		return int64(n), nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	default:
		return 0, fmt.Errorf("`%s` field must be an integer", field)
	}
}

// String reads a string field.
func (r Row) String(field string) (string, error) {
	v, ok := r[field]
	if !ok {
		return "", fmt.Errorf("`%s` field is missing", field)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("`%s` field must be a string", field)
	}
	return s, nil
}

// Child reads a nested object field.
func (r Row) Child(field string) (Row, error) {
	v, ok := r[field]
	if !ok {
		return nil, fmt.Errorf("`%s` field is missing", field)
	}
	switch m := v.(type) {
	case map[string]any:
		return Row(m), nil
	case Row:
		return m, nil
	default:
		return nil, fmt.Errorf("`%s` field must be an object", field)
	}
}

// Array reads a field holding a list of objects.
func (r Row) Array(field string) ([]Row, error) {
	v, ok := r[field]
	if !ok {
		return nil, fmt.Errorf("`%s` field is missing", field)
	}
	list, ok := v.([]any)
	if !ok {
		if rows, ok := v.([]Row); ok {
			return rows, nil
		}
		return nil, fmt.Errorf("field `%s` must be an array", field)
	}
	rows := make([]Row, len(list))
	for i, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("field `%s` must be an array of objects", field)
		}
		rows[i] = Row(m)
	}
	return rows, nil
}
