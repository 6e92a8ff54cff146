// Copyright 2025 The Tychonet Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/tychonet/lite-client/indexer"
)

// mockIndexer serves collection queries from in-memory row tables. It
// interprets the same filter operators the engine issues (eq, ge, lt, in),
// always sorts by seq_no ascending, and returns deep copies so the engine's
// row mutations never leak back into the tables.
type mockIndexer struct {
	collections map[string][]indexer.Row
	queries     int

	// transform, when set, post-processes the rows of each query. Tests use
	// it to simulate misbehaving indexers.
	transform func(params indexer.ParamsOfQueryCollection, rows []indexer.Row) []indexer.Row
}

func newMockIndexer() *mockIndexer {
	return &mockIndexer{collections: make(map[string][]indexer.Row)}
}

func (m *mockIndexer) QueryCollection(_ context.Context, params indexer.ParamsOfQueryCollection) ([]indexer.Row, error) {
	m.queries++

	var matched []indexer.Row
	for _, row := range m.collections[params.Collection] {
		if matchFilter(row, params.Filter) {
			matched = append(matched, row)
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		a, aok := asFloat(matched[i]["seq_no"])
		b, bok := asFloat(matched[j]["seq_no"])
		return aok && bok && a < b
	})
	if params.Limit > 0 && len(matched) > params.Limit {
		matched = matched[:params.Limit]
	}

	copied, err := deepCopyRows(matched)
	if err != nil {
		return nil, err
	}
	if m.transform != nil {
		copied = m.transform(params, copied)
	}
	return copied, nil
}

// deepCopyRows roundtrips rows through JSON, which also normalizes all
// numbers to float64 the way a real HTTP transport would.
func deepCopyRows(rows []indexer.Row) ([]indexer.Row, error) {
	raw, err := json.Marshal(rows)
	if err != nil {
		return nil, fmt.Errorf("mock row encoding: %w", err)
	}
	var out []indexer.Row
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("mock row decoding: %w", err)
	}
	return out, nil
}

func matchFilter(row indexer.Row, filter map[string]any) bool {
	for field, condAny := range filter {
		cond, ok := condAny.(map[string]any)
		if !ok {
			return false
		}
		if !matchCond(row[field], cond) {
			return false
		}
	}
	return true
}

func matchCond(value any, cond map[string]any) bool {
	for op, want := range cond {
		switch op {
		case "eq":
			if !valueEq(value, want) {
				return false
			}
		case "ge":
			a, aok := asFloat(value)
			b, bok := asFloat(want)
			if !aok || !bok || a < b {
				return false
			}
		case "lt":
			a, aok := asFloat(value)
			b, bok := asFloat(want)
			if !aok || !bok || a >= b {
				return false
			}
		case "in":
			found := false
			for _, item := range toList(want) {
				if valueEq(value, item) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func valueEq(a, b any) bool {
	if fa, ok := asFloat(a); ok {
		fb, ok := asFloat(b)
		return ok && fa == fb
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	}
	return false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

func toList(v any) []any {
	switch list := v.(type) {
	case []any:
		return list
	case []uint32:
		out := make([]any, len(list))
		for i, item := range list {
			out[i] = item
		}
		return out
	}
	return nil
}

// fakeEnv counts timer calls instead of sleeping. onTimer lets tests mutate
// the world between poll iterations.
type fakeEnv struct {
	calls   int
	onTimer func(call int)
}

func (f *fakeEnv) SetTimer(_ context.Context, _ uint32) error {
	f.calls++
	if f.onTimer != nil {
		f.onTimer(f.calls)
	}
	return nil
}
