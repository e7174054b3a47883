// Copyright (C) 2025 The Hypergraph Authors <dev@hypergraph.sh>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package cache

import (
	"errors"
	"testing"
)

func ptr[T any](v T) *T { return &v }

func testEntity(fields map[string]any) *Entity {
	return &Entity{ID: "e-1", TypeID: "t", Fields: fields}
}

func TestFieldPredicates(t *testing.T) {
	e := testEntity(map[string]any{
		"name":  "quantum notes",
		"score": 42.0,
		"done":  true,
	})

	cases := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"is match", Filter{Where: map[string]FieldFilter{"name": {Is: "quantum notes"}}}, true},
		{"is mismatch", Filter{Where: map[string]FieldFilter{"name": {Is: "other"}}}, false},
		{"is bool", Filter{Where: map[string]FieldFilter{"done": {Is: true}}}, true},
		{"is numeric int vs float", Filter{Where: map[string]FieldFilter{"score": {Is: 42}}}, true},
		{"greaterThan", Filter{Where: map[string]FieldFilter{"score": {GreaterThan: ptr(40.0)}}}, true},
		{"greaterThan equal fails", Filter{Where: map[string]FieldFilter{"score": {GreaterThan: ptr(42.0)}}}, false},
		{"lessThan", Filter{Where: map[string]FieldFilter{"score": {LessThan: ptr(50.0)}}}, true},
		{"startsWith", Filter{Where: map[string]FieldFilter{"name": {StartsWith: ptr("quantum")}}}, true},
		{"endsWith", Filter{Where: map[string]FieldFilter{"name": {EndsWith: ptr("notes")}}}, true},
		{"contains", Filter{Where: map[string]FieldFilter{"name": {Contains: ptr("tum no")}}}, true},
		{"contains mismatch", Filter{Where: map[string]FieldFilter{"name": {Contains: ptr("xyz")}}}, false},
		{"and across fields", Filter{Where: map[string]FieldFilter{
			"name":  {StartsWith: ptr("quantum")},
			"score": {GreaterThan: ptr(41.0)},
		}}, true},
		{"and fails when one fails", Filter{Where: map[string]FieldFilter{
			"name":  {StartsWith: ptr("quantum")},
			"score": {GreaterThan: ptr(43.0)},
		}}, false},
		{"missing field fails predicate", Filter{Where: map[string]FieldFilter{"missing": {Is: "x"}}}, false},
		{"empty filter matches all", Filter{}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.filter.Validate(); err != nil {
				t.Fatalf("Validate failed: %v", err)
			}
			if got := tc.filter.Matches(e); got != tc.want {
				t.Errorf("Expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestRootOrAndNot(t *testing.T) {
	e := testEntity(map[string]any{"name": "alpha", "score": 10.0})

	or := Filter{Or: []Filter{
		{Where: map[string]FieldFilter{"name": {Is: "beta"}}},
		{Where: map[string]FieldFilter{"score": {LessThan: ptr(20.0)}}},
	}}
	if !or.Matches(e) {
		t.Error("Expected or filter to match via second group")
	}

	not := Filter{Not: &Filter{Where: map[string]FieldFilter{"name": {Is: "alpha"}}}}
	if not.Matches(e) {
		t.Error("Expected not filter to reject")
	}

	combined := Filter{
		Where: map[string]FieldFilter{"score": {GreaterThan: ptr(5.0)}},
		Not:   &Filter{Where: map[string]FieldFilter{"name": {Is: "gamma"}}},
	}
	if !combined.Matches(e) {
		t.Error("Expected combined where+not to match")
	}
}

func TestNestedCombinatorsRejected(t *testing.T) {
	nestedOr := Filter{Or: []Filter{
		{Or: []Filter{{Where: map[string]FieldFilter{"a": {Is: "b"}}}}},
	}}
	if err := nestedOr.Validate(); !errors.Is(err, ErrNestedCombinator) {
		t.Errorf("Expected ErrNestedCombinator for nested or, got %v", err)
	}

	nestedNot := Filter{Not: &Filter{Not: &Filter{}}}
	if err := nestedNot.Validate(); !errors.Is(err, ErrNestedCombinator) {
		t.Errorf("Expected ErrNestedCombinator for nested not, got %v", err)
	}

	notInOr := Filter{Or: []Filter{{Not: &Filter{}}}}
	if err := notInOr.Validate(); !errors.Is(err, ErrNestedCombinator) {
		t.Errorf("Expected ErrNestedCombinator for not inside or, got %v", err)
	}
}

func TestQueryKeyDeterministic(t *testing.T) {
	f1 := Filter{Where: map[string]FieldFilter{
		"a": {Is: "x"},
		"b": {GreaterThan: ptr(1.0)},
	}}
	f2 := Filter{Where: map[string]FieldFilter{
		"b": {GreaterThan: ptr(1.0)},
		"a": {Is: "x"},
	}}

	k1, err := queryKey("t", f1, Include{"rel": {}})
	if err != nil {
		t.Fatalf("queryKey failed: %v", err)
	}
	k2, _ := queryKey("t", f2, Include{"rel": {}})
	if k1 != k2 {
		t.Errorf("Expected identical keys, got %q and %q", k1, k2)
	}

	k3, _ := queryKey("t", f1, Include{})
	if k1 == k3 {
		t.Error("Expected include spec to be part of the key")
	}
}
