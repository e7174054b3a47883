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
	"strings"

	"github.com/graphprotocol/hypergraph-sub001/backend/crypto"
)

// ErrNestedCombinator is returned when an or/not group appears anywhere
// below the filter root. Keeping the grammar two-level makes evaluation a
// single well-defined pass; nesting must fail loudly, not be ignored.
var ErrNestedCombinator = errors.New("cache: or/not filters are only allowed at the root")

// FieldFilter is the per-field predicate set. All set predicates must hold.
type FieldFilter struct {
	Is          any      `json:"is,omitempty"`
	GreaterThan *float64 `json:"greaterThan,omitempty"`
	LessThan    *float64 `json:"lessThan,omitempty"`
	StartsWith  *string  `json:"startsWith,omitempty"`
	EndsWith    *string  `json:"endsWith,omitempty"`
	Contains    *string  `json:"contains,omitempty"`
}

// Filter is the two-level query grammar: field predicates AND'd across
// fields, with optional root-level Or (list of groups, OR'd) and Not
// (negated group).
type Filter struct {
	Where map[string]FieldFilter `json:"where,omitempty"`
	Or    []Filter               `json:"or,omitempty"`
	Not   *Filter                `json:"not,omitempty"`
}

// Validate rejects or/not groups nested below the root.
func (f Filter) Validate() error {
	for _, group := range f.Or {
		if len(group.Or) > 0 || group.Not != nil {
			return ErrNestedCombinator
		}
	}
	if f.Not != nil {
		if len(f.Not.Or) > 0 || f.Not.Not != nil {
			return ErrNestedCombinator
		}
	}
	return nil
}

// Matches evaluates a validated filter against a decoded entity.
func (f Filter) Matches(e *Entity) bool {
	for name, ff := range f.Where {
		if !ff.matches(e.Fields[name]) {
			return false
		}
	}
	if len(f.Or) > 0 {
		matched := false
		for _, group := range f.Or {
			if group.matchesWhere(e) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	if f.Not != nil && f.Not.matchesWhere(e) {
		return false
	}
	return true
}

func (f Filter) matchesWhere(e *Entity) bool {
	for name, ff := range f.Where {
		if !ff.matches(e.Fields[name]) {
			return false
		}
	}
	return true
}

func (ff FieldFilter) matches(value any) bool {
	if ff.Is != nil && !valuesEqual(value, ff.Is) {
		return false
	}
	if ff.GreaterThan != nil {
		n, ok := asNumber(value)
		if !ok || n <= *ff.GreaterThan {
			return false
		}
	}
	if ff.LessThan != nil {
		n, ok := asNumber(value)
		if !ok || n >= *ff.LessThan {
			return false
		}
	}
	if ff.StartsWith != nil {
		s, ok := value.(string)
		if !ok || !strings.HasPrefix(s, *ff.StartsWith) {
			return false
		}
	}
	if ff.EndsWith != nil {
		s, ok := value.(string)
		if !ok || !strings.HasSuffix(s, *ff.EndsWith) {
			return false
		}
	}
	if ff.Contains != nil {
		s, ok := value.(string)
		if !ok || !strings.Contains(s, *ff.Contains) {
			return false
		}
	}
	return true
}

func valuesEqual(a, b any) bool {
	if an, ok := asNumber(a); ok {
		bn, ok := asNumber(b)
		return ok && an == bn
	}
	return a == b
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// queryKey canonically serializes (type, filter, include) so identical
// subscriptions share one query entry.
func queryKey(typeID string, f Filter, inc Include) (string, error) {
	raw, err := crypto.CanonicalJSON(map[string]any{
		"type":    typeID,
		"filter":  f,
		"include": inc,
	})
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
