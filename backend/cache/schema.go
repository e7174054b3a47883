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
	"fmt"
	"sort"
)

// FieldKind is the expected runtime type of a schema field.
type FieldKind string

const (
	FieldString FieldKind = "string"
	FieldNumber FieldKind = "number"
	FieldBool   FieldKind = "bool"
)

// Schema describes one entity type: its field kinds and its named
// relations with their target type ids.
type Schema struct {
	TypeID    string
	Fields    map[string]FieldKind
	Relations map[string]string
}

// Include selects which relations to resolve when decoding, recursively:
// the value of each relation name is the include spec for its targets.
type Include map[string]Include

// mergeInclude unions two include specs.
func mergeInclude(a, b Include) Include {
	if len(a) == 0 && len(b) == 0 {
		return Include{}
	}
	out := Include{}
	for name, nested := range a {
		out[name] = nested
	}
	for name, nested := range b {
		if existing, ok := out[name]; ok {
			out[name] = mergeInclude(existing, nested)
		} else {
			out[name] = nested
		}
	}
	return out
}

// Entity is a decoded, typed entity with its resolved relation targets.
type Entity struct {
	ID        string
	TypeID    string
	Fields    map[string]any
	Relations map[string][]*Entity
}

// CorruptEntityError marks an entity that fails schema decoding. Such
// entities are collected into a side list and excluded from results; they
// never abort the query they would have appeared in.
type CorruptEntityError struct {
	EntityID string
	TypeID   string
	Field    string
	Reason   string
}

func (e *CorruptEntityError) Error() string {
	return fmt.Sprintf("cache: corrupt entity %s of type %s: field %q %s", e.EntityID, e.TypeID, e.Field, e.Reason)
}

// decodeEntity decodes raw against the schema, resolving included
// relations against the document. It returns the decoded entity and the
// sorted ids of every entity it transitively embedded, which feed the
// reverse invalidation index.
func decodeEntity(doc Doc, raw RawEntity, schema Schema, include Include, schemas map[string]Schema) (*Entity, []string, error) {
	fields := make(map[string]any, len(schema.Fields))
	for name, kind := range schema.Fields {
		value, ok := raw.Fields[name]
		if !ok || value == nil {
			continue
		}
		decoded, err := decodeField(value, kind)
		if err != nil {
			return nil, nil, &CorruptEntityError{
				EntityID: raw.ID,
				TypeID:   schema.TypeID,
				Field:    name,
				Reason:   err.Error(),
			}
		}
		fields[name] = decoded
	}

	entity := &Entity{
		ID:        raw.ID,
		TypeID:    schema.TypeID,
		Fields:    fields,
		Relations: map[string][]*Entity{},
	}

	var embedded []string
	for name := range include {
		targetTypeID, ok := schema.Relations[name]
		if !ok {
			continue
		}
		targetSchema, ok := schemas[targetTypeID]
		if !ok {
			continue
		}
		for _, rel := range doc.RelationsFrom(raw.ID) {
			if rel.Name != name {
				continue
			}
			targetRaw, ok := doc.Entity(rel.To)
			if !ok || !hasType(targetRaw, targetTypeID) {
				continue
			}
			target, nested, err := decodeEntity(doc, targetRaw, targetSchema, include[name], schemas)
			if err != nil {
				// A corrupt relation target drops out of the parent's
				// view; it does not corrupt the parent.
				continue
			}
			entity.Relations[name] = append(entity.Relations[name], target)
			embedded = append(embedded, rel.To)
			embedded = append(embedded, nested...)
		}
		sort.Slice(entity.Relations[name], func(i, j int) bool {
			return entity.Relations[name][i].ID < entity.Relations[name][j].ID
		})
	}

	sort.Strings(embedded)
	return entity, embedded, nil
}

func decodeField(value any, kind FieldKind) (any, error) {
	switch kind {
	case FieldString:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", value)
		}
		return s, nil
	case FieldNumber:
		switch n := value.(type) {
		case float64:
			return n, nil
		case int:
			return float64(n), nil
		case int64:
			return float64(n), nil
		}
		return nil, fmt.Errorf("expected number, got %T", value)
	case FieldBool:
		b, ok := value.(bool)
		if !ok {
			return nil, fmt.Errorf("expected bool, got %T", value)
		}
		return b, nil
	}
	return nil, fmt.Errorf("unknown field kind %q", kind)
}

func hasType(raw RawEntity, typeID string) bool {
	for _, t := range raw.Types {
		if t == typeID {
			return true
		}
	}
	return false
}
