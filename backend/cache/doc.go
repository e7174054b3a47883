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

// Package cache maintains decoded, typed, filtered views over a CRDT
// document and incrementally invalidates them from raw patches. The CRDT
// engine itself is external; the cache consumes it through the DocSource
// interface.
package cache

import (
	"sync"
)

// RawEntity is an entity as stored in the document: untyped field values
// plus the set of type ids it carries.
type RawEntity struct {
	ID     string
	Types  []string
	Fields map[string]any
}

// RawRelation links two entities under a named relation.
type RawRelation struct {
	ID   string
	Name string
	From string
	To   string
}

// PatchOp discriminates patch operations.
type PatchOp int

const (
	PatchPut PatchOp = iota
	PatchDelete
)

// Patch describes one touched document path. Entity paths have the shape
// ["entities", id, ...], relation paths ["relations", id, ...]. A delete at
// depth two removes the entity or relation itself; deeper paths are field
// mutations.
type Patch struct {
	Op   PatchOp
	Path []string
}

// Doc is a read snapshot of the document.
type Doc interface {
	Entity(id string) (RawEntity, bool)
	Entities() []RawEntity
	Relation(id string) (RawRelation, bool)
	Relations() []RawRelation
	RelationsFrom(entityID string) []RawRelation
}

// DocSource is a document plus change notification. The subscribed callback
// runs synchronously inside the engine's mutation path, so cache work on it
// must stay bounded and free of I/O.
type DocSource interface {
	Doc
	Subscribe(func([]Patch)) (unsubscribe func())
}

// MemDoc is an in-memory DocSource. It backs tests and serves as the
// adapter target for engines that surface plain entity/relation maps.
type MemDoc struct {
	mu        sync.Mutex
	entities  map[string]RawEntity
	relations map[string]RawRelation
	listeners map[int]func([]Patch)
	nextID    int
}

func NewMemDoc() *MemDoc {
	return &MemDoc{
		entities:  map[string]RawEntity{},
		relations: map[string]RawRelation{},
		listeners: map[int]func([]Patch){},
	}
}

func (d *MemDoc) Entity(id string) (RawEntity, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.entities[id]
	return e, ok
}

func (d *MemDoc) Entities() []RawEntity {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]RawEntity, 0, len(d.entities))
	for _, e := range d.entities {
		out = append(out, e)
	}
	return out
}

func (d *MemDoc) Relation(id string) (RawRelation, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.relations[id]
	return r, ok
}

func (d *MemDoc) Relations() []RawRelation {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]RawRelation, 0, len(d.relations))
	for _, r := range d.relations {
		out = append(out, r)
	}
	return out
}

func (d *MemDoc) RelationsFrom(entityID string) []RawRelation {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []RawRelation
	for _, r := range d.relations {
		if r.From == entityID {
			out = append(out, r)
		}
	}
	return out
}

func (d *MemDoc) Subscribe(listener func([]Patch)) func() {
	d.mu.Lock()
	d.nextID++
	id := d.nextID
	d.listeners[id] = listener
	d.mu.Unlock()
	return func() {
		d.mu.Lock()
		delete(d.listeners, id)
		d.mu.Unlock()
	}
}

func (d *MemDoc) notify(patches []Patch) {
	d.mu.Lock()
	listeners := make([]func([]Patch), 0, len(d.listeners))
	for _, l := range d.listeners {
		listeners = append(listeners, l)
	}
	d.mu.Unlock()
	for _, l := range listeners {
		l(patches)
	}
}

// PutEntity upserts an entity and emits one patch per field.
func (d *MemDoc) PutEntity(e RawEntity) {
	d.mu.Lock()
	d.entities[e.ID] = e
	d.mu.Unlock()
	patches := []Patch{{Op: PatchPut, Path: []string{"entities", e.ID}}}
	for field := range e.Fields {
		patches = append(patches, Patch{Op: PatchPut, Path: []string{"entities", e.ID, field}})
	}
	d.notify(patches)
}

// DeleteEntity removes an entity.
func (d *MemDoc) DeleteEntity(id string) {
	d.mu.Lock()
	delete(d.entities, id)
	d.mu.Unlock()
	d.notify([]Patch{{Op: PatchDelete, Path: []string{"entities", id}}})
}

// PutRelation upserts a relation.
func (d *MemDoc) PutRelation(r RawRelation) {
	d.mu.Lock()
	d.relations[r.ID] = r
	d.mu.Unlock()
	d.notify([]Patch{{Op: PatchPut, Path: []string{"relations", r.ID}}})
}

// DeleteRelation removes a relation.
func (d *MemDoc) DeleteRelation(id string) {
	d.mu.Lock()
	delete(d.relations, id)
	d.mu.Unlock()
	d.notify([]Patch{{Op: PatchDelete, Path: []string{"relations", id}}})
}
