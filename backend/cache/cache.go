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
	"sync"
)

// query is one (filter, include) view over a type, shared by all listeners
// that subscribed with the same canonical key.
type query struct {
	filter      Filter
	include     Include
	results     []*Entity
	invalidated bool
	listeners   map[int]func([]*Entity)
}

// entry is the per-type cache: decoded entities plus the queries over them.
type entry struct {
	schema      Schema
	entities    map[string]*Entity
	embedded    map[string][]string // entity id -> sorted ids it embeds via relations
	queries     map[string]*query
	invalidated bool
	corrupt     map[string]error
}

func (e *entry) mergedInclude() Include {
	merged := Include{}
	for _, q := range e.queries {
		merged = mergeInclude(merged, q.include)
	}
	return merged
}

// Cache is the client-side reactive entity cache. One instance serves one
// document. All methods are safe for concurrent use; listener callbacks run
// synchronously on the document's patch path without the cache lock held.
type Cache struct {
	mu sync.Mutex

	doc     DocSource
	schemas map[string]Schema
	entries map[string]*entry

	// reverse invalidation index: entity id -> type ids whose decoded
	// entities embed it, with refcounts.
	reverse map[string]map[string]int

	// mirror of relation ids to their last-seen value, so deletions can
	// still be attributed to a parent entity.
	relIndex map[string]RawRelation

	queryCount   int
	unsubscribe  func()
	nextListener int
}

// New builds a cache over doc with the given schemas. The document change
// listener is installed lazily with the first query and removed with the
// last.
func New(doc DocSource, schemas ...Schema) *Cache {
	c := &Cache{
		doc:     doc,
		schemas: map[string]Schema{},
		entries: map[string]*entry{},
		reverse: map[string]map[string]int{},
	}
	for _, s := range schemas {
		c.schemas[s.TypeID] = s
	}
	return c
}

// Subscribe registers a listener for entities of typeID matching filter,
// resolving the relations named by include. The listener is invoked
// immediately with the current results and again after every patch batch
// that invalidated the query. The returned function removes the listener;
// the last removal for a query drops the query, and the last query for a
// type drops the type's cache entry.
func (c *Cache) Subscribe(typeID string, filter Filter, include Include, listener func([]*Entity)) (func(), error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	schema, ok := c.schemas[typeID]
	if !ok {
		return nil, fmt.Errorf("cache: unknown entity type %q", typeID)
	}
	key, err := queryKey(typeID, filter, include)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()

	e, ok := c.entries[typeID]
	if !ok {
		e = &entry{
			schema:   schema,
			entities: map[string]*Entity{},
			embedded: map[string][]string{},
			queries:  map[string]*query{},
			corrupt:  map[string]error{},
		}
		c.entries[typeID] = e
	}

	q, ok := e.queries[key]
	if !ok {
		q = &query{
			filter:    filter,
			include:   include,
			listeners: map[int]func([]*Entity){},
		}
		e.queries[key] = q
		c.queryCount++
		if c.queryCount == 1 {
			c.relIndex = map[string]RawRelation{}
			for _, r := range c.doc.Relations() {
				c.relIndex[r.ID] = r
			}
			c.unsubscribe = c.doc.Subscribe(c.handlePatches)
		}
		// The include set may have grown; re-decode the whole type.
		c.rebuildEntryLocked(typeID, e)
		q.results = c.computeResultsLocked(e, q)
	}

	c.nextListener++
	id := c.nextListener
	q.listeners[id] = listener
	initial := q.results

	c.mu.Unlock()

	listener(initial)

	var once sync.Once
	return func() {
		once.Do(func() { c.removeListener(typeID, key, id) })
	}, nil
}

func (c *Cache) removeListener(typeID, key string, listenerID int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[typeID]
	if !ok {
		return
	}
	q, ok := e.queries[key]
	if !ok {
		return
	}
	delete(q.listeners, listenerID)
	if len(q.listeners) > 0 {
		return
	}

	delete(e.queries, key)
	c.queryCount--

	if len(e.queries) == 0 {
		// Purge the type's reverse-index contributions with it.
		for id := range e.entities {
			c.adjustReverseLocked(typeID, e.embedded[id], nil)
		}
		delete(c.entries, typeID)
	} else {
		c.rebuildEntryLocked(typeID, e)
	}

	if c.queryCount == 0 && c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
		c.relIndex = nil
	}
}

// CorruptEntities returns the side list of entities of the type that
// failed decoding, keyed by entity id.
func (c *Cache) CorruptEntities(typeID string) map[string]error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[typeID]
	if !ok {
		return nil
	}
	out := make(map[string]error, len(e.corrupt))
	for id, err := range e.corrupt {
		out[id] = err
	}
	return out
}

// rebuildEntryLocked re-decodes every entity of the type with the merged
// include across its queries, resetting reverse-index contributions.
func (c *Cache) rebuildEntryLocked(typeID string, e *entry) {
	include := e.mergedInclude()

	for id := range e.entities {
		c.adjustReverseLocked(typeID, e.embedded[id], nil)
	}
	e.entities = map[string]*Entity{}
	e.embedded = map[string][]string{}
	e.corrupt = map[string]error{}

	for _, raw := range c.doc.Entities() {
		if !hasType(raw, typeID) {
			continue
		}
		decoded, embedded, err := decodeEntity(c.doc, raw, e.schema, include, c.schemas)
		if err != nil {
			e.corrupt[raw.ID] = err
			continue
		}
		e.entities[raw.ID] = decoded
		e.embedded[raw.ID] = embedded
		c.adjustReverseLocked(typeID, nil, embedded)
	}
}

// adjustReverseLocked decrements refcounts for old embedded ids and
// increments them for new ones.
func (c *Cache) adjustReverseLocked(typeID string, old, new []string) {
	for _, id := range old {
		byType := c.reverse[id]
		if byType == nil {
			continue
		}
		byType[typeID]--
		if byType[typeID] <= 0 {
			delete(byType, typeID)
		}
		if len(byType) == 0 {
			delete(c.reverse, id)
		}
	}
	for _, id := range new {
		byType := c.reverse[id]
		if byType == nil {
			byType = map[string]int{}
			c.reverse[id] = byType
		}
		byType[typeID]++
	}
}

func (c *Cache) computeResultsLocked(e *entry, q *query) []*Entity {
	ids := make([]string, 0, len(e.entities))
	for id := range e.entities {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var results []*Entity
	for _, id := range ids {
		if q.filter.Matches(e.entities[id]) {
			results = append(results, e.entities[id])
		}
	}
	return results
}

// handlePatches is the single document-change listener. It classifies the
// touched paths, re-decodes the affected entities, maintains the reverse
// index and notifies exactly the queries whose invalidation flag was set
// during this batch.
func (c *Cache) handlePatches(patches []Patch) {
	c.mu.Lock()

	changedEntities := map[string]bool{}
	deletedEntities := map[string]bool{}

	for _, p := range patches {
		if len(p.Path) < 2 {
			continue
		}
		id := p.Path[1]
		switch p.Path[0] {
		case "entities":
			if p.Op == PatchDelete && len(p.Path) == 2 {
				deletedEntities[id] = true
				delete(changedEntities, id)
			} else if !deletedEntities[id] {
				changedEntities[id] = true
			}
		case "relations":
			// Attribute the relation to its parent entity, old and new.
			if old, ok := c.relIndex[id]; ok {
				changedEntities[old.From] = true
			}
			if p.Op == PatchDelete && len(p.Path) == 2 {
				delete(c.relIndex, id)
			} else if current, ok := c.doc.Relation(id); ok {
				changedEntities[current.From] = true
				c.relIndex[id] = current
			}
		}
	}

	// Reverse propagation: a touched entity invalidates the entities that
	// embed it through relations, transitively.
	affected := map[string]bool{}
	var walk func(id string)
	walk = func(id string) {
		if affected[id] {
			return
		}
		affected[id] = true
		for typeID := range c.reverse[id] {
			e, ok := c.entries[typeID]
			if !ok {
				continue
			}
			for parentID, embedded := range e.embedded {
				if containsSorted(embedded, id) {
					walk(parentID)
				}
			}
		}
	}
	for id := range changedEntities {
		walk(id)
	}
	for id := range deletedEntities {
		walk(id)
	}

	for typeID, e := range c.entries {
		for id := range affected {
			if deletedEntities[id] {
				c.dropEntityLocked(typeID, e, id)
				continue
			}
			raw, ok := c.doc.Entity(id)
			if !ok || !hasType(raw, typeID) {
				// Gone, or no longer of this type.
				c.dropEntityLocked(typeID, e, id)
				continue
			}
			c.redecodeEntityLocked(typeID, e, raw)
		}
	}

	// Recompute invalidated queries and collect their listeners.
	type notification struct {
		listeners []func([]*Entity)
		results   []*Entity
	}
	var notifications []notification
	for _, e := range c.entries {
		if !e.invalidated {
			continue
		}
		for _, q := range e.queries {
			if !q.invalidated {
				continue
			}
			q.results = c.computeResultsLocked(e, q)
			q.invalidated = false
			n := notification{results: q.results}
			for _, l := range q.listeners {
				n.listeners = append(n.listeners, l)
			}
			notifications = append(notifications, n)
		}
		e.invalidated = false
	}

	c.mu.Unlock()

	for _, n := range notifications {
		for _, l := range n.listeners {
			l(n.results)
		}
	}
}

// dropEntityLocked removes an entity from a type's cache and invalidates
// the queries that listed it.
func (c *Cache) dropEntityLocked(typeID string, e *entry, id string) {
	delete(e.corrupt, id)
	if _, ok := e.entities[id]; !ok {
		return
	}
	c.adjustReverseLocked(typeID, e.embedded[id], nil)
	delete(e.entities, id)
	delete(e.embedded, id)
	e.invalidated = true
	for _, q := range e.queries {
		if resultsContain(q.results, id) {
			q.invalidated = true
		}
	}
}

// redecodeEntityLocked refreshes one entity's decoded value and relation
// contributions, invalidating the queries whose membership or content it
// touches.
func (c *Cache) redecodeEntityLocked(typeID string, e *entry, raw RawEntity) {
	include := e.mergedInclude()
	oldEmbedded := e.embedded[raw.ID]

	decoded, embedded, err := decodeEntity(c.doc, raw, e.schema, include, c.schemas)
	if err != nil {
		c.adjustReverseLocked(typeID, oldEmbedded, nil)
		delete(e.entities, raw.ID)
		delete(e.embedded, raw.ID)
		e.corrupt[raw.ID] = err
		e.invalidated = true
		for _, q := range e.queries {
			if resultsContain(q.results, raw.ID) {
				q.invalidated = true
			}
		}
		return
	}

	delete(e.corrupt, raw.ID)
	c.adjustReverseLocked(typeID, oldEmbedded, embedded)
	e.entities[raw.ID] = decoded
	e.embedded[raw.ID] = embedded
	e.invalidated = true

	for _, q := range e.queries {
		wasIn := resultsContain(q.results, raw.ID)
		isIn := q.filter.Matches(decoded)
		if wasIn || isIn {
			q.invalidated = true
		}
	}
}

func resultsContain(results []*Entity, id string) bool {
	for _, e := range results {
		if e.ID == id {
			return true
		}
	}
	return false
}

func containsSorted(sorted []string, id string) bool {
	i := sort.SearchStrings(sorted, id)
	return i < len(sorted) && sorted[i] == id
}
