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
	"testing"
)

func noteSchema() Schema {
	return Schema{
		TypeID: "note",
		Fields: map[string]FieldKind{
			"title": FieldString,
			"stars": FieldNumber,
		},
		Relations: map[string]string{
			"author": "person",
		},
	}
}

func personSchema() Schema {
	return Schema{
		TypeID: "person",
		Fields: map[string]FieldKind{
			"name": FieldString,
		},
	}
}

// recorder collects listener invocations.
type recorder struct {
	calls   int
	results []*Entity
}

func (r *recorder) listener() func([]*Entity) {
	return func(results []*Entity) {
		r.calls++
		r.results = results
	}
}

func (r *recorder) ids() []string {
	var out []string
	for _, e := range r.results {
		out = append(out, e.ID)
	}
	return out
}

func TestSubscribeDeliversInitialResults(t *testing.T) {
	doc := NewMemDoc()
	doc.PutEntity(RawEntity{ID: "n1", Types: []string{"note"}, Fields: map[string]any{"title": "alpha"}})
	doc.PutEntity(RawEntity{ID: "n2", Types: []string{"note"}, Fields: map[string]any{"title": "beta"}})

	c := New(doc, noteSchema(), personSchema())

	rec := &recorder{}
	unsub, err := c.Subscribe("note", Filter{Where: map[string]FieldFilter{"title": {StartsWith: ptr("a")}}}, Include{}, rec.listener())
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer unsub()

	if rec.calls != 1 {
		t.Fatalf("Expected 1 initial invocation, got %d", rec.calls)
	}
	if got := rec.ids(); len(got) != 1 || got[0] != "n1" {
		t.Errorf("Expected [n1], got %v", got)
	}
}

func TestPatchDrivenInvalidation(t *testing.T) {
	doc := NewMemDoc()
	c := New(doc, noteSchema(), personSchema())

	rec := &recorder{}
	unsub, err := c.Subscribe("note", Filter{Where: map[string]FieldFilter{"title": {StartsWith: ptr("a")}}}, Include{}, rec.listener())
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer unsub()

	// Matching entity invalidates the query.
	doc.PutEntity(RawEntity{ID: "n1", Types: []string{"note"}, Fields: map[string]any{"title": "abc"}})
	if rec.calls != 2 {
		t.Fatalf("Expected notification for matching entity, calls=%d", rec.calls)
	}
	if got := rec.ids(); len(got) != 1 || got[0] != "n1" {
		t.Errorf("Expected [n1], got %v", got)
	}

	// Non-matching entity of the same type does not notify this query.
	doc.PutEntity(RawEntity{ID: "n2", Types: []string{"note"}, Fields: map[string]any{"title": "zzz"}})
	if rec.calls != 2 {
		t.Errorf("Expected no notification for unaffected query, calls=%d", rec.calls)
	}

	// Mutating n1 out of the filter notifies and removes it.
	doc.PutEntity(RawEntity{ID: "n1", Types: []string{"note"}, Fields: map[string]any{"title": "moved"}})
	if rec.calls != 3 {
		t.Fatalf("Expected notification when entity leaves the filter, calls=%d", rec.calls)
	}
	if len(rec.results) != 0 {
		t.Errorf("Expected empty results, got %v", rec.ids())
	}
}

func TestDeletedEntityLeavesAllResults(t *testing.T) {
	doc := NewMemDoc()
	doc.PutEntity(RawEntity{ID: "p1", Types: []string{"person"}, Fields: map[string]any{"name": "ada"}})
	doc.PutEntity(RawEntity{ID: "n1", Types: []string{"note"}, Fields: map[string]any{"title": "alpha"}})
	doc.PutRelation(RawRelation{ID: "r1", Name: "author", From: "n1", To: "p1"})

	c := New(doc, noteSchema(), personSchema())

	notes := &recorder{}
	unsubNotes, err := c.Subscribe("note", Filter{}, Include{"author": {}}, notes.listener())
	if err != nil {
		t.Fatalf("Subscribe notes failed: %v", err)
	}
	defer unsubNotes()

	people := &recorder{}
	unsubPeople, err := c.Subscribe("person", Filter{}, Include{}, people.listener())
	if err != nil {
		t.Fatalf("Subscribe people failed: %v", err)
	}
	defer unsubPeople()

	if got := notes.results[0].Relations["author"]; len(got) != 1 || got[0].Fields["name"] != "ada" {
		t.Fatalf("Expected note to embed its author, got %v", got)
	}

	doc.DeleteEntity("p1")

	// The person query drops p1.
	if got := people.ids(); len(got) != 0 {
		t.Errorf("Expected empty person results, got %v", got)
	}
	// The note query on a different type no longer lists p1 as a relation
	// target.
	if got := notes.results[0].Relations["author"]; len(got) != 0 {
		t.Errorf("Expected author relation to be empty after deletion, got %v", got)
	}
}

func TestRelationChangeInvalidatesParent(t *testing.T) {
	doc := NewMemDoc()
	doc.PutEntity(RawEntity{ID: "p1", Types: []string{"person"}, Fields: map[string]any{"name": "ada"}})
	doc.PutEntity(RawEntity{ID: "n1", Types: []string{"note"}, Fields: map[string]any{"title": "alpha"}})
	doc.PutRelation(RawRelation{ID: "r1", Name: "author", From: "n1", To: "p1"})

	c := New(doc, noteSchema(), personSchema())

	notes := &recorder{}
	unsub, err := c.Subscribe("note", Filter{}, Include{"author": {}}, notes.listener())
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer unsub()

	// Renaming the related person re-decodes the embedding note.
	doc.PutEntity(RawEntity{ID: "p1", Types: []string{"person"}, Fields: map[string]any{"name": "grace"}})
	if notes.calls < 2 {
		t.Fatalf("Expected parent query notification, calls=%d", notes.calls)
	}
	if got := notes.results[0].Relations["author"]; len(got) != 1 || got[0].Fields["name"] != "grace" {
		t.Errorf("Expected embedded author to be refreshed, got %v", got)
	}

	// Deleting the relation itself detaches the author.
	doc.DeleteRelation("r1")
	if got := notes.results[0].Relations["author"]; len(got) != 0 {
		t.Errorf("Expected author detached after relation delete, got %v", got)
	}
}

func TestCorruptEntityExcludedNotFatal(t *testing.T) {
	doc := NewMemDoc()
	doc.PutEntity(RawEntity{ID: "p1", Types: []string{"person"}, Fields: map[string]any{"name": "ada"}})
	doc.PutEntity(RawEntity{ID: "p2", Types: []string{"person"}, Fields: map[string]any{"name": 7}})

	c := New(doc, noteSchema(), personSchema())

	rec := &recorder{}
	unsub, err := c.Subscribe("person", Filter{}, Include{}, rec.listener())
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer unsub()

	if got := rec.ids(); len(got) != 1 || got[0] != "p1" {
		t.Errorf("Expected corrupt p2 excluded, got %v", got)
	}
	corrupt := c.CorruptEntities("person")
	if len(corrupt) != 1 || corrupt["p2"] == nil {
		t.Errorf("Expected p2 in corrupt side list, got %v", corrupt)
	}

	// Fixing the entity brings it back.
	doc.PutEntity(RawEntity{ID: "p2", Types: []string{"person"}, Fields: map[string]any{"name": "lin"}})
	if got := rec.ids(); len(got) != 2 {
		t.Errorf("Expected repaired entity in results, got %v", got)
	}
	if len(c.CorruptEntities("person")) != 0 {
		t.Error("Expected corrupt side list to be cleared")
	}
}

func TestSubscriptionLifecycle(t *testing.T) {
	doc := NewMemDoc()
	c := New(doc, noteSchema(), personSchema())

	filter := Filter{}
	first := &recorder{}
	second := &recorder{}

	unsub1, err := c.Subscribe("note", filter, Include{}, first.listener())
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	unsub2, err := c.Subscribe("note", filter, Include{}, second.listener())
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	doc.PutEntity(RawEntity{ID: "n1", Types: []string{"note"}, Fields: map[string]any{"title": "x"}})
	if first.calls != 2 || second.calls != 2 {
		t.Fatalf("Expected both listeners of the shared query notified, got %d and %d", first.calls, second.calls)
	}

	unsub1()
	unsub1() // double unsubscribe is a no-op

	doc.PutEntity(RawEntity{ID: "n2", Types: []string{"note"}, Fields: map[string]any{"title": "y"}})
	if first.calls != 2 {
		t.Errorf("Expected removed listener to stay silent, calls=%d", first.calls)
	}
	if second.calls != 3 {
		t.Errorf("Expected remaining listener notified, calls=%d", second.calls)
	}

	unsub2()

	// With no queries left, the document listener is torn down: mutations
	// reach nobody.
	doc.PutEntity(RawEntity{ID: "n3", Types: []string{"note"}, Fields: map[string]any{"title": "z"}})
	if second.calls != 3 {
		t.Errorf("Expected no notifications after last unsubscribe, calls=%d", second.calls)
	}

	// A fresh subscription rebuilds from the document.
	third := &recorder{}
	unsub3, err := c.Subscribe("note", filter, Include{}, third.listener())
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer unsub3()
	if got := third.ids(); len(got) != 3 {
		t.Errorf("Expected 3 notes on resubscribe, got %v", got)
	}
}
