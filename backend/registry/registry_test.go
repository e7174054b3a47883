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

package registry

import (
	"testing"
)

func drain(ch chan []byte) [][]byte {
	var out [][]byte
	for {
		select {
		case msg := <-ch:
			out = append(out, msg)
		default:
			return out
		}
	}
}

func TestBroadcastToSpaceExcludesSender(t *testing.T) {
	r := NewRegistry()

	boxA := make(chan []byte, 8)
	boxB := make(chan []byte, 8)
	boxC := make(chan []byte, 8)

	a := r.Register("0xaaa", "", boxA)
	b := r.Register("0xbbb", "", boxB)
	c := r.Register("0xccc", "", boxC)

	r.Subscribe(a, "space-1")
	r.Subscribe(b, "space-1")
	// c subscribes to a different space.
	r.Subscribe(c, "space-2")

	r.BroadcastToSpace("space-1", []byte("hello"), a)

	if got := drain(boxA); len(got) != 0 {
		t.Errorf("Expected excluded sender to receive nothing, got %d messages", len(got))
	}
	if got := drain(boxB); len(got) != 1 || string(got[0]) != "hello" {
		t.Errorf("Expected subscriber to receive the message, got %v", got)
	}
	if got := drain(boxC); len(got) != 0 {
		t.Errorf("Expected unsubscribed connection to receive nothing, got %d messages", len(got))
	}
}

func TestBroadcastToAccountIgnoresSubscriptions(t *testing.T) {
	r := NewRegistry()

	phone := make(chan []byte, 8)
	laptop := make(chan []byte, 8)
	other := make(chan []byte, 8)

	p := r.Register("0xaaa", "phone", phone)
	r.Register("0xaaa", "laptop", laptop)
	r.Register("0xbbb", "", other)

	r.BroadcastToAccount("0xaaa", []byte("ping"), 0)

	if got := drain(phone); len(got) != 1 {
		t.Errorf("Expected phone to receive 1 message, got %d", len(got))
	}
	if got := drain(laptop); len(got) != 1 {
		t.Errorf("Expected laptop to receive 1 message, got %d", len(got))
	}
	if got := drain(other); len(got) != 0 {
		t.Errorf("Expected other account to receive nothing, got %d", len(got))
	}

	// Exclusion applies to account broadcasts too.
	r.BroadcastToAccount("0xaaa", []byte("ping"), p)
	if got := drain(phone); len(got) != 0 {
		t.Errorf("Expected excluded connection to receive nothing, got %d", len(got))
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	r := NewRegistry()

	box := make(chan []byte, 1)
	id := r.Register("0xaaa", "", box)
	r.Subscribe(id, "space-1")

	r.Remove(id)
	r.Remove(id)

	if r.Len() != 0 {
		t.Errorf("Expected empty registry, got %d connections", r.Len())
	}

	// Broadcasting after removal must not deliver or panic.
	r.BroadcastToSpace("space-1", []byte("late"), 0)
	if got := drain(box); len(got) != 0 {
		t.Errorf("Expected no delivery to removed connection, got %d", len(got))
	}
}

func TestFullMailboxDoesNotBlock(t *testing.T) {
	r := NewRegistry()

	box := make(chan []byte, 1)
	id := r.Register("0xaaa", "", box)
	r.Subscribe(id, "space-1")

	// Second send overflows the mailbox; the call must return.
	r.BroadcastToSpace("space-1", []byte("one"), 0)
	r.BroadcastToSpace("space-1", []byte("two"), 0)

	got := drain(box)
	if len(got) != 1 || string(got[0]) != "one" {
		t.Errorf("Expected only the first message to be delivered, got %v", got)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	r := NewRegistry()

	box := make(chan []byte, 8)
	id := r.Register("0xaaa", "", box)

	r.Subscribe(id, "space-1")
	r.Unsubscribe(id, "space-1")
	r.BroadcastToSpace("space-1", []byte("gone"), 0)

	if got := drain(box); len(got) != 0 {
		t.Errorf("Expected no delivery after unsubscribe, got %d", len(got))
	}
	if r.IsSubscribed(id, "space-1") {
		t.Error("Expected IsSubscribed to be false after unsubscribe")
	}
}
