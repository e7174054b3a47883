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

// Package registry tracks live connections, their space subscriptions and
// account identity, and fans messages out to them. Connections are
// ephemeral: created at socket open, removed at socket close, never
// persisted. Delivery goes through a per-connection mailbox channel so a
// slow consumer never blocks the registry or other connections.
package registry

import (
	"sync"

	"github.com/golang/glog"
)

// Connection is the registry's view of one live socket.
type Connection struct {
	ID                 uint64
	AccountAddress     string
	AppIdentityAddress string

	mailbox chan []byte
	spaces  map[string]bool
}

// Registry is safe for concurrent use. All state is guarded by one mutex;
// mailbox sends inside the critical section are non-blocking.
type Registry struct {
	mu          sync.Mutex
	nextID      uint64
	connections map[uint64]*Connection
}

func NewRegistry() *Registry {
	return &Registry{
		connections: map[uint64]*Connection{},
	}
}

// Register adds a connection and returns its id. Ids come from an
// in-memory counter starting at 1; they do not survive restarts.
// The mailbox channel is owned by the caller's write loop; the registry
// only enqueues into it.
func (r *Registry) Register(accountAddress, appIdentityAddress string, mailbox chan []byte) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	id := r.nextID
	r.connections[id] = &Connection{
		ID:                 id,
		AccountAddress:     accountAddress,
		AppIdentityAddress: appIdentityAddress,
		mailbox:            mailbox,
		spaces:             map[string]bool{},
	}
	return id
}

// Remove drops a connection. Idempotent: removing an unknown id is a no-op,
// so cleanup racing an in-flight broadcast is safe.
func (r *Registry) Remove(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.connections, id)
}

// Subscribe adds a space to the connection's subscription set.
// Subscriptions change only through Subscribe/Unsubscribe, never as a side
// effect of message content.
func (r *Registry) Subscribe(id uint64, spaceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if conn, ok := r.connections[id]; ok {
		conn.spaces[spaceID] = true
	}
}

// Unsubscribe removes a space from the connection's subscription set.
func (r *Registry) Unsubscribe(id uint64, spaceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if conn, ok := r.connections[id]; ok {
		delete(conn.spaces, spaceID)
	}
}

// SendTo enqueues a message for one connection.
func (r *Registry) SendTo(id uint64, message []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if conn, ok := r.connections[id]; ok {
		deliver(conn, message)
	}
}

// BroadcastToSpace enqueues a message for every connection subscribed to
// the space, skipping excludeID. An excludeID of 0 excludes nothing.
func (r *Registry) BroadcastToSpace(spaceID string, message []byte, excludeID uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, conn := range r.connections {
		if id == excludeID {
			continue
		}
		if conn.spaces[spaceID] {
			deliver(conn, message)
		}
	}
}

// BroadcastToAccount enqueues a message for every connection authenticated
// as the account, independent of subscriptions. Multi-device fan-out.
func (r *Registry) BroadcastToAccount(accountAddress string, message []byte, excludeID uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, conn := range r.connections {
		if id == excludeID {
			continue
		}
		if conn.AccountAddress == accountAddress {
			deliver(conn, message)
		}
	}
}

// AccountAddress returns the account a connection authenticated as.
func (r *Registry) AccountAddress(id uint64) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.connections[id]
	if !ok {
		return "", false
	}
	return conn.AccountAddress, true
}

// IsSubscribed reports whether the connection is subscribed to the space.
func (r *Registry) IsSubscribed(id uint64, spaceID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.connections[id]
	return ok && conn.spaces[spaceID]
}

// Len returns the number of live connections.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.connections)
}

// deliver enqueues without blocking. A full mailbox drops the message; the
// connection's own gap handling recovers via backfill.
func deliver(conn *Connection, message []byte) {
	select {
	case conn.mailbox <- message:
	default:
		glog.Warningf("mailbox full, dropping message for connection %d (%s)", conn.ID, conn.AccountAddress)
	}
}
