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

package handlers

import (
	"net/http"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"

	"github.com/graphprotocol/hypergraph-sub001/backend/middleware"
	"github.com/graphprotocol/hypergraph-sub001/backend/models"
	"github.com/graphprotocol/hypergraph-sub001/backend/registry"
	"github.com/graphprotocol/hypergraph-sub001/backend/storage"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20

	// mailboxSize bounds the per-connection send queue. Overflow drops
	// messages; clients recover through clock gap detection and backfill.
	mailboxSize = 256
)

// spaceLocks hands out one mutex per space. Log appends and clock
// reservations are read-validate-write sequences; the per-space lock
// serializes them so a concurrent writer sees the new head instead of
// colliding on the same position.
type spaceLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newSpaceLocks() *spaceLocks {
	return &spaceLocks{locks: map[string]*sync.Mutex{}}
}

func (l *spaceLocks) get(spaceID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.locks[spaceID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[spaceID] = lock
	}
	return lock
}

// SyncHandler runs the websocket sync protocol: one socket per client
// device, authenticated by the JWT middleware, speaking the tagged message
// union in both directions.
type SyncHandler struct {
	store    storage.Store
	registry *registry.Registry
	clocks   *ClockTable
	locks    *spaceLocks
	upgrader websocket.Upgrader
}

func NewSyncHandler(store storage.Store, reg *registry.Registry) *SyncHandler {
	return &SyncHandler{
		store:    store,
		registry: reg,
		clocks:   NewClockTable(store),
		locks:    newSpaceLocks(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Auth is carried by the token, not the origin.
				return true
			},
		},
	}
}

// HandleSync upgrades the connection and serves it until either side
// closes. GET /sync?token=...
func (h *SyncHandler) HandleSync(w http.ResponseWriter, r *http.Request) {
	account, ok := middleware.GetAccountAddress(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	appIdentity := middleware.GetAppIdentityAddress(r)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		glog.Errorf("websocket upgrade failed for %s: %v", account, err)
		return
	}

	mailbox := make(chan []byte, mailboxSize)
	done := make(chan struct{})
	connID := h.registry.Register(account, appIdentity, mailbox)

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			h.registry.Remove(connID)
			close(done)
			conn.Close()
		})
	}
	defer cleanup()

	glog.Infof("connection %d opened for account %s", connID, account)
	go h.writePump(conn, mailbox, done, cleanup)
	h.readPump(conn, connID, account)
	glog.Infof("connection %d closed for account %s", connID, account)
}

// readPump reads frames until the socket fails and dispatches each one.
// Runs on the HTTP handler goroutine.
func (h *SyncHandler) readPump(conn *websocket.Conn, connID uint64, account string) {
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				glog.Warningf("connection %d read error: %v", connID, err)
			}
			return
		}

		msg, err := models.DecodeClientMessage(data)
		if err != nil {
			glog.Warningf("connection %d sent undecodable frame: %v", connID, err)
			h.failRequest(connID, models.ErrorCodeInternal, "")
			continue
		}
		h.dispatch(connID, account, msg)
	}
}

// writePump owns all writes to the socket: mailbox frames and pings. The
// mailbox channel is never closed; shutdown goes through done.
func (h *SyncHandler) writePump(conn *websocket.Conn, mailbox chan []byte, done chan struct{}, cleanup func()) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer cleanup()

	for {
		select {
		case message := <-mailbox:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage, nil)
			return
		}
	}
}

func (h *SyncHandler) dispatch(connID uint64, account string, msg models.ClientMessage) {
	switch m := msg.(type) {
	case models.ListSpaces:
		h.handleListSpaces(connID, account)
	case models.ListInvitations:
		h.handleListInvitations(connID, account)
	case models.SubscribeSpace:
		h.handleSubscribeSpace(connID, account, m)
	case models.CreateUpdate:
		h.handleCreateUpdate(connID, account, m)
	case models.CreateSpaceEvent:
		h.handleCreateSpaceEvent(connID, account, m)
	case models.CreateInvitationEvent:
		h.handleCreateInvitationEvent(connID, account, m)
	case models.AcceptInvitationEvent:
		h.handleAcceptInvitationEvent(connID, account, m)
	case models.CreateSpaceInboxEvent:
		h.handleCreateSpaceInboxEvent(connID, account, m)
	case models.GetUpdates:
		h.handleGetUpdates(connID, account, m)
	case models.PostInboxMessage:
		h.handlePostInboxMessage(connID, account, m)
	default:
		glog.Errorf("connection %d: unhandled message %T", connID, msg)
	}
}

// send encodes a server frame and enqueues it for one connection.
func (h *SyncHandler) send(connID uint64, msg models.ServerMessage) {
	data, err := models.EncodeServerMessage(msg)
	if err != nil {
		glog.Errorf("failed to encode %T: %v", msg, err)
		return
	}
	h.registry.SendTo(connID, data)
}

// broadcastToSpace encodes a server frame and fans it out to the space's
// subscribers, skipping excludeID.
func (h *SyncHandler) broadcastToSpace(spaceID string, msg models.ServerMessage, excludeID uint64) {
	data, err := models.EncodeServerMessage(msg)
	if err != nil {
		glog.Errorf("failed to encode %T: %v", msg, err)
		return
	}
	h.registry.BroadcastToSpace(spaceID, data, excludeID)
}

// broadcastToAccount fans a frame out to every device of one account.
func (h *SyncHandler) broadcastToAccount(account string, msg models.ServerMessage) {
	data, err := models.EncodeServerMessage(msg)
	if err != nil {
		glog.Errorf("failed to encode %T: %v", msg, err)
		return
	}
	h.registry.BroadcastToAccount(account, data, 0)
}

func (h *SyncHandler) failRequest(connID uint64, code, spaceID string) {
	h.send(connID, models.RequestFailed{Code: code, SpaceID: spaceID})
}
