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

// Package client is the Go SDK for the sync protocol: it owns the socket,
// the per-space key material and state folds, and surfaces decrypted
// deltas through callbacks. All crypto happens here; the server only ever
// sees ciphertext.
package client

import (
	"errors"
	"fmt"
	"sync"

	"github.com/golang/glog"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/graphprotocol/hypergraph-sub001/backend/crypto"
	"github.com/graphprotocol/hypergraph-sub001/backend/events"
	"github.com/graphprotocol/hypergraph-sub001/backend/models"
	"github.com/graphprotocol/hypergraph-sub001/backend/updates"
)

// ErrUnknownSpace is returned for operations on a space the client has not
// created or subscribed to.
var ErrUnknownSpace = errors.New("client: unknown space")

// Handlers are the application callbacks. All of them are optional and are
// invoked from the read loop, one at a time.
type Handlers struct {
	OnSpaces             func(spaces []models.SpaceSummary)
	OnDeltas             func(spaceID string, deltas [][]byte)
	OnInvitations        func(invitations []events.Invitation)
	OnInvitationAccepted func(spaceID string)
	OnInboxMessage       func(msg models.InboxMessage)
	OnRequestFailed      func(code, spaceID string)
}

// Client is one authenticated device connection.
type Client struct {
	conn     *websocket.Conn
	sig      *crypto.SignatureKeyPair
	enc      *crypto.EncryptionKeyPair
	handlers Handlers

	writeMu sync.Mutex

	mu     sync.Mutex
	spaces map[string]*SpaceHandle

	closeOnce sync.Once
	done      chan struct{}
}

// Dial connects to the sync endpoint, authenticating with the JWT token,
// and starts the read loop.
func Dial(endpoint, token string, sig *crypto.SignatureKeyPair, enc *crypto.EncryptionKeyPair, handlers Handlers) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.Dial(endpoint+"?token="+token, nil)
	if err != nil {
		return nil, fmt.Errorf("client: dial failed: %w", err)
	}

	c := &Client{
		conn:     conn,
		sig:      sig,
		enc:      enc,
		handlers: handlers,
		spaces:   map[string]*SpaceHandle{},
		done:     make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// AccountAddress returns the account this client authenticates events as.
func (c *Client) AccountAddress() string {
	return c.sig.Address()
}

// Close shuts the connection down. The read loop exits on the socket
// error. Safe to call more than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}

// Space returns the handle of a known space.
func (c *Client) Space(spaceID string) (*SpaceHandle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	handle, ok := c.spaces[spaceID]
	return handle, ok
}

func (c *Client) space(spaceID string) (*SpaceHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	handle, ok := c.spaces[spaceID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSpace, spaceID)
	}
	return handle, nil
}

func (c *Client) ensureSpace(spaceID string) *SpaceHandle {
	c.mu.Lock()
	defer c.mu.Unlock()
	handle, ok := c.spaces[spaceID]
	if !ok {
		handle = newSpaceHandle(spaceID)
		c.spaces[spaceID] = handle
	}
	return handle
}

func (c *Client) send(msg models.ClientMessage) error {
	data, err := models.EncodeClientMessage(msg)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// ListSpaces requests the account's space summaries; the reply arrives via
// Handlers.OnSpaces.
func (c *Client) ListSpaces() error {
	return c.send(models.ListSpaces{})
}

// ListInvitations requests the account's open invitations; the reply
// arrives via Handlers.OnInvitations.
func (c *Client) ListInvitations() error {
	return c.send(models.ListInvitations{})
}

// Subscribe requests a space snapshot and live notifications for it.
func (c *Client) Subscribe(spaceID string) error {
	c.ensureSpace(spaceID)
	return c.send(models.SubscribeSpace{ID: spaceID})
}

// CreateSpace generates a space id and key, signs the genesis event and
// submits it together with the creator's own key box.
func (c *Client) CreateSpace() (string, error) {
	spaceID := uuid.New().String()

	key, err := crypto.GenerateSpaceKey()
	if err != nil {
		return "", err
	}
	event, err := events.NewCreateSpaceEvent(c.sig, spaceID)
	if err != nil {
		return "", err
	}

	// Seal the space key to ourselves so other devices and later
	// sessions can fetch it from the server.
	sealed, err := crypto.EncryptKeyBox(key, c.enc.PublicKeyHex(), c.enc)
	if err != nil {
		return "", err
	}
	keyBox := models.KeyBox{
		ID:              uuid.New().String(),
		SpaceID:         spaceID,
		AccountID:       c.sig.Address(),
		Ciphertext:      sealed.Ciphertext,
		Nonce:           sealed.Nonce,
		AuthorPublicKey: c.enc.PublicKeyHex(),
	}

	state, err := events.ApplyEvent(nil, event)
	if err != nil {
		return "", err
	}

	handle := c.ensureSpace(spaceID)
	handle.mu.Lock()
	handle.state = state
	handle.mu.Unlock()
	handle.addKey(key)

	return spaceID, c.send(models.CreateSpaceEvent{
		SpaceID: spaceID,
		Event:   event,
		KeyBox:  &keyBox,
	})
}

// Invite signs an invitation on the current log head and ships one key box
// per space key, sealed to the invitee's encryption public key. Granting
// membership without all keys would leave the invitee unable to read
// history.
func (c *Client) Invite(spaceID, inviteeAccountID, inviteeEncryptionPubHex string) error {
	handle, err := c.space(spaceID)
	if err != nil {
		return err
	}

	event, err := events.NewCreateInvitationEvent(c.sig, spaceID, handle.LastEventHash(), inviteeAccountID)
	if err != nil {
		return err
	}

	var keyBoxes []models.KeyBox
	for _, key := range handle.Keys() {
		sealed, err := crypto.EncryptKeyBox(key, inviteeEncryptionPubHex, c.enc)
		if err != nil {
			return err
		}
		keyBoxes = append(keyBoxes, models.KeyBox{
			ID:              uuid.New().String(),
			SpaceID:         spaceID,
			AccountID:       inviteeAccountID,
			Ciphertext:      sealed.Ciphertext,
			Nonce:           sealed.Nonce,
			AuthorPublicKey: c.enc.PublicKeyHex(),
		})
	}

	return c.send(models.CreateInvitationEvent{
		SpaceID:  spaceID,
		Event:    event,
		KeyBoxes: keyBoxes,
	})
}

// AcceptInvitation signs the acceptance on the space's current log head.
// The client must have subscribed to the space first to learn the head.
func (c *Client) AcceptInvitation(spaceID string) error {
	handle, err := c.space(spaceID)
	if err != nil {
		return err
	}
	event, err := events.NewAcceptInvitationEvent(c.sig, spaceID, handle.LastEventHash())
	if err != nil {
		return err
	}
	return c.send(models.AcceptInvitationEvent{SpaceID: spaceID, Event: event})
}

// CreateInbox creates a space inbox with a fresh encryption key pair and
// returns the inbox id. The private half stays on this device.
func (c *Client) CreateInbox(spaceID string, isPublic bool) (string, error) {
	handle, err := c.space(spaceID)
	if err != nil {
		return "", err
	}

	inboxKeys, err := crypto.GenerateEncryptionKeyPair()
	if err != nil {
		return "", err
	}
	inboxID := uuid.New().String()

	event, err := events.NewCreateSpaceInboxEvent(c.sig, spaceID, handle.LastEventHash(), events.InboxMeta{
		ID:                  inboxID,
		EncryptionPublicKey: inboxKeys.PublicKeyHex(),
		IsPublic:            isPublic,
	})
	if err != nil {
		return "", err
	}

	handle.mu.Lock()
	handle.inboxKeys[inboxID] = inboxKeys
	handle.mu.Unlock()

	return inboxID, c.send(models.CreateSpaceInboxEvent{SpaceID: spaceID, Event: event})
}

// SendUpdate encrypts and signs one delta and submits it. The clock is
// assigned by the server; the confirmation advances the local stream.
func (c *Client) SendUpdate(spaceID string, delta []byte) error {
	handle, err := c.space(spaceID)
	if err != nil {
		return err
	}
	msg, err := handle.sync.PackageUpdate(c.sig, delta)
	if err != nil {
		return err
	}
	return c.send(msg)
}

// PostInboxMessage seals plaintext to the inbox's encryption public key
// and posts it.
func (c *Client) PostInboxMessage(spaceID, inboxID string, plaintext []byte) error {
	handle, err := c.space(spaceID)
	if err != nil {
		return err
	}
	state := handle.State()
	if state == nil {
		return fmt.Errorf("%w: %s has no state yet", ErrUnknownSpace, spaceID)
	}
	inbox, ok := state.Inboxes[inboxID]
	if !ok {
		return fmt.Errorf("client: unknown inbox %s in space %s", inboxID, spaceID)
	}

	ciphertext, err := EncryptInboxMessage(inbox.EncryptionPublicKey, c.enc, plaintext)
	if err != nil {
		return err
	}
	return c.send(models.PostInboxMessage{
		SpaceID:    spaceID,
		InboxID:    inboxID,
		Ciphertext: ciphertext,
	})
}

// readLoop drains the socket until it closes, dispatching each frame.
func (c *Client) readLoop() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				glog.Warningf("read loop terminated: %v", err)
			}
			return
		}

		msg, err := models.DecodeServerMessage(data)
		if err != nil {
			glog.Warningf("undecodable server frame: %v", err)
			continue
		}
		c.handle(msg)
	}
}

func (c *Client) handle(msg models.ServerMessage) {
	switch m := msg.(type) {
	case models.SpacesList:
		if c.handlers.OnSpaces != nil {
			c.handlers.OnSpaces(m.Spaces)
		}

	case models.SpaceSnapshot:
		handle := c.ensureSpace(m.ID)
		deltas, err := handle.applySnapshot(m, c.enc)
		if err != nil {
			c.recover(m.ID, handle, err)
		}
		if len(deltas) > 0 && c.handlers.OnDeltas != nil {
			c.handlers.OnDeltas(m.ID, deltas)
		}

	case models.SpaceEventMessage:
		handle := c.ensureSpace(m.SpaceID)
		if err := handle.applyEvent(m.Event); err != nil {
			// Out-of-order event broadcast: refetch the whole log.
			glog.Warningf("event for %s does not apply locally, resubscribing: %v", m.SpaceID, err)
			if err := c.Subscribe(m.SpaceID); err != nil {
				glog.Errorf("resubscribe to %s failed: %v", m.SpaceID, err)
			}
		}

	case models.UpdateConfirmed:
		handle, err := c.space(m.SpaceID)
		if err != nil {
			glog.Warningf("confirmation for unknown space %s", m.SpaceID)
			return
		}
		if err := handle.sync.Confirm(m.UpdateID, m.Clock); err != nil {
			c.recover(m.SpaceID, handle, err)
		}

	case models.UpdatesNotification:
		handle := c.ensureSpace(m.SpaceID)
		deltas, err := handle.applyUpdates(m.Updates)
		if err != nil {
			c.recover(m.SpaceID, handle, err)
		}
		if len(deltas) > 0 && c.handlers.OnDeltas != nil {
			c.handlers.OnDeltas(m.SpaceID, deltas)
		}

	case models.InvitationsList:
		if c.handlers.OnInvitations != nil {
			c.handlers.OnInvitations(m.Invitations)
		}

	case models.InvitationAccepted:
		// Membership is live now; pull the snapshot to get the log,
		// key boxes and stored updates.
		if err := c.Subscribe(m.SpaceID); err != nil {
			glog.Errorf("subscribe after acceptance of %s failed: %v", m.SpaceID, err)
		}
		if c.handlers.OnInvitationAccepted != nil {
			c.handlers.OnInvitationAccepted(m.SpaceID)
		}

	case models.InboxMessageNotification:
		if c.handlers.OnInboxMessage != nil {
			c.handlers.OnInboxMessage(m.Message)
		}

	case models.RequestFailed:
		glog.Warningf("request failed: %s (space %s)", m.Code, m.SpaceID)
		if c.handlers.OnRequestFailed != nil {
			c.handlers.OnRequestFailed(m.Code, m.SpaceID)
		}

	default:
		glog.Errorf("unhandled server message %T", msg)
	}
}

// recover reacts to a stream error. A clock gap triggers a backfill
// request; anything else is logged and left to the next snapshot.
func (c *Client) recover(spaceID string, handle *SpaceHandle, err error) {
	var gap *updates.ClockGapError
	if errors.As(err, &gap) {
		glog.Infof("clock gap in %s, backfilling after %d", spaceID, handle.LastClock())
		if err := c.send(models.GetUpdates{SpaceID: spaceID, AfterClock: handle.LastClock()}); err != nil {
			glog.Errorf("backfill request for %s failed: %v", spaceID, err)
		}
		return
	}
	glog.Errorf("update stream error in %s: %v", spaceID, err)
}
