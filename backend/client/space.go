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

package client

import (
	"fmt"
	"sync"

	"github.com/golang/glog"

	"github.com/graphprotocol/hypergraph-sub001/backend/crypto"
	"github.com/graphprotocol/hypergraph-sub001/backend/events"
	"github.com/graphprotocol/hypergraph-sub001/backend/models"
	"github.com/graphprotocol/hypergraph-sub001/backend/updates"
)

// SpaceHandle is the client's view of one space: the folded state, the
// decrypted space keys and the update stream tracker.
type SpaceHandle struct {
	ID string

	mu        sync.Mutex
	state     *events.SpaceState
	sync      *updates.SpaceSync
	keys      [][]byte
	inboxKeys map[string]*crypto.EncryptionKeyPair
}

func newSpaceHandle(spaceID string) *SpaceHandle {
	return &SpaceHandle{
		ID:        spaceID,
		sync:      updates.NewSpaceSync(spaceID, nil),
		inboxKeys: map[string]*crypto.EncryptionKeyPair{},
	}
}

// State returns the current folded space state.
func (h *SpaceHandle) State() *events.SpaceState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// LastEventHash returns the hash of the current log head.
func (h *SpaceHandle) LastEventHash() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == nil {
		return ""
	}
	return h.state.LastEventHash
}

// Keys returns every decrypted space key, oldest first.
func (h *SpaceHandle) Keys() [][]byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.keys
}

// LastClock returns the clock of the last applied update.
func (h *SpaceHandle) LastClock() int64 {
	return h.sync.LastClock()
}

// setKeys installs the decrypted space keys; updates are encrypted with
// the latest one.
func (h *SpaceHandle) setKeys(keys [][]byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.keys = keys
	if len(keys) > 0 {
		h.sync.SetKey(keys[len(keys)-1])
	}
}

func (h *SpaceHandle) addKey(key []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.keys = append(h.keys, key)
	h.sync.SetKey(key)
}

// applyEvent folds one broadcast event into the local state.
func (h *SpaceHandle) applyEvent(event events.SpaceEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	next, err := events.ApplyEvent(h.state, event)
	if err != nil {
		return err
	}
	h.state = next
	return nil
}

// applySnapshot replaces the handle's state from a server snapshot:
// refold the log, open the key boxes, then apply the included updates.
// Key boxes that fail to open are skipped; the remaining keys stay usable.
func (h *SpaceHandle) applySnapshot(snapshot models.SpaceSnapshot, enc *crypto.EncryptionKeyPair) ([][]byte, error) {
	state, err := events.FoldEvents(snapshot.Events)
	if err != nil {
		return nil, fmt.Errorf("snapshot log does not fold: %w", err)
	}

	var keys [][]byte
	for _, box := range snapshot.KeyBoxes {
		key, err := crypto.DecryptKeyBox(crypto.SealedKey{
			Ciphertext: box.Ciphertext,
			Nonce:      box.Nonce,
		}, box.AuthorPublicKey, enc)
		if err != nil {
			glog.Warningf("skipping undecryptable key box %s in space %s: %v", box.ID, snapshot.ID, err)
			continue
		}
		keys = append(keys, key)
	}

	h.mu.Lock()
	h.state = state
	h.keys = keys
	if len(keys) > 0 {
		h.sync.SetKey(keys[len(keys)-1])
	}
	h.mu.Unlock()

	if snapshot.Updates == nil || len(snapshot.Updates.Updates) == 0 {
		return nil, nil
	}
	return h.sync.ApplyNotification(*snapshot.Updates)
}

// applyUpdates folds a broadcast batch into the update stream.
func (h *SpaceHandle) applyUpdates(batch models.Updates) ([][]byte, error) {
	if len(batch.Updates) == 0 {
		return nil, nil
	}
	return h.sync.ApplyNotification(batch)
}

const (
	pubKeyHexLen = 64
	nonceHexLen  = 48
)

// EncryptInboxMessage seals plaintext to an inbox encryption public key.
// The wire form is self-contained: sender public key, nonce and box
// ciphertext concatenated in hex.
func EncryptInboxMessage(inboxPubHex string, sender *crypto.EncryptionKeyPair, plaintext []byte) (string, error) {
	sealed, err := crypto.EncryptKeyBox(plaintext, inboxPubHex, sender)
	if err != nil {
		return "", err
	}
	return sender.PublicKeyHex() + sealed.Nonce + sealed.Ciphertext, nil
}

// DecryptInboxMessage opens a sealed inbox message with the inbox's
// encryption key pair.
func DecryptInboxMessage(ciphertext string, inboxKeys *crypto.EncryptionKeyPair) ([]byte, error) {
	if len(ciphertext) < pubKeyHexLen+nonceHexLen {
		return nil, crypto.ErrKeyBoxDecryption
	}
	senderPub := ciphertext[:pubKeyHexLen]
	return crypto.DecryptKeyBox(crypto.SealedKey{
		Nonce:      ciphertext[pubKeyHexLen : pubKeyHexLen+nonceHexLen],
		Ciphertext: ciphertext[pubKeyHexLen+nonceHexLen:],
	}, senderPub, inboxKeys)
}
