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
	"encoding/hex"
	"errors"

	"github.com/golang/glog"

	"github.com/graphprotocol/hypergraph-sub001/backend/crypto"
	"github.com/graphprotocol/hypergraph-sub001/backend/models"
	"github.com/graphprotocol/hypergraph-sub001/backend/storage"
)

func (h *SyncHandler) handleCreateUpdate(connID uint64, account string, msg models.CreateUpdate) {
	spaceID := msg.SpaceID

	state, err := h.store.GetSpaceState(spaceID)
	if err != nil {
		h.failRequest(connID, errorCode(err), spaceID)
		return
	}
	if !state.IsMember(account) {
		h.failRequest(connID, models.ErrorCodeUnauthorized, spaceID)
		return
	}

	// The signature is over the raw ciphertext bytes and must recover to
	// the authenticated account. A mismatch drops only this update.
	ciphertext, err := hex.DecodeString(msg.Update.Content)
	if err != nil {
		h.failRequest(connID, models.ErrorCodeBadSignature, spaceID)
		return
	}
	recovered, err := crypto.RecoverPublicKey(msg.Update.Signature, ciphertext)
	if err != nil || crypto.AddressFromPublicKey(recovered) != account {
		h.failRequest(connID, models.ErrorCodeBadSignature, spaceID)
		return
	}

	// Reservation and persist run under the space lock so a failed save
	// can return its clock. A burned clock would leave a permanent hole
	// no backfill could ever fill.
	lock := h.locks.get(spaceID)
	lock.Lock()

	clock, err := h.clocks.Next(spaceID)
	if err != nil {
		lock.Unlock()
		glog.Errorf("clock assignment failed for %s: %v", spaceID, err)
		h.failRequest(connID, models.ErrorCodeInternal, spaceID)
		return
	}

	update := msg.Update
	update.SpaceID = spaceID
	update.AccountID = account
	update.Clock = clock

	if err := h.store.SaveUpdate(update); err != nil {
		h.clocks.Rollback(spaceID, clock)
		lock.Unlock()
		glog.Errorf("failed to save update %s for %s: %v", update.UpdateID, spaceID, err)
		h.failRequest(connID, models.ErrorCodeInternal, spaceID)
		return
	}
	lock.Unlock()

	h.send(connID, models.UpdateConfirmed{
		UpdateID: update.UpdateID,
		Clock:    clock,
		SpaceID:  spaceID,
	})
	h.broadcastToSpace(spaceID, models.UpdatesNotification{
		SpaceID: spaceID,
		Updates: models.Updates{
			Updates:          []models.Update{update},
			FirstUpdateClock: clock,
			LastUpdateClock:  clock,
		},
	}, connID)
}

func (h *SyncHandler) handleGetUpdates(connID uint64, account string, msg models.GetUpdates) {
	spaceID := msg.SpaceID

	state, err := h.store.GetSpaceState(spaceID)
	if err != nil {
		h.failRequest(connID, errorCode(err), spaceID)
		return
	}
	if !state.IsMember(account) {
		h.failRequest(connID, models.ErrorCodeUnauthorized, spaceID)
		return
	}

	batch, err := h.loadUpdatesAfter(spaceID, msg.AfterClock)
	if err != nil {
		glog.Errorf("failed to load updates for %s: %v", spaceID, err)
		h.failRequest(connID, models.ErrorCodeInternal, spaceID)
		return
	}

	h.send(connID, models.UpdatesNotification{SpaceID: spaceID, Updates: batch})
}

// loadUpdatesAfter builds a contiguous batch of the stored updates with
// clock greater than afterClock. An empty range yields an empty batch whose
// bounds still satisfy last - first + 1 == 0.
func (h *SyncHandler) loadUpdatesAfter(spaceID string, afterClock int64) (models.Updates, error) {
	stored, err := h.store.GetUpdatesAfter(spaceID, afterClock)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return models.Updates{}, err
	}
	if len(stored) == 0 {
		return models.Updates{
			FirstUpdateClock: afterClock + 1,
			LastUpdateClock:  afterClock,
		}, nil
	}
	return models.Updates{
		Updates:          stored,
		FirstUpdateClock: stored[0].Clock,
		LastUpdateClock:  stored[len(stored)-1].Clock,
	}, nil
}
