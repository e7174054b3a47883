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
	"time"

	"github.com/golang/glog"
	"github.com/google/uuid"

	"github.com/graphprotocol/hypergraph-sub001/backend/models"
)

func (h *SyncHandler) handleListSpaces(connID uint64, account string) {
	spaces, err := h.store.ListSpacesForAccount(account)
	if err != nil {
		glog.Errorf("failed to list spaces for %s: %v", account, err)
		h.failRequest(connID, models.ErrorCodeInternal, "")
		return
	}
	h.send(connID, models.SpacesList{Spaces: spaces})
}

func (h *SyncHandler) handleListInvitations(connID uint64, account string) {
	invitations, err := h.store.ListInvitationsForAccount(account)
	if err != nil {
		glog.Errorf("failed to list invitations for %s: %v", account, err)
		h.failRequest(connID, models.ErrorCodeInternal, "")
		return
	}
	h.send(connID, models.InvitationsList{Invitations: invitations})
}

func (h *SyncHandler) handleSubscribeSpace(connID uint64, account string, msg models.SubscribeSpace) {
	spaceID := msg.ID

	state, err := h.store.GetSpaceState(spaceID)
	if err != nil {
		h.failRequest(connID, errorCode(err), spaceID)
		return
	}

	// Members get the full snapshot. An invitee gets it too: they need
	// the log head to build their acceptance event, and their key boxes
	// are already waiting for them.
	_, invited := state.InvitationFor(account)
	if !state.IsMember(account) && !invited {
		h.failRequest(connID, models.ErrorCodeUnauthorized, spaceID)
		return
	}

	log, err := h.store.GetEvents(spaceID)
	if err != nil {
		glog.Errorf("failed to load events for %s: %v", spaceID, err)
		h.failRequest(connID, models.ErrorCodeInternal, spaceID)
		return
	}

	keyBoxes, err := h.store.GetKeyBoxes(spaceID, account)
	if err != nil {
		glog.Errorf("failed to load key boxes for %s: %v", spaceID, err)
		h.failRequest(connID, models.ErrorCodeInternal, spaceID)
		return
	}

	batch, err := h.loadUpdatesAfter(spaceID, -1)
	if err != nil {
		glog.Errorf("failed to load updates for %s: %v", spaceID, err)
		h.failRequest(connID, models.ErrorCodeInternal, spaceID)
		return
	}

	h.registry.Subscribe(connID, spaceID)
	h.send(connID, models.SpaceSnapshot{
		ID:       spaceID,
		Events:   log,
		State:    state,
		KeyBoxes: keyBoxes,
		Updates:  &batch,
	})
}

func (h *SyncHandler) handlePostInboxMessage(connID uint64, account string, msg models.PostInboxMessage) {
	spaceID := msg.SpaceID

	state, err := h.store.GetSpaceState(spaceID)
	if err != nil {
		h.failRequest(connID, errorCode(err), spaceID)
		return
	}
	inbox, ok := state.Inboxes[msg.InboxID]
	if !ok {
		h.failRequest(connID, models.ErrorCodeNotFound, spaceID)
		return
	}
	// Public inboxes take messages from anyone with the inbox key;
	// private ones only from members.
	if !inbox.IsPublic && !state.IsMember(account) {
		h.failRequest(connID, models.ErrorCodeUnauthorized, spaceID)
		return
	}

	message := models.InboxMessage{
		MessageID:  uuid.New().String(),
		SpaceID:    spaceID,
		InboxID:    msg.InboxID,
		Ciphertext: msg.Ciphertext,
		CreatedAt:  time.Now().UTC(),
	}
	if err := h.store.SaveInboxMessage(message); err != nil {
		glog.Errorf("failed to save inbox message for %s: %v", spaceID, err)
		h.failRequest(connID, models.ErrorCodeInternal, spaceID)
		return
	}

	h.broadcastToSpace(spaceID, models.InboxMessageNotification{Message: message}, 0)
}
