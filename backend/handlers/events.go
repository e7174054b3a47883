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
	"errors"

	"github.com/golang/glog"

	"github.com/graphprotocol/hypergraph-sub001/backend/events"
	"github.com/graphprotocol/hypergraph-sub001/backend/models"
	"github.com/graphprotocol/hypergraph-sub001/backend/storage"
)

// errorCode maps an event application error to its wire code.
func errorCode(err error) string {
	switch {
	case errors.Is(err, events.ErrStaleEvent):
		return models.ErrorCodeStaleEvent
	case errors.Is(err, events.ErrInvalidSignature):
		return models.ErrorCodeBadSignature
	case errors.Is(err, events.ErrUnauthorizedTransaction),
		errors.Is(err, events.ErrInvalidTransaction):
		return models.ErrorCodeUnauthorized
	case errors.Is(err, storage.ErrNotFound):
		return models.ErrorCodeNotFound
	}
	return models.ErrorCodeInternal
}

func (h *SyncHandler) handleCreateSpaceEvent(connID uint64, account string, msg models.CreateSpaceEvent) {
	spaceID := msg.SpaceID

	// The socket identity must match the event author; a valid signature
	// from someone else's key is still someone else's event.
	if msg.Event.Author.AccountID != account {
		h.failRequest(connID, models.ErrorCodeUnauthorized, spaceID)
		return
	}

	// The signed transaction names the space. The envelope must agree, or
	// a genesis for one space gets filed under another id and wedges it:
	// every later event would fail the state's space id check.
	if msg.Event.Transaction.SpaceID != spaceID {
		h.failRequest(connID, models.ErrorCodeUnauthorized, spaceID)
		return
	}

	lock := h.locks.get(spaceID)
	lock.Lock()
	defer lock.Unlock()

	exists, err := h.store.SpaceExists(spaceID)
	if err != nil {
		glog.Errorf("space existence check failed for %s: %v", spaceID, err)
		h.failRequest(connID, models.ErrorCodeInternal, spaceID)
		return
	}
	if exists {
		h.failRequest(connID, models.ErrorCodeUnauthorized, spaceID)
		return
	}

	state, err := events.ApplyEvent(nil, msg.Event)
	if err != nil {
		h.failRequest(connID, errorCode(err), spaceID)
		return
	}

	if err := h.store.AppendEvent(spaceID, 0, msg.Event, state); err != nil {
		glog.Errorf("failed to append genesis event for %s: %v", spaceID, err)
		h.failRequest(connID, models.ErrorCodeInternal, spaceID)
		return
	}

	// The creator ships their own key box so other devices and later
	// sessions can recover the space key from the server.
	if msg.KeyBox != nil {
		if err := h.store.SaveKeyBoxes([]models.KeyBox{*msg.KeyBox}); err != nil {
			glog.Errorf("failed to save creator key box for %s: %v", spaceID, err)
			h.failRequest(connID, models.ErrorCodeInternal, spaceID)
			return
		}
	}

	h.registry.Subscribe(connID, spaceID)
	h.send(connID, models.SpaceEventMessage{SpaceID: spaceID, Event: msg.Event})
}

// appendEvent folds a non-genesis event onto the stored log and persists
// it. Returns the state after the event, or false after replying with the
// failure code. The per-space lock serializes the read-validate-append
// sequence: of two events built on the same head, the loser re-reads the
// new head and fails with the retryable stale-event code.
func (h *SyncHandler) appendEvent(connID uint64, account, spaceID string, event events.SpaceEvent) (*events.SpaceState, bool) {
	if event.Author.AccountID != account {
		h.failRequest(connID, models.ErrorCodeUnauthorized, spaceID)
		return nil, false
	}

	lock := h.locks.get(spaceID)
	lock.Lock()
	defer lock.Unlock()

	state, err := h.store.GetSpaceState(spaceID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			glog.Errorf("failed to load state for %s: %v", spaceID, err)
		}
		h.failRequest(connID, errorCode(err), spaceID)
		return nil, false
	}

	next, err := events.ApplyEvent(state, event)
	if err != nil {
		h.failRequest(connID, errorCode(err), spaceID)
		return nil, false
	}

	counter, err := h.store.EventCount(spaceID)
	if err != nil {
		glog.Errorf("failed to count events for %s: %v", spaceID, err)
		h.failRequest(connID, models.ErrorCodeInternal, spaceID)
		return nil, false
	}

	if err := h.store.AppendEvent(spaceID, counter, event, next); err != nil {
		glog.Errorf("failed to append event for %s: %v", spaceID, err)
		h.failRequest(connID, models.ErrorCodeInternal, spaceID)
		return nil, false
	}

	return next, true
}

func (h *SyncHandler) handleCreateInvitationEvent(connID uint64, account string, msg models.CreateInvitationEvent) {
	spaceID := msg.SpaceID
	tx := msg.Event.Transaction

	if _, ok := h.appendEvent(connID, account, spaceID, msg.Event); !ok {
		return
	}

	invitation := events.Invitation{
		ID:                events.InvitationID(spaceID, tx.InviteeAccountID, tx.PreviousEventHash),
		SpaceID:           spaceID,
		InviteeAccountID:  tx.InviteeAccountID,
		PreviousEventHash: tx.PreviousEventHash,
	}
	if err := h.store.SaveInvitation(invitation); err != nil {
		glog.Errorf("failed to save invitation %s: %v", invitation.ID, err)
		h.failRequest(connID, models.ErrorCodeInternal, spaceID)
		return
	}

	// Key boxes ride along with the invitation. Saving is idempotent, so
	// a client that crashed after the event went through can replay the
	// whole request.
	if err := h.store.SaveKeyBoxes(msg.KeyBoxes); err != nil {
		glog.Errorf("failed to save key boxes for %s: %v", spaceID, err)
		h.failRequest(connID, models.ErrorCodeInternal, spaceID)
		return
	}

	h.send(connID, models.SpaceEventMessage{SpaceID: spaceID, Event: msg.Event})
	h.broadcastToSpace(spaceID, models.SpaceEventMessage{SpaceID: spaceID, Event: msg.Event}, connID)

	// Push the refreshed invitation list to the invitee's devices.
	invitations, err := h.store.ListInvitationsForAccount(tx.InviteeAccountID)
	if err != nil {
		glog.Errorf("failed to list invitations for %s: %v", tx.InviteeAccountID, err)
		return
	}
	h.broadcastToAccount(tx.InviteeAccountID, models.InvitationsList{Invitations: invitations})
}

func (h *SyncHandler) handleAcceptInvitationEvent(connID uint64, account string, msg models.AcceptInvitationEvent) {
	spaceID := msg.SpaceID

	// Resolve the invitation from the pre-acceptance state; applying the
	// event consumes it.
	state, err := h.store.GetSpaceState(spaceID)
	if err != nil {
		h.failRequest(connID, errorCode(err), spaceID)
		return
	}
	invitation, ok := state.InvitationFor(account)
	if !ok {
		h.failRequest(connID, models.ErrorCodeUnauthorized, spaceID)
		return
	}

	if _, ok := h.appendEvent(connID, account, spaceID, msg.Event); !ok {
		return
	}

	// The fold consumes every invitation addressed to the account; drop
	// the stored rows to match.
	for _, inv := range state.Invitations {
		if inv.InviteeAccountID != account {
			continue
		}
		if err := h.store.DeleteInvitation(inv.ID); err != nil {
			glog.Errorf("failed to delete invitation %s: %v", inv.ID, err)
		}
	}

	h.broadcastToSpace(spaceID, models.SpaceEventMessage{SpaceID: spaceID, Event: msg.Event}, connID)
	h.broadcastToAccount(account, models.InvitationAccepted{
		InvitationID: invitation.ID,
		SpaceID:      spaceID,
	})
}

func (h *SyncHandler) handleCreateSpaceInboxEvent(connID uint64, account string, msg models.CreateSpaceInboxEvent) {
	spaceID := msg.SpaceID

	if _, ok := h.appendEvent(connID, account, spaceID, msg.Event); !ok {
		return
	}

	h.send(connID, models.SpaceEventMessage{SpaceID: spaceID, Event: msg.Event})
	h.broadcastToSpace(spaceID, models.SpaceEventMessage{SpaceID: spaceID, Event: msg.Event}, connID)
}
