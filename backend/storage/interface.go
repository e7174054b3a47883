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

package storage

import (
	"errors"

	"github.com/graphprotocol/hypergraph-sub001/backend/events"
	"github.com/graphprotocol/hypergraph-sub001/backend/models"
)

// ErrNotFound is returned when a requested space, invitation or update
// range does not exist.
var ErrNotFound = errors.New("storage: not found")

type EventStore interface {
	// AppendEvent persists one accepted event at position counter in the
	// space log, together with the state that results from applying it.
	// The stored state backs membership checks and space listings without
	// a replay.
	AppendEvent(spaceID string, counter int64, event events.SpaceEvent, state *events.SpaceState) error
	GetEvents(spaceID string) ([]events.SpaceEvent, error)
	// EventCount returns the length of the space log, which is also the
	// counter of the next event to append.
	EventCount(spaceID string) (int64, error)
	GetSpaceState(spaceID string) (*events.SpaceState, error)
	SpaceExists(spaceID string) (bool, error)
	ListSpacesForAccount(accountID string) ([]models.SpaceSummary, error)
}

type UpdateStore interface {
	SaveUpdate(update models.Update) error
	// GetUpdatesAfter returns the stored updates with clock strictly
	// greater than afterClock, in clock order. Pass -1 for all updates.
	GetUpdatesAfter(spaceID string, afterClock int64) ([]models.Update, error)
	// LatestUpdateClock returns -1 when the space has no updates.
	LatestUpdateClock(spaceID string) (int64, error)
}

type KeyBoxStore interface {
	// SaveKeyBoxes is idempotent: re-sending a key box that already
	// exists is a no-op, so a client can safely retry after a crash.
	SaveKeyBoxes(boxes []models.KeyBox) error
	GetKeyBoxes(spaceID, accountID string) ([]models.KeyBox, error)
}

type InvitationStore interface {
	SaveInvitation(inv events.Invitation) error
	DeleteInvitation(invitationID string) error
	ListInvitationsForAccount(accountID string) ([]events.Invitation, error)
}

type InboxStore interface {
	SaveInboxMessage(msg models.InboxMessage) error
	GetInboxMessages(spaceID, inboxID string, limit int) ([]models.InboxMessage, error)
}

type Store interface {
	EventStore
	UpdateStore
	KeyBoxStore
	InvitationStore
	InboxStore
}
