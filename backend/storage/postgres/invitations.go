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

package postgres

import (
	"time"

	"github.com/graphprotocol/hypergraph-sub001/backend/events"
)

func (s *Store) SaveInvitation(inv events.Invitation) error {
	_, err := s.db.Exec(`
		INSERT INTO invitations (invitation_id, space_id, invitee_account_address,
			previous_event_hash, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (invitation_id) DO NOTHING`,
		inv.ID, inv.SpaceID, inv.InviteeAccountID, inv.PreviousEventHash, time.Now())
	return err
}

func (s *Store) DeleteInvitation(invitationID string) error {
	_, err := s.db.Exec(`
		DELETE FROM invitations WHERE invitation_id = $1`, invitationID)
	return err
}

func (s *Store) ListInvitationsForAccount(accountID string) ([]events.Invitation, error) {
	rows, err := s.db.Query(`
		SELECT invitation_id, space_id, invitee_account_address, previous_event_hash
		FROM invitations
		WHERE invitee_account_address = $1
		ORDER BY created_at`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invitations []events.Invitation
	for rows.Next() {
		var inv events.Invitation
		if err := rows.Scan(&inv.ID, &inv.SpaceID, &inv.InviteeAccountID, &inv.PreviousEventHash); err != nil {
			return nil, err
		}
		invitations = append(invitations, inv)
	}
	return invitations, rows.Err()
}
