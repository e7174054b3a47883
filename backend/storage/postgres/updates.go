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

	"github.com/graphprotocol/hypergraph-sub001/backend/models"
)

func (s *Store) SaveUpdate(update models.Update) error {
	_, err := s.db.Exec(`
		INSERT INTO space_updates (space_id, clock, update_id, account_address,
			content, signature_hex, signature_recovery, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		update.SpaceID, update.Clock, update.UpdateID, update.AccountID,
		update.Content, update.Signature.Hex, update.Signature.Recovery, time.Now())
	return err
}

func (s *Store) GetUpdatesAfter(spaceID string, afterClock int64) ([]models.Update, error) {
	rows, err := s.db.Query(`
		SELECT update_id, account_address, content, signature_hex, signature_recovery, clock
		FROM space_updates
		WHERE space_id = $1 AND clock > $2
		ORDER BY clock`, spaceID, afterClock)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var updates []models.Update
	for rows.Next() {
		u := models.Update{SpaceID: spaceID}
		err := rows.Scan(&u.UpdateID, &u.AccountID, &u.Content,
			&u.Signature.Hex, &u.Signature.Recovery, &u.Clock)
		if err != nil {
			return nil, err
		}
		updates = append(updates, u)
	}
	return updates, rows.Err()
}

func (s *Store) LatestUpdateClock(spaceID string) (int64, error) {
	var clock int64
	err := s.db.QueryRow(`
		SELECT COALESCE(MAX(clock), -1) FROM space_updates
		WHERE space_id = $1`, spaceID).Scan(&clock)
	return clock, err
}
