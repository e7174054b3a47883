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

func (s *Store) SaveKeyBoxes(boxes []models.KeyBox) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, box := range boxes {
		_, err = tx.Exec(`
			INSERT INTO key_boxes (box_id, space_id, account_address,
				ciphertext, nonce, author_public_key, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (space_id, box_id, account_address) DO NOTHING`,
			box.ID, box.SpaceID, box.AccountID,
			box.Ciphertext, box.Nonce, box.AuthorPublicKey, time.Now())
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *Store) GetKeyBoxes(spaceID, accountID string) ([]models.KeyBox, error) {
	rows, err := s.db.Query(`
		SELECT box_id, ciphertext, nonce, author_public_key
		FROM key_boxes
		WHERE space_id = $1 AND account_address = $2
		ORDER BY created_at, box_id`, spaceID, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var boxes []models.KeyBox
	for rows.Next() {
		box := models.KeyBox{SpaceID: spaceID, AccountID: accountID}
		if err := rows.Scan(&box.ID, &box.Ciphertext, &box.Nonce, &box.AuthorPublicKey); err != nil {
			return nil, err
		}
		boxes = append(boxes, box)
	}
	return boxes, rows.Err()
}
