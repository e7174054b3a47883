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
	"database/sql"
	"encoding/json"
	"time"

	"github.com/graphprotocol/hypergraph-sub001/backend/events"
	"github.com/graphprotocol/hypergraph-sub001/backend/models"
	"github.com/graphprotocol/hypergraph-sub001/backend/storage"
)

func (s *Store) AppendEvent(spaceID string, counter int64, event events.SpaceEvent, state *events.SpaceState) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	stateRaw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	eventHash, err := event.Transaction.Hash()
	if err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO spaces (space_id, last_event_hash, state, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (space_id) DO UPDATE
		SET last_event_hash = $2, state = $3`,
		spaceID, state.LastEventHash, stateRaw, time.Now())
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
		INSERT INTO space_events (space_id, counter, event_hash, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		spaceID, counter, eventHash, payload, time.Now())
	if err != nil {
		return err
	}

	// Rewrite the derived membership rows from the new state. The log is
	// the source of truth; these rows only serve lookups.
	_, err = tx.Exec(`DELETE FROM space_members WHERE space_id = $1`, spaceID)
	if err != nil {
		return err
	}
	for account, role := range state.Members {
		if state.RemovedMembers[account] {
			continue
		}
		_, err = tx.Exec(`
			INSERT INTO space_members (space_id, account_address, role)
			VALUES ($1, $2, $3)`,
			spaceID, account, string(role))
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *Store) GetEvents(spaceID string) ([]events.SpaceEvent, error) {
	rows, err := s.db.Query(`
		SELECT payload FROM space_events
		WHERE space_id = $1 ORDER BY counter`, spaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var log []events.SpaceEvent
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var event events.SpaceEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			return nil, err
		}
		log = append(log, event)
	}
	return log, rows.Err()
}

func (s *Store) EventCount(spaceID string) (int64, error) {
	var count int64
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM space_events WHERE space_id = $1`, spaceID).Scan(&count)
	return count, err
}

func (s *Store) GetSpaceState(spaceID string) (*events.SpaceState, error) {
	var raw []byte
	err := s.db.QueryRow(`
		SELECT state FROM spaces WHERE space_id = $1`, spaceID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var state events.SpaceState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *Store) SpaceExists(spaceID string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(`
		SELECT EXISTS(SELECT 1 FROM spaces WHERE space_id = $1)`, spaceID).Scan(&exists)
	return exists, err
}

func (s *Store) ListSpacesForAccount(accountID string) ([]models.SpaceSummary, error) {
	rows, err := s.db.Query(`
		SELECT sp.space_id, sp.last_event_hash,
			(SELECT COUNT(*) FROM space_members sm2 WHERE sm2.space_id = sp.space_id)
		FROM spaces sp
		JOIN space_members sm ON sm.space_id = sp.space_id
		WHERE sm.account_address = $1
		ORDER BY sp.space_id`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []models.SpaceSummary
	for rows.Next() {
		var summary models.SpaceSummary
		if err := rows.Scan(&summary.ID, &summary.LastEventHash, &summary.MemberCount); err != nil {
			return nil, err
		}
		summaries = append(summaries, summary)
	}
	return summaries, rows.Err()
}
