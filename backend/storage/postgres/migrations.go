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

func (s *Store) Migrate() error {
	migrations := []string{
		// Spaces table: one row per space, with the state derived from
		// the event log so membership checks need no replay.
		`CREATE TABLE IF NOT EXISTS spaces (
			space_id VARCHAR(255) PRIMARY KEY,
			last_event_hash VARCHAR(64) NOT NULL,
			state BYTEA NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		// Space event log. counter is the zero-based log position;
		// the payload is the signed event as submitted.
		`CREATE TABLE IF NOT EXISTS space_events (
			space_id VARCHAR(255) NOT NULL,
			counter BIGINT NOT NULL,
			event_hash VARCHAR(64) NOT NULL,
			payload BYTEA NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (space_id, counter),
			FOREIGN KEY (space_id) REFERENCES spaces(space_id) ON DELETE CASCADE
		)`,

		// Space members, maintained alongside each appended event.
		`CREATE TABLE IF NOT EXISTS space_members (
			space_id VARCHAR(255) NOT NULL,
			account_address VARCHAR(64) NOT NULL,
			role VARCHAR(20) NOT NULL,
			PRIMARY KEY (space_id, account_address),
			FOREIGN KEY (space_id) REFERENCES spaces(space_id) ON DELETE CASCADE
		)`,

		`CREATE INDEX IF NOT EXISTS idx_member_spaces
		ON space_members(account_address, space_id)`,

		// Encrypted updates, keyed by the server-assigned clock.
		`CREATE TABLE IF NOT EXISTS space_updates (
			space_id VARCHAR(255) NOT NULL,
			clock BIGINT NOT NULL,
			update_id VARCHAR(64) NOT NULL,
			account_address VARCHAR(64) NOT NULL,
			content TEXT NOT NULL,
			signature_hex TEXT NOT NULL,
			signature_recovery INTEGER NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (space_id, clock),
			FOREIGN KEY (space_id) REFERENCES spaces(space_id) ON DELETE CASCADE
		)`,

		// Sealed space keys, one row per (space, key, recipient). The
		// unique constraint makes re-sending key boxes a no-op.
		`CREATE TABLE IF NOT EXISTS key_boxes (
			box_id VARCHAR(64) NOT NULL,
			space_id VARCHAR(255) NOT NULL,
			account_address VARCHAR(64) NOT NULL,
			ciphertext TEXT NOT NULL,
			nonce TEXT NOT NULL,
			author_public_key TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (space_id, box_id, account_address),
			FOREIGN KEY (space_id) REFERENCES spaces(space_id) ON DELETE CASCADE
		)`,

		`CREATE INDEX IF NOT EXISTS idx_key_boxes_recipient
		ON key_boxes(space_id, account_address)`,

		// Open invitations, indexed by invitee for list-invitations.
		`CREATE TABLE IF NOT EXISTS invitations (
			invitation_id VARCHAR(64) PRIMARY KEY,
			space_id VARCHAR(255) NOT NULL,
			invitee_account_address VARCHAR(64) NOT NULL,
			previous_event_hash VARCHAR(64) NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (space_id) REFERENCES spaces(space_id) ON DELETE CASCADE
		)`,

		`CREATE INDEX IF NOT EXISTS idx_invitations_invitee
		ON invitations(invitee_account_address)`,

		// Note: inbox messages are stored in Redis with a TTL.
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
