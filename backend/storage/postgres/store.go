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

	"github.com/redis/go-redis/v9"

	"github.com/graphprotocol/hypergraph-sub001/backend/models"
	redisStore "github.com/graphprotocol/hypergraph-sub001/backend/storage/redis"
)

// Store persists the durable sync state in Postgres and delegates the
// ephemeral inbox traffic to Redis.
type Store struct {
	db         *sql.DB
	redis      *redis.Client
	inboxStore *redisStore.InboxStore
}

func NewStore(db *sql.DB, rdb *redis.Client) *Store {
	return &Store{
		db:         db,
		redis:      rdb,
		inboxStore: redisStore.NewInboxStore(rdb),
	}
}

// InboxNotifications exposes the Redis pub/sub channel for a space's inbox
// traffic so the websocket layer can fan messages out across server
// instances.
func (s *Store) InboxNotifications(spaceID string) *redis.PubSub {
	return s.inboxStore.SubscribeToInbox(spaceID)
}

func (s *Store) SaveInboxMessage(msg models.InboxMessage) error {
	return s.inboxStore.SaveInboxMessage(msg)
}

func (s *Store) GetInboxMessages(spaceID, inboxID string, limit int) ([]models.InboxMessage, error) {
	return s.inboxStore.GetInboxMessages(spaceID, inboxID, limit)
}
