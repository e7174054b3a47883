// Copyright (C) 2025 The Hypergraph Authors <dev@hypergraph.sh>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/graphprotocol/hypergraph-sub001/backend/models"
)

const (
	// Inbox messages are ephemeral: they live outside the event log and
	// expire after a week.
	InboxMessageTTL = 7 * 24 * time.Hour

	inboxQueuePrefix   = "inbox:queue:" // inbox:queue:{spaceId}:{inboxId} - list of message IDs
	inboxMessagePrefix = "inbox:msg:"   // inbox:msg:{messageId} - message content
	inboxNotifyPrefix  = "inbox:notify:" // inbox:notify:{spaceId} - pub/sub channel
)

type InboxStore struct {
	rdb *redis.Client
	ctx context.Context
}

func NewInboxStore(rdb *redis.Client) *InboxStore {
	return &InboxStore{
		rdb: rdb,
		ctx: context.Background(),
	}
}

// SaveInboxMessage stores an encrypted inbox message with a TTL and
// publishes a notification for cross-instance delivery.
func (s *InboxStore) SaveInboxMessage(msg models.InboxMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal inbox message: %w", err)
	}

	messageKey := inboxMessagePrefix + msg.MessageID
	if err := s.rdb.Set(s.ctx, messageKey, data, InboxMessageTTL).Err(); err != nil {
		return fmt.Errorf("failed to store message: %w", err)
	}

	queueKey := inboxQueuePrefix + msg.SpaceID + ":" + msg.InboxID
	if err := s.rdb.RPush(s.ctx, queueKey, msg.MessageID).Err(); err != nil {
		return fmt.Errorf("failed to add to queue: %w", err)
	}
	s.rdb.Expire(s.ctx, queueKey, InboxMessageTTL)

	s.rdb.Publish(s.ctx, inboxNotifyPrefix+msg.SpaceID, data)

	return nil
}

// GetInboxMessages retrieves the most recent messages of one inbox, oldest
// first. Expired entries are pruned from the queue as they are found.
func (s *InboxStore) GetInboxMessages(spaceID, inboxID string, limit int) ([]models.InboxMessage, error) {
	queueKey := inboxQueuePrefix + spaceID + ":" + inboxID

	messageIDs, err := s.rdb.LRange(s.ctx, queueKey, int64(-limit), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get message queue: %w", err)
	}

	var messages []models.InboxMessage
	for _, messageID := range messageIDs {
		messageKey := inboxMessagePrefix + messageID

		data, err := s.rdb.Get(s.ctx, messageKey).Result()
		if err == redis.Nil {
			s.rdb.LRem(s.ctx, queueKey, 1, messageID)
			continue
		} else if err != nil {
			return nil, fmt.Errorf("failed to get message: %w", err)
		}

		var msg models.InboxMessage
		if err := json.Unmarshal([]byte(data), &msg); err != nil {
			continue // Skip malformed messages
		}
		messages = append(messages, msg)
	}

	return messages, nil
}

// SubscribeToInbox subscribes to real-time inbox notifications for a space.
func (s *InboxStore) SubscribeToInbox(spaceID string) *redis.PubSub {
	return s.rdb.Subscribe(s.ctx, inboxNotifyPrefix+spaceID)
}

// CleanupExpiredMessages removes expired message IDs from inbox queues.
// Run periodically as a background job.
func (s *InboxStore) CleanupExpiredMessages() error {
	iter := s.rdb.Scan(s.ctx, 0, inboxQueuePrefix+"*", 0).Iterator()

	for iter.Next(s.ctx) {
		queueKey := iter.Val()

		messageIDs, err := s.rdb.LRange(s.ctx, queueKey, 0, -1).Result()
		if err != nil {
			continue
		}

		for _, messageID := range messageIDs {
			messageKey := inboxMessagePrefix + messageID
			if s.rdb.Exists(s.ctx, messageKey).Val() == 0 {
				s.rdb.LRem(s.ctx, queueKey, 1, messageID)
			}
		}

		if s.rdb.LLen(s.ctx, queueKey).Val() == 0 {
			s.rdb.Del(s.ctx, queueKey)
		}
	}

	return iter.Err()
}
