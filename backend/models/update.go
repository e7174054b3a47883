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

package models

import (
	"time"

	"github.com/graphprotocol/hypergraph-sub001/backend/crypto"
)

// Update is one encrypted CRDT delta. Content is the hex-encoded,
// nonce-prefixed symmetric ciphertext; the signature is over the raw
// ciphertext bytes and recovers to the author's account. Clock is assigned
// by the server on acceptance, never by the client.
type Update struct {
	UpdateID  string           `json:"updateId"`
	SpaceID   string           `json:"spaceId"`
	AccountID string           `json:"accountId"`
	Content   string           `json:"content"`
	Signature crypto.Signature `json:"signature"`
	Clock     int64            `json:"clock"`
}

// Updates is a batch of updates contiguous by construction:
// LastUpdateClock - FirstUpdateClock + 1 == len(Updates), in clock order.
type Updates struct {
	Updates          []Update `json:"updates"`
	FirstUpdateClock int64    `json:"firstUpdateClock"`
	LastUpdateClock  int64    `json:"lastUpdateClock"`
}

// KeyBox is a symmetric space key asymmetrically encrypted to one
// recipient. The server stores it as opaque ciphertext; only the holder of
// the matching encryption private key can open it.
type KeyBox struct {
	ID              string `json:"id"`
	SpaceID         string `json:"spaceId"`
	AccountID       string `json:"accountId"`
	Ciphertext      string `json:"ciphertext"`
	Nonce           string `json:"nonce"`
	AuthorPublicKey string `json:"authorPublicKey"`
}

// InboxMessage is an encrypted message posted to a space inbox. Ephemeral:
// stored with a TTL, not part of the event log.
type InboxMessage struct {
	MessageID  string    `json:"messageId"`
	SpaceID    string    `json:"spaceId"`
	InboxID    string    `json:"inboxId"`
	Ciphertext string    `json:"ciphertext"`
	CreatedAt  time.Time `json:"createdAt"`
}

// SpaceSummary is one entry of a list-spaces response.
type SpaceSummary struct {
	ID            string `json:"id"`
	LastEventHash string `json:"lastEventHash"`
	MemberCount   int    `json:"memberCount"`
}
