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

package events

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/graphprotocol/hypergraph-sub001/backend/crypto"
)

// TransactionType discriminates the closed set of space transactions.
type TransactionType string

const (
	TransactionCreateSpace      TransactionType = "create-space"
	TransactionCreateInvitation TransactionType = "create-invitation"
	TransactionAcceptInvitation TransactionType = "accept-invitation"
	TransactionCreateSpaceInbox TransactionType = "create-space-inbox"
	TransactionRemoveMember     TransactionType = "remove-member"
)

// Transaction is the signed payload of a space event. Fields beyond Type,
// SpaceID and PreviousEventHash are populated per variant. The transaction
// hash over the canonical encoding is what links events into the chain.
type Transaction struct {
	Type    TransactionType `json:"type"`
	SpaceID string          `json:"spaceId"`

	// Hash of the previous transaction in the space log. Empty only for
	// the genesis create-space transaction.
	PreviousEventHash string `json:"previousEventHash,omitempty"`

	// create-invitation
	InviteeAccountID string `json:"inviteeAccountId,omitempty"`

	// remove-member
	MemberAccountID string `json:"memberAccountId,omitempty"`

	// create-space-inbox
	InboxID                  string `json:"inboxId,omitempty"`
	InboxEncryptionPublicKey string `json:"inboxEncryptionPublicKey,omitempty"`
	InboxIsPublic            bool   `json:"inboxIsPublic,omitempty"`
}

// Hash returns the hex sha256 of the canonical transaction encoding.
func (tx Transaction) Hash() (string, error) {
	return crypto.HashValue(tx)
}

// Author identifies who produced an event: the account and the signature
// public key the event signature must verify against.
type Author struct {
	AccountID          string `json:"accountId"`
	SignaturePublicKey string `json:"signaturePublicKey"`
}

// SpaceEvent is one immutable entry of the space event log.
type SpaceEvent struct {
	Transaction Transaction      `json:"transaction"`
	Author      Author           `json:"author"`
	Signature   crypto.Signature `json:"signature"`
}

// InvitationID derives the invitation id for a create-invitation
// transaction. It is deterministic over the fields the acceptance will
// reference, so inviter, server and invitee agree on it without
// coordination.
func InvitationID(spaceID, inviteeAccountID, previousEventHash string) string {
	sum := sha256.Sum256([]byte(spaceID + "|" + inviteeAccountID + "|" + previousEventHash))
	return hex.EncodeToString(sum[:16])
}

// Invitation is an open invitation recorded in space state.
type Invitation struct {
	ID                string `json:"id"`
	SpaceID           string `json:"spaceId"`
	InviteeAccountID  string `json:"inviteeAccountId"`
	PreviousEventHash string `json:"previousEventHash"`
}

// InboxMeta describes a space inbox created by a member.
type InboxMeta struct {
	ID                  string `json:"id"`
	CreatorAccountID    string `json:"creatorAccountId"`
	EncryptionPublicKey string `json:"encryptionPublicKey"`
	IsPublic            bool   `json:"isPublic"`
}
