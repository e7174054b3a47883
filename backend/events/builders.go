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
	"github.com/graphprotocol/hypergraph-sub001/backend/crypto"
)

// signEvent wraps a transaction into a signed event authored by kp.
func signEvent(kp *crypto.SignatureKeyPair, tx Transaction) (SpaceEvent, error) {
	sig, err := crypto.SignValue(kp, tx)
	if err != nil {
		return SpaceEvent{}, err
	}
	return SpaceEvent{
		Transaction: tx,
		Author: Author{
			AccountID:          kp.Address(),
			SignaturePublicKey: kp.PublicKeyHex(),
		},
		Signature: sig,
	}, nil
}

// NewCreateSpaceEvent builds the signed genesis event for a new space.
func NewCreateSpaceEvent(kp *crypto.SignatureKeyPair, spaceID string) (SpaceEvent, error) {
	return signEvent(kp, Transaction{
		Type:    TransactionCreateSpace,
		SpaceID: spaceID,
	})
}

// NewCreateInvitationEvent builds a signed invitation for invitee on top of
// the current log head. It grants membership on acceptance; key access is
// granted separately through key boxes shipped alongside.
func NewCreateInvitationEvent(kp *crypto.SignatureKeyPair, spaceID, previousEventHash, inviteeAccountID string) (SpaceEvent, error) {
	return signEvent(kp, Transaction{
		Type:              TransactionCreateInvitation,
		SpaceID:           spaceID,
		PreviousEventHash: previousEventHash,
		InviteeAccountID:  inviteeAccountID,
	})
}

// NewAcceptInvitationEvent builds the signed acceptance of an open
// invitation addressed to the author.
func NewAcceptInvitationEvent(kp *crypto.SignatureKeyPair, spaceID, previousEventHash string) (SpaceEvent, error) {
	return signEvent(kp, Transaction{
		Type:              TransactionAcceptInvitation,
		SpaceID:           spaceID,
		PreviousEventHash: previousEventHash,
	})
}

// NewCreateSpaceInboxEvent builds a signed inbox-creation event.
func NewCreateSpaceInboxEvent(kp *crypto.SignatureKeyPair, spaceID, previousEventHash string, inbox InboxMeta) (SpaceEvent, error) {
	return signEvent(kp, Transaction{
		Type:                     TransactionCreateSpaceInbox,
		SpaceID:                  spaceID,
		PreviousEventHash:        previousEventHash,
		InboxID:                  inbox.ID,
		InboxEncryptionPublicKey: inbox.EncryptionPublicKey,
		InboxIsPublic:            inbox.IsPublic,
	})
}

// NewRemoveMemberEvent builds a signed member removal. Only admins pass
// authorization.
func NewRemoveMemberEvent(kp *crypto.SignatureKeyPair, spaceID, previousEventHash, memberAccountID string) (SpaceEvent, error) {
	return signEvent(kp, Transaction{
		Type:              TransactionRemoveMember,
		SpaceID:           spaceID,
		PreviousEventHash: previousEventHash,
		MemberAccountID:   memberAccountID,
	})
}
