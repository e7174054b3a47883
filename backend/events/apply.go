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
	"errors"
	"fmt"

	"github.com/graphprotocol/hypergraph-sub001/backend/crypto"
)

var (
	// ErrStaleEvent means the transaction's PreviousEventHash does not
	// match the current head of the log. Retryable: re-fetch state and
	// rebuild the event on the new head.
	ErrStaleEvent = errors.New("events: stale event, hash chain mismatch")

	// ErrInvalidSignature means the event signature does not verify
	// against the author's signature public key. Permanent.
	ErrInvalidSignature = errors.New("events: invalid event signature")

	// ErrUnauthorizedTransaction means the author is not allowed to issue
	// this transaction against the current state. Permanent.
	ErrUnauthorizedTransaction = errors.New("events: unauthorized transaction")

	// ErrInvalidTransaction means the transaction is malformed regardless
	// of state.
	ErrInvalidTransaction = errors.New("events: invalid transaction")
)

// ApplyEvent folds one event into the space state. A nil state accepts only
// the genesis create-space transaction. Checks run in order: authorization
// against state, hash chain, signature. On any failure the input state is
// returned unchanged.
func ApplyEvent(state *SpaceState, event SpaceEvent) (*SpaceState, error) {
	tx := event.Transaction

	if state == nil {
		if tx.Type != TransactionCreateSpace {
			return nil, fmt.Errorf("%w: %s requires an existing space", ErrUnauthorizedTransaction, tx.Type)
		}
		return applyGenesis(event)
	}

	if tx.SpaceID != state.ID {
		return state, fmt.Errorf("%w: transaction targets space %s, state is %s", ErrInvalidTransaction, tx.SpaceID, state.ID)
	}

	if err := authorize(state, event); err != nil {
		return state, err
	}

	if tx.PreviousEventHash != state.LastEventHash {
		return state, ErrStaleEvent
	}

	if err := verifyEventSignature(event); err != nil {
		return state, err
	}

	hash, err := tx.Hash()
	if err != nil {
		return state, fmt.Errorf("%w: %v", ErrInvalidTransaction, err)
	}

	next := state.clone()
	next.LastEventHash = hash

	switch tx.Type {
	case TransactionCreateInvitation:
		id := InvitationID(tx.SpaceID, tx.InviteeAccountID, tx.PreviousEventHash)
		next.Invitations[id] = Invitation{
			ID:                id,
			SpaceID:           tx.SpaceID,
			InviteeAccountID:  tx.InviteeAccountID,
			PreviousEventHash: tx.PreviousEventHash,
		}
	case TransactionAcceptInvitation:
		// Every open invitation addressed to the author is satisfied by
		// one acceptance. Consuming all of them keeps the fold
		// deterministic when duplicates were issued.
		for id, inv := range next.Invitations {
			if inv.InviteeAccountID == event.Author.AccountID {
				delete(next.Invitations, id)
			}
		}
		next.Members[event.Author.AccountID] = RoleMember
		delete(next.RemovedMembers, event.Author.AccountID)
	case TransactionCreateSpaceInbox:
		next.Inboxes[tx.InboxID] = InboxMeta{
			ID:                  tx.InboxID,
			CreatorAccountID:    event.Author.AccountID,
			EncryptionPublicKey: tx.InboxEncryptionPublicKey,
			IsPublic:            tx.InboxIsPublic,
		}
	case TransactionRemoveMember:
		delete(next.Members, tx.MemberAccountID)
		next.RemovedMembers[tx.MemberAccountID] = true
	}

	return next, nil
}

func applyGenesis(event SpaceEvent) (*SpaceState, error) {
	tx := event.Transaction
	if tx.SpaceID == "" {
		return nil, fmt.Errorf("%w: create-space without space id", ErrInvalidTransaction)
	}
	if tx.PreviousEventHash != "" {
		return nil, fmt.Errorf("%w: genesis event must not reference a predecessor", ErrInvalidTransaction)
	}
	if err := verifyEventSignature(event); err != nil {
		return nil, err
	}
	hash, err := tx.Hash()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTransaction, err)
	}
	return &SpaceState{
		ID:             tx.SpaceID,
		Members:        map[string]Role{event.Author.AccountID: RoleAdmin},
		RemovedMembers: map[string]bool{},
		Invitations:    map[string]Invitation{},
		Inboxes:        map[string]InboxMeta{},
		LastEventHash:  hash,
	}, nil
}

func authorize(state *SpaceState, event SpaceEvent) error {
	tx := event.Transaction
	author := event.Author.AccountID

	switch tx.Type {
	case TransactionCreateSpace:
		return fmt.Errorf("%w: space already exists", ErrUnauthorizedTransaction)
	case TransactionCreateInvitation:
		if !state.IsMember(author) {
			return fmt.Errorf("%w: inviter %s is not a member", ErrUnauthorizedTransaction, author)
		}
		if tx.InviteeAccountID == "" {
			return fmt.Errorf("%w: invitation without invitee", ErrInvalidTransaction)
		}
		if state.IsMember(tx.InviteeAccountID) {
			return fmt.Errorf("%w: invitee %s is already a member", ErrUnauthorizedTransaction, tx.InviteeAccountID)
		}
	case TransactionAcceptInvitation:
		if _, ok := state.InvitationFor(author); !ok {
			return fmt.Errorf("%w: no open invitation for %s", ErrUnauthorizedTransaction, author)
		}
	case TransactionCreateSpaceInbox:
		if !state.IsMember(author) {
			return fmt.Errorf("%w: inbox creator %s is not a member", ErrUnauthorizedTransaction, author)
		}
		if tx.InboxID == "" {
			return fmt.Errorf("%w: inbox without id", ErrInvalidTransaction)
		}
		if _, exists := state.Inboxes[tx.InboxID]; exists {
			return fmt.Errorf("%w: inbox %s already exists", ErrUnauthorizedTransaction, tx.InboxID)
		}
	case TransactionRemoveMember:
		if !state.IsAdmin(author) {
			return fmt.Errorf("%w: %s is not an admin", ErrUnauthorizedTransaction, author)
		}
		if !state.IsMember(tx.MemberAccountID) {
			return fmt.Errorf("%w: %s is not a member", ErrUnauthorizedTransaction, tx.MemberAccountID)
		}
	default:
		return fmt.Errorf("%w: unknown transaction type %q", ErrInvalidTransaction, tx.Type)
	}
	return nil
}

func verifyEventSignature(event SpaceEvent) error {
	if event.Author.AccountID != crypto.AddressFromPublicKey(event.Author.SignaturePublicKey) {
		return fmt.Errorf("%w: signature public key does not belong to author account", ErrInvalidSignature)
	}
	if err := crypto.VerifyValue(event.Signature, event.Transaction, event.Author.SignaturePublicKey); err != nil {
		return ErrInvalidSignature
	}
	return nil
}

// FoldEvents replays an ordered event sequence from scratch. Deterministic:
// the same sequence always yields the same state.
func FoldEvents(list []SpaceEvent) (*SpaceState, error) {
	var state *SpaceState
	for i, event := range list {
		next, err := ApplyEvent(state, event)
		if err != nil {
			return state, fmt.Errorf("event %d: %w", i, err)
		}
		state = next
	}
	return state, nil
}
