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
	"encoding/json"
	"errors"
	"fmt"

	"github.com/graphprotocol/hypergraph-sub001/backend/events"
)

// The sync protocol is a tagged union in both directions: every frame is a
// JSON object with a "type" discriminator. The variant sets are closed;
// unknown tags fail decoding instead of being skipped.

// ErrUnknownMessageType is returned for a tag outside the closed variant set.
var ErrUnknownMessageType = errors.New("models: unknown message type")

// ClientMessage is a frame sent from client to server.
type ClientMessage interface{ clientMessage() }

// ServerMessage is a frame sent from server to client.
type ServerMessage interface{ serverMessage() }

// --- Client to server ---

// ListSpaces requests the summaries of all spaces the account belongs to.
type ListSpaces struct{}

// ListInvitations requests the open invitations addressed to the account.
type ListInvitations struct{}

// SubscribeSpace subscribes the connection to a space and requests its
// snapshot: events, state, the account's key boxes and stored updates.
type SubscribeSpace struct {
	ID string `json:"id"`
}

// CreateUpdate submits one encrypted delta. EphemeralID is a client-local
// correlation id for in-flight tracking; the server assigns the clock.
type CreateUpdate struct {
	EphemeralID string `json:"ephemeralId"`
	SpaceID     string `json:"spaceId"`
	Update      Update `json:"update"`
}

// CreateSpaceEvent submits a signed genesis event. KeyBox carries the
// creator's own sealed space key so the server can hand it back on a later
// device or session.
type CreateSpaceEvent struct {
	SpaceID string            `json:"spaceId"`
	Event   events.SpaceEvent `json:"event"`
	KeyBox  *KeyBox           `json:"keyBox,omitempty"`
}

// CreateInvitationEvent submits a signed invitation together with one key
// box per existing space key, sealed to the invitee. Event and key boxes
// travel in one request; the server stores key boxes idempotently so the
// inviter can safely re-send them after a crash.
type CreateInvitationEvent struct {
	SpaceID  string            `json:"spaceId"`
	Event    events.SpaceEvent `json:"event"`
	KeyBoxes []KeyBox          `json:"keyBoxes"`
}

// AcceptInvitationEvent submits a signed invitation acceptance.
type AcceptInvitationEvent struct {
	SpaceID string            `json:"spaceId"`
	Event   events.SpaceEvent `json:"event"`
}

// CreateSpaceInboxEvent submits a signed inbox-creation event.
type CreateSpaceInboxEvent struct {
	SpaceID string            `json:"spaceId"`
	Event   events.SpaceEvent `json:"event"`
}

// GetUpdates requests the stored updates with clock greater than
// AfterClock, used to backfill a detected gap.
type GetUpdates struct {
	SpaceID    string `json:"spaceId"`
	AfterClock int64  `json:"afterClock"`
}

// PostInboxMessage posts an encrypted message to a space inbox.
type PostInboxMessage struct {
	SpaceID    string `json:"spaceId"`
	InboxID    string `json:"inboxId"`
	Ciphertext string `json:"ciphertext"`
}

func (ListSpaces) clientMessage()            {}
func (ListInvitations) clientMessage()       {}
func (SubscribeSpace) clientMessage()        {}
func (CreateUpdate) clientMessage()          {}
func (CreateSpaceEvent) clientMessage()      {}
func (CreateInvitationEvent) clientMessage() {}
func (AcceptInvitationEvent) clientMessage() {}
func (CreateSpaceInboxEvent) clientMessage() {}
func (GetUpdates) clientMessage()            {}
func (PostInboxMessage) clientMessage()      {}

// --- Server to client ---

// SpacesList answers ListSpaces.
type SpacesList struct {
	Spaces []SpaceSummary `json:"spaces"`
}

// SpaceSnapshot answers SubscribeSpace with the full picture the client
// needs to catch up.
type SpaceSnapshot struct {
	ID       string              `json:"id"`
	Events   []events.SpaceEvent `json:"events"`
	State    *events.SpaceState  `json:"state"`
	KeyBoxes []KeyBox            `json:"keyBoxes"`
	Updates  *Updates            `json:"updates,omitempty"`
}

// SpaceEventMessage broadcasts a newly appended space event to subscribers.
type SpaceEventMessage struct {
	SpaceID string            `json:"spaceId"`
	Event   events.SpaceEvent `json:"event"`
}

// UpdateConfirmed acknowledges an accepted update to its sender with the
// assigned clock.
type UpdateConfirmed struct {
	UpdateID string `json:"updateId"`
	Clock    int64  `json:"clock"`
	SpaceID  string `json:"spaceId"`
}

// UpdatesNotification fans accepted updates out to the other subscribers,
// and carries backfill ranges in answer to GetUpdates.
type UpdatesNotification struct {
	SpaceID string  `json:"spaceId"`
	Updates Updates `json:"updates"`
}

// InvitationsList answers ListInvitations.
type InvitationsList struct {
	Invitations []events.Invitation `json:"invitations"`
}

// InvitationAccepted notifies that an invitation was consumed.
type InvitationAccepted struct {
	InvitationID string `json:"invitationId"`
	SpaceID      string `json:"spaceId"`
}

// InboxMessageNotification fans a posted inbox message out to subscribers.
type InboxMessageNotification struct {
	Message InboxMessage `json:"message"`
}

// RequestFailed reports a terminal failure of a client request. Code is one
// of the error codes below.
type RequestFailed struct {
	Code    string `json:"code"`
	SpaceID string `json:"spaceId,omitempty"`
}

// Error codes carried by RequestFailed.
const (
	ErrorCodeStaleEvent   = "stale-event"
	ErrorCodeUnauthorized = "unauthorized"
	ErrorCodeBadSignature = "bad-signature"
	ErrorCodeNotFound     = "not-found"
	ErrorCodeInternal     = "internal"
)

func (SpacesList) serverMessage()               {}
func (SpaceSnapshot) serverMessage()            {}
func (SpaceEventMessage) serverMessage()        {}
func (UpdateConfirmed) serverMessage()          {}
func (UpdatesNotification) serverMessage()      {}
func (InvitationsList) serverMessage()          {}
func (InvitationAccepted) serverMessage()       {}
func (InboxMessageNotification) serverMessage() {}
func (RequestFailed) serverMessage()            {}

// --- Encoding ---

func clientMessageTag(m ClientMessage) string {
	switch m.(type) {
	case ListSpaces:
		return "list-spaces"
	case ListInvitations:
		return "list-invitations"
	case SubscribeSpace:
		return "subscribe-space"
	case CreateUpdate:
		return "create-update"
	case CreateSpaceEvent:
		return "create-space-event"
	case CreateInvitationEvent:
		return "create-invitation-event"
	case AcceptInvitationEvent:
		return "accept-invitation-event"
	case CreateSpaceInboxEvent:
		return "create-space-inbox-event"
	case GetUpdates:
		return "get-updates"
	case PostInboxMessage:
		return "post-inbox-message"
	}
	return ""
}

func serverMessageTag(m ServerMessage) string {
	switch m.(type) {
	case SpacesList:
		return "list-spaces"
	case SpaceSnapshot:
		return "space"
	case SpaceEventMessage:
		return "space-event"
	case UpdateConfirmed:
		return "update-confirmed"
	case UpdatesNotification:
		return "updates-notification"
	case InvitationsList:
		return "list-invitations"
	case InvitationAccepted:
		return "invitation-accepted"
	case InboxMessageNotification:
		return "inbox-message"
	case RequestFailed:
		return "request-failed"
	}
	return ""
}

func encodeTagged(tag string, m any) ([]byte, error) {
	if tag == "" {
		return nil, fmt.Errorf("%w: %T", ErrUnknownMessageType, m)
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, err
	}
	if obj == nil {
		obj = map[string]json.RawMessage{}
	}
	tagRaw, _ := json.Marshal(tag)
	obj["type"] = tagRaw
	return json.Marshal(obj)
}

// EncodeClientMessage serializes a client frame with its type tag.
func EncodeClientMessage(m ClientMessage) ([]byte, error) {
	return encodeTagged(clientMessageTag(m), m)
}

// EncodeServerMessage serializes a server frame with its type tag.
func EncodeServerMessage(m ServerMessage) ([]byte, error) {
	return encodeTagged(serverMessageTag(m), m)
}

func decodeInto[T any](data []byte) (T, error) {
	var m T
	err := json.Unmarshal(data, &m)
	return m, err
}

// DecodeClientMessage parses a client frame by its type tag.
func DecodeClientMessage(data []byte) (ClientMessage, error) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	switch env.Type {
	case "list-spaces":
		return decodeInto[ListSpaces](data)
	case "list-invitations":
		return decodeInto[ListInvitations](data)
	case "subscribe-space":
		return decodeInto[SubscribeSpace](data)
	case "create-update":
		return decodeInto[CreateUpdate](data)
	case "create-space-event":
		return decodeInto[CreateSpaceEvent](data)
	case "create-invitation-event":
		return decodeInto[CreateInvitationEvent](data)
	case "accept-invitation-event":
		return decodeInto[AcceptInvitationEvent](data)
	case "create-space-inbox-event":
		return decodeInto[CreateSpaceInboxEvent](data)
	case "get-updates":
		return decodeInto[GetUpdates](data)
	case "post-inbox-message":
		return decodeInto[PostInboxMessage](data)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownMessageType, env.Type)
}

// DecodeServerMessage parses a server frame by its type tag.
func DecodeServerMessage(data []byte) (ServerMessage, error) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	switch env.Type {
	case "list-spaces":
		return decodeInto[SpacesList](data)
	case "space":
		return decodeInto[SpaceSnapshot](data)
	case "space-event":
		return decodeInto[SpaceEventMessage](data)
	case "update-confirmed":
		return decodeInto[UpdateConfirmed](data)
	case "updates-notification":
		return decodeInto[UpdatesNotification](data)
	case "list-invitations":
		return decodeInto[InvitationsList](data)
	case "invitation-accepted":
		return decodeInto[InvitationAccepted](data)
	case "inbox-message":
		return decodeInto[InboxMessageNotification](data)
	case "request-failed":
		return decodeInto[RequestFailed](data)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownMessageType, env.Type)
}
