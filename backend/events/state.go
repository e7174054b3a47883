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

// Role is a member's privilege level within a space.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// SpaceState is the authoritative space state: a pure left-fold over the
// ordered event log. Two replays of the same event sequence produce
// identical states.
type SpaceState struct {
	ID             string                `json:"id"`
	Members        map[string]Role       `json:"members"`
	RemovedMembers map[string]bool       `json:"removedMembers"`
	Invitations    map[string]Invitation `json:"invitations"`
	Inboxes        map[string]InboxMeta  `json:"inboxes"`

	// Hash of the last successfully applied transaction. The next
	// transaction's PreviousEventHash must equal this.
	LastEventHash string `json:"lastEventHash"`
}

// IsMember reports whether the account is a current, non-removed member.
func (s *SpaceState) IsMember(accountID string) bool {
	if s == nil {
		return false
	}
	if s.RemovedMembers[accountID] {
		return false
	}
	_, ok := s.Members[accountID]
	return ok
}

// IsAdmin reports whether the account is a current admin member.
func (s *SpaceState) IsAdmin(accountID string) bool {
	return s.IsMember(accountID) && s.Members[accountID] == RoleAdmin
}

// InvitationFor returns the open invitation addressed to the account, if any.
func (s *SpaceState) InvitationFor(accountID string) (Invitation, bool) {
	if s == nil {
		return Invitation{}, false
	}
	for _, inv := range s.Invitations {
		if inv.InviteeAccountID == accountID {
			return inv, true
		}
	}
	return Invitation{}, false
}

// clone copies the state so ApplyEvent stays a pure fold: a rejected event
// leaves the caller's state untouched.
func (s *SpaceState) clone() *SpaceState {
	next := &SpaceState{
		ID:             s.ID,
		Members:        make(map[string]Role, len(s.Members)),
		RemovedMembers: make(map[string]bool, len(s.RemovedMembers)),
		Invitations:    make(map[string]Invitation, len(s.Invitations)),
		Inboxes:        make(map[string]InboxMeta, len(s.Inboxes)),
		LastEventHash:  s.LastEventHash,
	}
	for k, v := range s.Members {
		next.Members[k] = v
	}
	for k, v := range s.RemovedMembers {
		next.RemovedMembers[k] = v
	}
	for k, v := range s.Invitations {
		next.Invitations[k] = v
	}
	for k, v := range s.Inboxes {
		next.Inboxes[k] = v
	}
	return next
}
