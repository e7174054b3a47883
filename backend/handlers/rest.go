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

package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/graphprotocol/hypergraph-sub001/backend/middleware"
	"github.com/graphprotocol/hypergraph-sub001/backend/storage"
)

// RestHandler serves the read-only HTTP endpoints. Everything mutating
// goes over the websocket; these exist for tooling and dashboards that
// only want a snapshot without a socket.
type RestHandler struct {
	store storage.Store
}

func NewRestHandler(store storage.Store) *RestHandler {
	return &RestHandler{store: store}
}

// ListSpaces returns the account's space summaries.
// GET /api/spaces
func (h *RestHandler) ListSpaces(w http.ResponseWriter, r *http.Request) {
	account, ok := middleware.GetAccountAddress(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	spaces, err := h.store.ListSpacesForAccount(account)
	if err != nil {
		http.Error(w, "Failed to fetch spaces", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"spaces": spaces,
	})
}

// ListInvitations returns the account's open invitations.
// GET /api/invitations
func (h *RestHandler) ListInvitations(w http.ResponseWriter, r *http.Request) {
	account, ok := middleware.GetAccountAddress(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	invitations, err := h.store.ListInvitationsForAccount(account)
	if err != nil {
		http.Error(w, "Failed to fetch invitations", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"invitations": invitations,
	})
}
