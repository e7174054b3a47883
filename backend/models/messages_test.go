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
	"errors"
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestClientMessageDispatch(t *testing.T) {
	raw, err := EncodeClientMessage(CreateUpdate{
		EphemeralID: "eph-1",
		SpaceID:     "space-1",
		Update:      Update{UpdateID: "u-1", SpaceID: "space-1", Content: "deadbeef"},
	})
	if err != nil {
		t.Fatalf("EncodeClientMessage failed: %v", err)
	}

	decoded, err := DecodeClientMessage(raw)
	if err != nil {
		t.Fatalf("DecodeClientMessage failed: %v", err)
	}

	msg, ok := decoded.(CreateUpdate)
	if !ok {
		t.Fatalf("Expected CreateUpdate, got %T", decoded)
	}
	assert.Equal(t, msg.EphemeralID, "eph-1")
	assert.Equal(t, msg.Update.UpdateID, "u-1")
}

func TestServerMessageDispatch(t *testing.T) {
	raw, err := EncodeServerMessage(UpdatesNotification{
		SpaceID: "space-1",
		Updates: Updates{
			Updates:          []Update{{UpdateID: "u-1", Clock: 5}},
			FirstUpdateClock: 5,
			LastUpdateClock:  5,
		},
	})
	if err != nil {
		t.Fatalf("EncodeServerMessage failed: %v", err)
	}

	decoded, err := DecodeServerMessage(raw)
	if err != nil {
		t.Fatalf("DecodeServerMessage failed: %v", err)
	}

	msg, ok := decoded.(UpdatesNotification)
	if !ok {
		t.Fatalf("Expected UpdatesNotification, got %T", decoded)
	}
	assert.Equal(t, msg.Updates.FirstUpdateClock, int64(5))
	assert.Equal(t, len(msg.Updates.Updates), 1)
}

func TestUnknownMessageTypeRejected(t *testing.T) {
	if _, err := DecodeClientMessage([]byte(`{"type":"drop-table"}`)); !errors.Is(err, ErrUnknownMessageType) {
		t.Errorf("Expected ErrUnknownMessageType, got %v", err)
	}
	if _, err := DecodeServerMessage([]byte(`{"type":""}`)); !errors.Is(err, ErrUnknownMessageType) {
		t.Errorf("Expected ErrUnknownMessageType, got %v", err)
	}
}

func TestEmptyMessageCarriesTag(t *testing.T) {
	raw, err := EncodeClientMessage(ListSpaces{})
	if err != nil {
		t.Fatalf("EncodeClientMessage failed: %v", err)
	}

	decoded, err := DecodeClientMessage(raw)
	if err != nil {
		t.Fatalf("DecodeClientMessage failed: %v", err)
	}
	if _, ok := decoded.(ListSpaces); !ok {
		t.Fatalf("Expected ListSpaces, got %T", decoded)
	}
}
