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

// Package updates implements the client side of the update synchronization
// protocol: packaging encrypted CRDT deltas, tracking the per-space clock
// and detecting gaps in received batches.
package updates

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/graphprotocol/hypergraph-sub001/backend/crypto"
	"github.com/graphprotocol/hypergraph-sub001/backend/models"
)

// NoUpdatesClock is the local clock value before any update was applied.
const NoUpdatesClock = -1

// ErrBatchMalformed means a batch's clock bounds disagree with its length.
var ErrBatchMalformed = errors.New("updates: malformed batch")

// ClockGapError reports that a received batch does not continue the local
// clock. The caller should request a backfill of [Expected, Received-1]
// before applying anything.
type ClockGapError struct {
	SpaceID  string
	Expected int64
	Received int64
}

func (e *ClockGapError) Error() string {
	return fmt.Sprintf("updates: clock gap in space %s: expected %d, received %d", e.SpaceID, e.Expected, e.Received)
}

// SpaceSync tracks one space's update stream for a client. Safe for
// concurrent use.
type SpaceSync struct {
	mu sync.Mutex

	spaceID   string
	key       []byte
	lastClock int64

	// in-flight sends, keyed by update id, valued by ephemeral id
	inflight map[string]string

	// clocks of own confirmed updates that cannot advance lastClock yet
	// because earlier clocks are still missing
	pendingOwn map[int64]bool
}

// NewSpaceSync starts tracking a space with the given symmetric key. The
// local clock starts at NoUpdatesClock.
func NewSpaceSync(spaceID string, key []byte) *SpaceSync {
	return &SpaceSync{
		spaceID:    spaceID,
		key:        key,
		lastClock:  NoUpdatesClock,
		inflight:   map[string]string{},
		pendingOwn: map[int64]bool{},
	}
}

// LastClock returns the clock of the last applied update.
func (s *SpaceSync) LastClock() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastClock
}

// SetKey replaces the space key, e.g. after decrypting a newer key box.
func (s *SpaceSync) SetKey(key []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.key = key
}

// InflightCount returns the number of unconfirmed sends.
func (s *SpaceSync) InflightCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inflight)
}

func newID() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()
}

// PackageUpdate encrypts a delta with the space key, signs the ciphertext
// and wraps it into a create-update frame. The update is tracked as
// in-flight until Confirm is called with its id.
func (s *SpaceSync) PackageUpdate(kp *crypto.SignatureKeyPair, delta []byte) (models.CreateUpdate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ciphertext, err := crypto.EncryptMessage(s.key, delta)
	if err != nil {
		return models.CreateUpdate{}, err
	}

	updateID := newID()
	ephemeralID := newID()
	s.inflight[updateID] = ephemeralID

	return models.CreateUpdate{
		EphemeralID: ephemeralID,
		SpaceID:     s.spaceID,
		Update: models.Update{
			UpdateID:  updateID,
			SpaceID:   s.spaceID,
			AccountID: kp.Address(),
			Content:   hex.EncodeToString(ciphertext),
			Signature: crypto.SignMessage(kp, ciphertext),
		},
	}, nil
}

// Confirm processes an update-confirmed reply. The sender does not receive
// its own notification, so a contiguous confirmation advances the local
// clock like a one-element batch. A non-contiguous one means other members'
// updates were assigned in between: the confirmed clock is held pending and
// the gap is reported so the caller backfills the missing range. Advancing
// past the gap here would make those updates look stale when they arrive.
func (s *SpaceSync) Confirm(updateID string, clock int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.inflight, updateID)

	switch {
	case clock <= s.lastClock:
		return nil
	case clock == s.lastClock+1:
		s.lastClock = clock
		s.drainPendingLocked()
		return nil
	default:
		s.pendingOwn[clock] = true
		return &ClockGapError{SpaceID: s.spaceID, Expected: s.lastClock + 1, Received: clock}
	}
}

// drainPendingLocked advances lastClock through any directly following
// clocks confirmed for our own updates.
func (s *SpaceSync) drainPendingLocked() {
	for s.pendingOwn[s.lastClock+1] {
		s.lastClock++
		delete(s.pendingOwn, s.lastClock)
	}
}

// ApplyNotification checks a batch for contiguity and decrypts its updates
// in clock order. On success the local clock advances to the batch's last
// clock and the plaintext deltas are returned in array order. Batches that
// were already applied return nothing; a batch that overlaps the local
// clock has its applied prefix skipped.
//
// A gap returns a ClockGapError and applies nothing: the caller must
// backfill first, "skip and continue" would silently drop data.
func (s *SpaceSync) ApplyNotification(batch models.Updates) ([][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := batch.LastUpdateClock - batch.FirstUpdateClock + 1
	if count < 1 || int64(len(batch.Updates)) != count {
		return nil, fmt.Errorf("%w: clocks %d..%d with %d updates",
			ErrBatchMalformed, batch.FirstUpdateClock, batch.LastUpdateClock, len(batch.Updates))
	}

	if batch.LastUpdateClock <= s.lastClock {
		// Entirely behind us, e.g. a redundant backfill reply.
		return nil, nil
	}
	if batch.FirstUpdateClock > s.lastClock+1 {
		return nil, &ClockGapError{
			SpaceID:  s.spaceID,
			Expected: s.lastClock + 1,
			Received: batch.FirstUpdateClock,
		}
	}

	var deltas [][]byte
	for i, update := range batch.Updates {
		clock := batch.FirstUpdateClock + int64(i)
		if clock <= s.lastClock {
			continue
		}
		delta, err := crypto.DecryptMessageHex(s.key, update.Content)
		if err != nil {
			// One undecryptable update poisons the whole range: do not
			// advance past it or the stream forks silently.
			return deltas, fmt.Errorf("update clock %d: %w", clock, err)
		}
		deltas = append(deltas, delta)
		s.lastClock = clock
		delete(s.inflight, update.UpdateID)
		delete(s.pendingOwn, clock)
	}
	s.drainPendingLocked()
	return deltas, nil
}
