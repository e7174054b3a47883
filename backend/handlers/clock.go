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

import "sync"

// clockSource loads the persisted clock head of a space.
type clockSource interface {
	LatestUpdateClock(spaceID string) (int64, error)
}

// ClockTable assigns the per-space update clocks. Assignment is
// linearizable: one mutex covers the lazy load and the increment, so two
// updates for the same space can never draw the same clock. Entries are
// seeded from storage on first use after a restart.
type ClockTable struct {
	mu     sync.Mutex
	source clockSource
	clocks map[string]int64
}

func NewClockTable(source clockSource) *ClockTable {
	return &ClockTable{
		source: source,
		clocks: map[string]int64{},
	}
}

// Next reserves and returns the next clock value for the space. Clocks
// start at 0 for a space with no stored updates.
func (t *ClockTable) Next(spaceID string) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	last, ok := t.clocks[spaceID]
	if !ok {
		loaded, err := t.source.LatestUpdateClock(spaceID)
		if err != nil {
			return 0, err
		}
		last = loaded
	}
	next := last + 1
	t.clocks[spaceID] = next
	return next, nil
}

// Rollback releases a reservation whose update failed to persist, so the
// stored stream keeps no hole. Only valid while the caller still holds the
// space's serialization, so no later reservation has been handed out.
func (t *ClockTable) Rollback(spaceID string, clock int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.clocks[spaceID] == clock {
		t.clocks[spaceID] = clock - 1
	}
}
