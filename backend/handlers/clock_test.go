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
	"sync"
	"testing"
)

type stubClockSource struct {
	clocks map[string]int64
	loads  int
}

func (s *stubClockSource) LatestUpdateClock(spaceID string) (int64, error) {
	s.loads++
	if clock, ok := s.clocks[spaceID]; ok {
		return clock, nil
	}
	return -1, nil
}

func TestClockStartsAtZeroForEmptySpace(t *testing.T) {
	table := NewClockTable(&stubClockSource{})

	clock, err := table.Next("space-a")
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if clock != 0 {
		t.Errorf("Expected first clock 0, got %d", clock)
	}

	clock, _ = table.Next("space-a")
	if clock != 1 {
		t.Errorf("Expected second clock 1, got %d", clock)
	}
}

func TestClockSeedsFromStorageOnce(t *testing.T) {
	source := &stubClockSource{clocks: map[string]int64{"space-a": 41}}
	table := NewClockTable(source)

	clock, err := table.Next("space-a")
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if clock != 42 {
		t.Errorf("Expected clock 42 after stored head 41, got %d", clock)
	}

	table.Next("space-a")
	if source.loads != 1 {
		t.Errorf("Expected a single storage load, got %d", source.loads)
	}
}

func TestClockRollbackReleasesReservation(t *testing.T) {
	table := NewClockTable(&stubClockSource{})

	clock, err := table.Next("space-a")
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	table.Rollback("space-a", clock)

	again, _ := table.Next("space-a")
	if again != clock {
		t.Errorf("Expected rolled-back clock %d to be reissued, got %d", clock, again)
	}

	// Rolling back anything but the latest reservation is a no-op.
	table.Rollback("space-a", again-1)
	next, _ := table.Next("space-a")
	if next != again+1 {
		t.Errorf("Expected clock %d, got %d", again+1, next)
	}
}

func TestClockAssignmentIsUniqueUnderContention(t *testing.T) {
	table := NewClockTable(&stubClockSource{})

	const n = 64
	var wg sync.WaitGroup
	clocks := make(chan int64, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			clock, err := table.Next("space-a")
			if err != nil {
				t.Errorf("Next failed: %v", err)
				return
			}
			clocks <- clock
		}()
	}
	wg.Wait()
	close(clocks)

	seen := map[int64]bool{}
	for clock := range clocks {
		if seen[clock] {
			t.Fatalf("Clock %d assigned twice", clock)
		}
		seen[clock] = true
	}
	if len(seen) != n {
		t.Errorf("Expected %d distinct clocks, got %d", n, len(seen))
	}
}
