package itinerary

import (
	"fmt"
	"sort"
	"strings"
)

// Stop places one catalog entity on one day of a plan.
// EntityID is opaque and owned by the catalog.
type Stop struct {
	EntityID   string `json:"entity_id" yaml:"entity_id"`
	Day        int    `json:"day" yaml:"day"`
	OrderIndex int    `json:"order_index" yaml:"order_index"`
}

// Snapshot is the complete state of one itinerary's stops, ordered by
// (Day, OrderIndex).
type Snapshot []Stop

// DefaultDay is used when a stop is added to an empty itinerary without an
// explicit day.
const DefaultDay = 1

// Renumber reassigns OrderIndex as 0..n-1 in the order the stops are given.
// The input is not modified.
func Renumber(stops []Stop) []Stop {
	out := make([]Stop, len(stops))
	for i, s := range stops {
		s.OrderIndex = i
		out[i] = s
	}
	return out
}

// Sort returns a copy of the snapshot ordered by day, then order index.
// Ties fall back to entity id so the result is deterministic even when the
// input violates dense ordering.
func Sort(snap Snapshot) Snapshot {
	out := Clone(snap)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Day != b.Day {
			return a.Day < b.Day
		}
		if a.OrderIndex != b.OrderIndex {
			return a.OrderIndex < b.OrderIndex
		}
		return a.EntityID < b.EntityID
	})
	return out
}

// Clone returns an independent copy. A nil snapshot clones to an empty one.
func Clone(snap Snapshot) Snapshot {
	out := make(Snapshot, len(snap))
	copy(out, snap)
	return out
}

// GroupByDay splits a snapshot into per-day slices, each sorted by order index.
func GroupByDay(snap Snapshot) map[int][]Stop {
	groups := make(map[int][]Stop)
	for _, s := range Sort(snap) {
		groups[s.Day] = append(groups[s.Day], s)
	}
	return groups
}

// Flatten joins per-day slices back into a sorted snapshot. Stops are taken
// verbatim; callers renumber first if they need dense indices.
func Flatten(days map[int][]Stop) Snapshot {
	var out Snapshot
	for _, day := range sortedKeys(days) {
		out = append(out, days[day]...)
	}
	if out == nil {
		out = Snapshot{}
	}
	return Sort(out)
}

// Days returns the distinct days present in the snapshot, ascending.
func Days(snap Snapshot) []int {
	seen := make(map[int]bool)
	var days []int
	for _, s := range snap {
		if !seen[s.Day] {
			seen[s.Day] = true
			days = append(days, s.Day)
		}
	}
	sort.Ints(days)
	return days
}

// Count returns the number of stops scheduled on day.
func Count(snap Snapshot, day int) int {
	n := 0
	for _, s := range snap {
		if s.Day == day {
			n++
		}
	}
	return n
}

// DayOf returns the day an entity is scheduled on.
func DayOf(snap Snapshot, entityID string) (int, bool) {
	for _, s := range snap {
		if s.EntityID == entityID {
			return s.Day, true
		}
	}
	return 0, false
}

// LastDay returns the day of the final stop in the snapshot as stored, or
// DefaultDay when the snapshot is empty.
func LastDay(snap Snapshot) int {
	if len(snap) == 0 {
		return DefaultDay
	}
	return snap[len(snap)-1].Day
}

// EntityIDs returns the entity ids of the given stops, in order.
func EntityIDs(stops []Stop) []string {
	ids := make([]string, len(stops))
	for i, s := range stops {
		ids[i] = s.EntityID
	}
	return ids
}

// Equal reports whether two snapshots hold the same stops, ignoring the
// order in which they are stored.
func Equal(a, b Snapshot) bool {
	if len(a) != len(b) {
		return false
	}
	sa, sb := Sort(a), Sort(b)
	for i := range sa {
		if sa[i] != sb[i] {
			return false
		}
	}
	return true
}

// Move relocates entityID within one day's ordered stops to position to and
// renumbers the day. It mirrors a drag-and-drop gesture: positions are
// clamped and an unknown entity leaves the day unchanged.
func Move(stops []Stop, entityID string, to int) []Stop {
	from := -1
	for i, s := range stops {
		if s.EntityID == entityID {
			from = i
			break
		}
	}
	if from < 0 {
		return Renumber(stops)
	}
	moved := stops[from]
	rest := make([]Stop, 0, len(stops))
	rest = append(rest, stops[:from]...)
	rest = append(rest, stops[from+1:]...)
	if to < 0 {
		to = 0
	}
	if to > len(rest) {
		to = len(rest)
	}
	out := make([]Stop, 0, len(stops))
	out = append(out, rest[:to]...)
	out = append(out, moved)
	out = append(out, rest[to:]...)
	return Renumber(out)
}

// InvariantError describes every dense-ordering or unique-placement violation
// found in a snapshot.
type InvariantError struct {
	Violations []string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("itinerary invariant violated: %s", strings.Join(e.Violations, "; "))
}

// Validate checks dense ordering per day and unique placement across days.
// Returns nil or an *InvariantError listing all violations.
func Validate(snap Snapshot) error {
	var violations []string

	seen := make(map[string]int)
	for _, s := range Sort(snap) {
		if s.Day < 1 {
			violations = append(violations, fmt.Sprintf("entity %q has non-positive day %d", s.EntityID, s.Day))
		}
		if prev, ok := seen[s.EntityID]; ok {
			violations = append(violations, fmt.Sprintf("entity %q scheduled on day %d and day %d", s.EntityID, prev, s.Day))
			continue
		}
		seen[s.EntityID] = s.Day
	}

	groups := GroupByDay(snap)
	for _, day := range sortedKeys(groups) {
		for i, s := range groups[day] {
			if s.OrderIndex != i {
				violations = append(violations, fmt.Sprintf("day %d: entity %q at order_index %d, want %d", day, s.EntityID, s.OrderIndex, i))
			}
		}
	}

	if len(violations) > 0 {
		return &InvariantError{Violations: violations}
	}
	return nil
}

func sortedKeys(m map[int][]Stop) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
