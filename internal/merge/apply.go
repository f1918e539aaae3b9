package merge

import (
	"sort"

	"github.com/jmbish04/october-visit-2025/internal/itinerary"
)

// Result is the outcome of folding a batch into a snapshot.
type Result struct {
	// Snapshot is the new full itinerary, sorted by (day, order_index).
	// Days the batch never touched keep their stops verbatim.
	Snapshot itinerary.Snapshot

	// NextIndex is the next free order index per day: the position an insert
	// without an explicit position would take against Snapshot.
	NextIndex map[int]int

	// Touched lists the days whose sequence was rewritten, ascending.
	Touched []int
}

// TouchedStops returns the settled stops of every touched day, keyed by day.
// A touched day that ended up empty maps to an empty slice.
func (r Result) TouchedStops() map[int][]itinerary.Stop {
	groups := itinerary.GroupByDay(r.Snapshot)
	out := make(map[int][]itinerary.Stop, len(r.Touched))
	for _, day := range r.Touched {
		stops := groups[day]
		if stops == nil {
			stops = []itinerary.Stop{}
		}
		out[day] = stops
	}
	return out
}

// fold is the accumulator threaded through Apply. It owns its maps; nothing
// outside one Apply call ever sees them.
type fold struct {
	original map[int][]itinerary.Stop
	days     map[int][]string
	next     map[int]int
	touched  map[int]bool
}

func newFold(snap itinerary.Snapshot) *fold {
	f := &fold{
		original: itinerary.GroupByDay(snap),
		days:     make(map[int][]string),
		next:     make(map[int]int),
		touched:  make(map[int]bool),
	}
	for day, stops := range f.original {
		f.days[day] = itinerary.EntityIDs(stops)
		f.next[day] = len(stops)
	}
	return f
}

// Apply folds ops into snap in order and returns the new snapshot. It never
// fails: unknown entities are ignored by remove, missing days are treated as
// empty, and positions are clamped.
func Apply(snap itinerary.Snapshot, ops []Op) Result {
	f := newFold(snap)
	for _, op := range ops {
		switch op.Kind {
		case OpReorder:
			f.reorder(op.Day, op.Order)
		case OpInsert:
			f.insert(op.Day, op.EntityID, op.Position)
		case OpRemove:
			f.remove(op.Day, op.EntityID)
		}
	}
	return f.result()
}

// ApplyBatch is Apply over the batch's flattened operations.
func ApplyBatch(snap itinerary.Snapshot, b Batch) Result {
	return Apply(snap, b.Ops())
}

func (f *fold) reorder(day int, ids []string) {
	seen := make(map[string]bool, len(ids))
	order := make([]string, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		order = append(order, id)
	}

	for other := range f.days {
		if other == day {
			continue
		}
		for _, id := range order {
			f.detach(other, id)
		}
	}

	f.days[day] = order
	f.settle(day)
}

func (f *fold) insert(day int, id string, position *int) {
	for other := range f.days {
		f.detach(other, id)
	}

	seq := f.days[day]
	pos := f.next[day]
	if position != nil {
		pos = *position
	}
	if pos < 0 {
		pos = 0
	}
	if pos > len(seq) {
		pos = len(seq)
	}

	out := make([]string, 0, len(seq)+1)
	out = append(out, seq[:pos]...)
	out = append(out, id)
	out = append(out, seq[pos:]...)
	f.days[day] = out
	f.settle(day)
}

func (f *fold) remove(day int, id string) {
	f.detach(day, id)
}

// detach removes id from day if present and settles the day.
func (f *fold) detach(day int, id string) {
	seq := f.days[day]
	for i, existing := range seq {
		if existing != id {
			continue
		}
		out := make([]string, 0, len(seq)-1)
		out = append(out, seq[:i]...)
		out = append(out, seq[i+1:]...)
		f.days[day] = out
		f.settle(day)
		return
	}
}

// settle marks day as rewritten and recomputes its next free index. The day
// is renumbered when the result is materialized.
func (f *fold) settle(day int) {
	f.touched[day] = true
	f.next[day] = len(f.days[day])
}

func (f *fold) result() Result {
	groups := make(map[int][]itinerary.Stop, len(f.days))
	for day, ids := range f.days {
		if !f.touched[day] {
			groups[day] = f.original[day]
			continue
		}
		stops := make([]itinerary.Stop, len(ids))
		for i, id := range ids {
			stops[i] = itinerary.Stop{EntityID: id, Day: day}
		}
		groups[day] = itinerary.Renumber(stops)
	}

	touched := make([]int, 0, len(f.touched))
	for day := range f.touched {
		touched = append(touched, day)
	}
	sort.Ints(touched)

	next := make(map[int]int, len(f.next))
	for day, n := range f.next {
		next[day] = n
	}

	return Result{
		Snapshot:  itinerary.Flatten(groups),
		NextIndex: next,
		Touched:   touched,
	}
}
