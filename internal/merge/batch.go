package merge

import (
	"encoding/json"
	"fmt"
	"strings"
)

// OpKind names one of the three edit operations.
type OpKind string

const (
	// OpReorder replaces a day's entire sequence.
	OpReorder OpKind = "reorder"
	// OpInsert adds one stop to a day, optionally at a position.
	OpInsert OpKind = "insert"
	// OpRemove deletes one stop from a day if present.
	OpRemove OpKind = "remove"
)

// Op is a single flattened edit operation.
type Op struct {
	Kind     OpKind
	Day      int
	EntityID string   // insert, remove
	Position *int     // insert; nil appends
	Order    []string // reorder
}

// EntityRef references one catalog entity.
type EntityRef struct {
	EntityID string `json:"entity_id" yaml:"entity_id"`
}

// AddRef is an insert request. A nil Position appends to the day.
type AddRef struct {
	EntityID string `json:"entity_id" yaml:"entity_id"`
	Position *int   `json:"position,omitempty" yaml:"position,omitempty"`
}

// DayUpdate groups the operations a modification engine proposes for one day.
// A non-nil Order (even an empty one) replaces the day's sequence.
type DayUpdate struct {
	Day    int         `json:"day" yaml:"day"`
	Order  []EntityRef `json:"order,omitempty" yaml:"order,omitempty"`
	Add    []AddRef    `json:"add,omitempty" yaml:"add,omitempty"`
	Remove []EntityRef `json:"remove,omitempty" yaml:"remove,omitempty"`
	Notes  string      `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// dayUpdateWire is DayUpdate with Order behind a pointer, so that an empty
// order survives encoding while a nil one is still omitted.
type dayUpdateWire struct {
	Day    int          `json:"day" yaml:"day"`
	Order  *[]EntityRef `json:"order,omitempty" yaml:"order,omitempty"`
	Add    []AddRef     `json:"add,omitempty" yaml:"add,omitempty"`
	Remove []EntityRef  `json:"remove,omitempty" yaml:"remove,omitempty"`
	Notes  string       `json:"notes,omitempty" yaml:"notes,omitempty"`
}

func (u DayUpdate) wire() dayUpdateWire {
	w := dayUpdateWire{Day: u.Day, Add: u.Add, Remove: u.Remove, Notes: u.Notes}
	if u.Order != nil {
		w.Order = &u.Order
	}
	return w
}

// MarshalJSON keeps "order": [] for an update that clears its day.
func (u DayUpdate) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.wire())
}

// MarshalYAML keeps order: [] for an update that clears its day.
func (u DayUpdate) MarshalYAML() (any, error) {
	return u.wire(), nil
}

// Batch is the unit of externally proposed change. It is the wire shape
// returned by modification engines: {updates: [...], metadata: {...}}.
type Batch struct {
	Updates  []DayUpdate    `json:"updates" yaml:"updates"`
	Metadata map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Ops flattens the batch into operations in application order. Within one
// update the order is: reorder, then adds, then removes.
func (b Batch) Ops() []Op {
	var ops []Op
	for _, u := range b.Updates {
		if u.Order != nil {
			order := make([]string, len(u.Order))
			for i, ref := range u.Order {
				order[i] = ref.EntityID
			}
			ops = append(ops, Op{Kind: OpReorder, Day: u.Day, Order: order})
		}
		for _, add := range u.Add {
			op := Op{Kind: OpInsert, Day: u.Day, EntityID: add.EntityID}
			if add.Position != nil {
				pos := *add.Position
				op.Position = &pos
			}
			ops = append(ops, op)
		}
		for _, rm := range u.Remove {
			ops = append(ops, Op{Kind: OpRemove, Day: u.Day, EntityID: rm.EntityID})
		}
	}
	return ops
}

// Days returns the days the batch mentions, in first-mention order.
func (b Batch) Days() []int {
	seen := make(map[int]bool)
	var days []int
	for _, u := range b.Updates {
		if !seen[u.Day] {
			seen[u.Day] = true
			days = append(days, u.Day)
		}
	}
	return days
}

// Empty reports whether the batch carries no operations at all.
func (b Batch) Empty() bool {
	return len(b.Ops()) == 0
}

// ValidationError lists every structural problem found in a batch.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid edit batch: %s", strings.Join(e.Problems, "; "))
}

// Validate checks the batch's structure: positive days, non-empty entity
// ids and non-negative positions. It does not check that entities exist.
func (b Batch) Validate() error {
	var problems []string
	for i, u := range b.Updates {
		if u.Day < 1 {
			problems = append(problems, fmt.Sprintf("updates[%d]: day must be >= 1, got %d", i, u.Day))
		}
		for j, ref := range u.Order {
			if strings.TrimSpace(ref.EntityID) == "" {
				problems = append(problems, fmt.Sprintf("updates[%d].order[%d]: entity_id is required", i, j))
			}
		}
		for j, add := range u.Add {
			if strings.TrimSpace(add.EntityID) == "" {
				problems = append(problems, fmt.Sprintf("updates[%d].add[%d]: entity_id is required", i, j))
			}
			if add.Position != nil && *add.Position < 0 {
				problems = append(problems, fmt.Sprintf("updates[%d].add[%d]: position must be >= 0, got %d", i, j, *add.Position))
			}
		}
		for j, rm := range u.Remove {
			if strings.TrimSpace(rm.EntityID) == "" {
				problems = append(problems, fmt.Sprintf("updates[%d].remove[%d]: entity_id is required", i, j))
			}
		}
	}
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// ReorderBatch builds the single-day batch produced by a direct drag reorder.
func ReorderBatch(day int, entityIDs []string) Batch {
	order := make([]EntityRef, len(entityIDs))
	for i, id := range entityIDs {
		order[i] = EntityRef{EntityID: id}
	}
	return Batch{Updates: []DayUpdate{{Day: day, Order: order}}}
}

// InsertBatch builds a batch adding one entity to day. A nil position appends.
func InsertBatch(day int, entityID string, position *int) Batch {
	return Batch{Updates: []DayUpdate{{Day: day, Add: []AddRef{{EntityID: entityID, Position: position}}}}}
}

// RemoveBatch builds a batch removing one entity from day.
func RemoveBatch(day int, entityID string) Batch {
	return Batch{Updates: []DayUpdate{{Day: day, Remove: []EntityRef{{EntityID: entityID}}}}}
}
