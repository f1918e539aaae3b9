package reconcile

import (
	"context"
	"fmt"

	"github.com/jmbish04/october-visit-2025/internal/itinerary"
	"github.com/jmbish04/october-visit-2025/internal/merge"
)

// RemoteStore is the server-held copy of record.
// Implemented by *store.Store and *remote.Client.
type RemoteStore interface {
	ListStops(ctx context.Context, itineraryID string) (itinerary.Snapshot, error)
	ReplaceStops(ctx context.Context, itineraryID string, stops itinerary.Snapshot) error
}

// Attempt is one request to change, push, or pull an itinerary.
// Use the constructors; which fields matter depends on Kind.
type Attempt struct {
	Kind        Kind
	ItineraryID string

	Batch  merge.Batch // reorder, apply
	Prompt string      // modify

	EntityID string // append
	Day      *int   // append; nil targets the last day

	Force bool // pull: overwrite a non-empty local cache
}

// Reorder builds a direct-drag attempt replacing one day's order.
func Reorder(itineraryID string, day int, entityIDs []string) Attempt {
	return Attempt{Kind: KindReorder, ItineraryID: itineraryID, Batch: merge.ReorderBatch(day, entityIDs)}
}

// Modify builds an attempt that asks the modification engine for a batch.
func Modify(itineraryID, prompt string) Attempt {
	return Attempt{Kind: KindModify, ItineraryID: itineraryID, Prompt: prompt}
}

// Apply builds an attempt merging an externally supplied batch.
func Apply(itineraryID string, b merge.Batch) Attempt {
	return Attempt{Kind: KindApply, ItineraryID: itineraryID, Batch: b}
}

// Append builds an attempt adding one entity at the end of a day.
func Append(itineraryID, entityID string, day *int) Attempt {
	return Attempt{Kind: KindAppend, ItineraryID: itineraryID, EntityID: entityID, Day: day}
}

// Push builds an attempt re-sending the local snapshot to the store of record.
func Push(itineraryID string) Attempt {
	return Attempt{Kind: KindPush, ItineraryID: itineraryID}
}

// Pull builds an attempt hydrating the local cache from the store of record.
// Without force, a non-empty local cache is left alone.
func Pull(itineraryID string, force bool) Attempt {
	return Attempt{Kind: KindPull, ItineraryID: itineraryID, Force: force}
}

func (a Attempt) check() error {
	if a.ItineraryID == "" {
		return fmt.Errorf("itinerary id is required")
	}
	switch a.Kind {
	case KindReorder, KindApply, KindPush, KindPull:
	case KindModify:
		if a.Prompt == "" {
			return fmt.Errorf("modify: prompt is required")
		}
	case KindAppend:
		if a.EntityID == "" {
			return fmt.Errorf("append: entity id is required")
		}
		if a.Day != nil && *a.Day < 1 {
			return fmt.Errorf("append: day must be >= 1, got %d", *a.Day)
		}
	default:
		return fmt.Errorf("unknown attempt kind %q", a.Kind)
	}
	return nil
}

// Outcome is the terminal record of one attempt.
type Outcome struct {
	AttemptID   string             `json:"attempt_id"`
	ItineraryID string             `json:"itinerary_id"`
	Kind        Kind               `json:"kind"`
	State       State              `json:"state"`
	Transitions []State            `json:"transitions"`
	Snapshot    itinerary.Snapshot `json:"stops"`
	Touched     []int              `json:"touched_days,omitempty"`
	Metadata    map[string]any     `json:"metadata,omitempty"`
	Hydrated    bool               `json:"hydrated,omitempty"`
	Err         error              `json:"-"`
}

func (o *Outcome) transition(s State) {
	o.State = s
	o.Transitions = append(o.Transitions, s)
}
