// Package modifier turns a natural-language request into an edit batch.
//
// The itinerary core treats every Proposer as opaque: it hands over the
// prompt and the current stops and receives a merge.Batch, or an error. No
// partial batch is ever returned.
package modifier

import (
	"context"
	"errors"

	"github.com/jmbish04/october-visit-2025/internal/itinerary"
	"github.com/jmbish04/october-visit-2025/internal/merge"
)

// OptimizePrompt is the prompt sent by the "optimize route" action.
const OptimizePrompt = "Optimize the driving order"

// ErrNoRule is returned by Planner when no rule matches the prompt.
var ErrNoRule = errors.New("no rule matches prompt")

// Request is what a Proposer sees.
type Request struct {
	Prompt      string             `json:"prompt"`
	ItineraryID string             `json:"itinerary_id"`
	Stops       itinerary.Snapshot `json:"stops"`
}

// Proposer produces an edit batch for a request.
type Proposer interface {
	Propose(ctx context.Context, req Request) (merge.Batch, error)
}

// ProposerFunc adapts a function to Proposer.
type ProposerFunc func(ctx context.Context, req Request) (merge.Batch, error)

// Propose implements Proposer.
func (f ProposerFunc) Propose(ctx context.Context, req Request) (merge.Batch, error) {
	return f(ctx, req)
}
